package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.42:5000": "203.0.113.0",
		"203.0.113.42":      "203.0.113.0",
		"[::1]:8080":        "127.0.0.1",
		"not-an-ip":         "unknown_ip",
	}

	for in, want := range cases {
		assert.Equal(t, want, AnonymizeIP(in), in)
	}
}

func TestCheckFieldsDropsOddPairs(t *testing.T) {
	assert.Nil(t, checkFields("Info", []any{"only_key"}))
	assert.Equal(t, []any{"k", 1}, checkFields("Info", []any{"k", 1}))
}
