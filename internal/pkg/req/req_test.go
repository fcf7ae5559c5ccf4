package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hzbot/internal/pkg/errs"
)

type mergeInput struct {
	Keep string `json:"keep"`
	Drop string `json:"drop"`
}

func TestBindJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"keep":"twitch:1","drop":"irc:bob"}`))
	r.Header.Set("Content-Type", "application/json")

	var in mergeInput
	require.Nil(t, BindJSON(httptest.NewRecorder(), r, &in))
	assert.Equal(t, "twitch:1", in.Keep)
	assert.Equal(t, "irc:bob", in.Drop)
}

func TestBindJSONRejects(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		code        int
	}{
		{"wrong content type", "text/plain", `{}`, errs.ErrUnsupportedMediaType},
		{"unknown field", "application/json", `{"other":1}`, errs.ErrInvalidJSONFormat},
		{"trailing data", "application/json", `{"keep":"a"} {"keep":"b"}`, errs.ErrExtraContentInBody},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			r.Header.Set("Content-Type", tc.contentType)

			var in mergeInput
			err := BindJSON(httptest.NewRecorder(), r, &in)
			require.NotNil(t, err)
			assert.Equal(t, tc.code, err.Code)
		})
	}
}
