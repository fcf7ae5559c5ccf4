/*
Package filter applies a channel's message filters to outgoing text.
*/
package filter

import (
	"fmt"
	"regexp"
	"sync"

	"hzbot/internal/app/store"
	"hzbot/internal/pkg/logx"
)

// Placeholder replaces matches of a redacting filter that has no replacement text.
const Placeholder = "[Blocked]"

type compiled struct {
	re  *regexp.Regexp
	err error
}

// patterns maps a regex source to its compiled form, failures included.
var patterns sync.Map

func compile(expr string) (*regexp.Regexp, error) {
	if v, ok := patterns.Load(expr); ok {
		c := v.(compiled)
		return c.re, c.err
	}

	re, err := regexp.Compile(expr)
	v, _ := patterns.LoadOrStore(expr, compiled{re: re, err: err})
	c := v.(compiled)
	return c.re, c.err
}

// Apply runs filters over text in order and returns the result. An empty result means
// the message must not be delivered.
//
// A blocking filter that matches clears the text and stops the pipeline. A redacting
// filter replaces every match. A pattern that fails to compile overwrites the text with
// a diagnostic and the remaining filters still run against it.
func Apply(text string, filters []store.Filter) string {
	for _, f := range filters {
		re, err := compile(f.Regex)
		if err != nil {
			logx.Warn("Message filter regex does not compile",
				"filterId", f.ID, "channelId", f.ChannelID, "error", err.Error())
			text = fmt.Sprintf("failed to compile message filter regex: %v", err)
			continue
		}

		if f.BlockMessage {
			if re.MatchString(text) {
				return ""
			}
			continue
		}

		replacement := Placeholder
		if f.Replacement != nil {
			replacement = *f.Replacement
		}
		text = re.ReplaceAllString(text, replacement)
	}

	return text
}
