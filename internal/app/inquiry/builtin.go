package inquiry

import (
	"strings"

	"hzbot/internal/app/platform"
)

func registerBuiltins(i *Interpreter) {
	i.Register("DO_SOMETHING", func(_ platform.ExecutionContext, args []string) (string, bool) {
		return "did something with " + FormatArgs(args), true
	})

	i.Register("CHANNEL", func(ec platform.ExecutionContext, _ []string) (string, bool) {
		return ec.Channel.Channel, ec.Channel.Channel != ""
	})

	i.Register("PLATFORM", func(ec platform.ExecutionContext, _ []string) (string, bool) {
		return ec.Channel.PlatformName()
	})

	i.Register("PERMISSIONS", func(ec platform.ExecutionContext, _ []string) (string, bool) {
		return ec.Permissions.String(), true
	})

	// UPPER:a:b upper-cases its arguments, joined by spaces.
	i.Register("UPPER", func(_ platform.ExecutionContext, args []string) (string, bool) {
		if len(args) == 0 {
			return "", false
		}
		return strings.ToUpper(strings.Join(args, " ")), true
	})
}
