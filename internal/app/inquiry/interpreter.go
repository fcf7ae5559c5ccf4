/*
Package inquiry expands stored command actions into reply text.

An action is copied verbatim except for inquiries: a '$' starts one, and it runs up to
(not including) the next space or the end of the action. An inquiry is NAME or
NAME:arg1:arg2 with no escaping. Its result is substituted, followed by one space. The
space that ended the inquiry is then copied like any other character, so
"a $X b" becomes "a <X> " + " b". Unknown names expand to nothing.
*/
package inquiry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/errs"
)

// Func computes an inquiry's substitution. It returns false when it has nothing to say.
type Func func(ec platform.ExecutionContext, args []string) (string, bool)

// Interpreter holds the inquiry registry.
type Interpreter struct {
	mu        sync.RWMutex
	inquiries map[string]Func
}

// New returns an interpreter with the builtin inquiries registered.
func New() *Interpreter {
	i := &Interpreter{inquiries: make(map[string]Func)}
	registerBuiltins(i)
	return i
}

// Register adds or replaces the inquiry called name.
func (i *Interpreter) Register(name string, fn Func) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inquiries[name] = fn
}

// Names lists the registered inquiries.
func (i *Interpreter) Names() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	names := make([]string, 0, len(i.inquiries))
	for name := range i.inquiries {
		names = append(names, name)
	}
	return names
}

func (i *Interpreter) lookup(name string) (Func, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	fn, ok := i.inquiries[name]
	return fn, ok
}

// Interpret expands action. It returns false when the expansion is empty.
func (i *Interpreter) Interpret(action string, ec platform.ExecutionContext) (string, bool, error) {
	var out strings.Builder
	out.Grow(len(action))

	for pos := 0; pos < len(action); {
		if action[pos] != '$' {
			end := strings.IndexByte(action[pos:], '$')
			if end < 0 {
				end = len(action) - pos
			}
			out.WriteString(action[pos : pos+end])
			pos += end
			continue
		}

		pos++
		end := strings.IndexByte(action[pos:], ' ')
		if end < 0 {
			end = len(action) - pos
		}
		expr := action[pos : pos+end]
		pos += end

		result, err := i.inquire(expr, ec)
		if err != nil {
			return "", false, err
		}
		out.WriteString(result)
		out.WriteByte(' ')
	}

	if out.Len() == 0 {
		return "", false, nil
	}
	return out.String(), true, nil
}

func (i *Interpreter) inquire(expr string, ec platform.ExecutionContext) (string, error) {
	parts := strings.Split(expr, ":")
	name, args := parts[0], parts[1:]
	if name == "" {
		return "", errs.NewError(errs.ErrInquiryMissingArgument, "inquiry name")
	}

	fn, ok := i.lookup(name)
	if !ok {
		return "", nil
	}

	result, ok := fn(ec, args)
	if !ok {
		return "", nil
	}
	return result, nil
}

// FormatArgs renders arguments as a bracketed, quoted list: ["a", "b"].
func FormatArgs(args []string) string {
	quoted := make([]string, len(args))
	for idx, a := range args {
		quoted[idx] = strconv.Quote(a)
	}
	return fmt.Sprintf("[%s]", strings.Join(quoted, ", "))
}
