package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// ArgKind is the type of a positional command argument.
type ArgKind int

const (
	// ArgUsername is a Telegram handle; a leading "@" is stripped.
	ArgUsername ArgKind = iota
	// ArgInt is a signed 64-bit integer.
	ArgInt
)

// ArgSpec describes one positional argument.
type ArgSpec struct {
	Name string
	Kind ArgKind
}

// CommandSpec declares the exact arguments a command accepts.
type CommandSpec struct {
	Command string
	Args    []ArgSpec
	// Usage is shown verbatim in the usage reply, e.g. "/award @user 10".
	Usage string
}

// Reason classifies a ValidationError.
type Reason int

const (
	ReasonArgCount Reason = iota
	ReasonNotInteger
	ReasonEmptyUsername
)

func (r Reason) String() string {
	switch r {
	case ReasonArgCount:
		return "wrong argument count"
	case ReasonNotInteger:
		return "not an integer"
	case ReasonEmptyUsername:
		return "empty username"
	default:
		return "invalid"
	}
}

// ValidationError reports why a command's arguments were rejected.
type ValidationError struct {
	Command string
	Reason  Reason
	// Arg names the offending argument; empty for ReasonArgCount.
	Arg string
}

func (e *ValidationError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("%s: argument %q: %s", e.Command, e.Arg, e.Reason)
}

// Args holds parsed argument values by name.
type Args struct {
	strs map[string]string
	ints map[string]int64
}

// Username returns a parsed username argument.
func (a Args) Username(name string) string { return a.strs[name] }

// Int returns a parsed integer argument.
func (a Args) Int(name string) int64 { return a.ints[name] }

// Parse checks raw against spec.
func (spec CommandSpec) Parse(raw []string) (Args, error) {
	if len(raw) != len(spec.Args) {
		return Args{}, &ValidationError{Command: spec.Command, Reason: ReasonArgCount}
	}

	parsed := Args{strs: make(map[string]string), ints: make(map[string]int64)}
	for i, arg := range spec.Args {
		switch arg.Kind {
		case ArgUsername:
			name := strings.TrimLeft(raw[i], "@")
			if name == "" {
				return Args{}, &ValidationError{Command: spec.Command, Reason: ReasonEmptyUsername, Arg: arg.Name}
			}
			parsed.strs[arg.Name] = name
		case ArgInt:
			n, err := strconv.ParseInt(raw[i], 10, 64)
			if err != nil {
				return Args{}, &ValidationError{Command: spec.Command, Reason: ReasonNotInteger, Arg: arg.Name}
			}
			parsed.ints[arg.Name] = n
		}
	}
	return parsed, nil
}

// Reply returns the user-facing text for a validation failure.
func (spec CommandSpec) Reply(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Reason == ReasonNotInteger {
		return "⚠️ Points must be a number."
	}
	return fmt.Sprintf("❗ Usage: <code>%s</code>", spec.Usage)
}

const argsKey = "parsed_args"

// ValidateArgs parses the command arguments before the handler runs.
// Invalid input is answered with a local reply and the handler is skipped.
func ValidateArgs(spec CommandSpec) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			args, err := spec.Parse(c.Args())
			if err != nil {
				return c.Reply(spec.Reply(err))
			}
			c.Set(argsKey, args)
			return next(c)
		}
	}
}

// ParsedArgs returns the arguments stored by ValidateArgs.
func ParsedArgs(c tele.Context) (Args, bool) {
	args, ok := c.Get(argsKey).(Args)
	return args, ok
}

// Command specs for argument-taking commands.
var (
	AwardSpec = CommandSpec{
		Command: "/award",
		Args:    []ArgSpec{{Name: "username", Kind: ArgUsername}, {Name: "points", Kind: ArgInt}},
		Usage:   "/award @user 10",
	}
	ResetSpec = CommandSpec{
		Command: "/reset",
		Args:    []ArgSpec{{Name: "username", Kind: ArgUsername}},
		Usage:   "/reset @user",
	}
)
