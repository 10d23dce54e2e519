package kernel

import (
	"strings"
)

// cmdlineState is one state of the kernel command-line parser's
// small state machine for the "-flag [args...]" grammar.
type cmdlineState int

const (
	csScanning cmdlineState = iota
	csNameConsume
	csArgsFind
	csNoArgs
	csArgsConsume
	csSubargsConsume
	csArgsEnd
)

// FlagHandler is invoked with the raw argument string following a
// recognized flag (possibly empty for flags with no arguments).
type FlagHandler func(args string) error

// CommandLine parses and dispatches a flat "-flag [args...]" string,
// the format the firmware hands the kernel as its boot command line.
type CommandLine struct {
	handlers map[string]FlagHandler
}

// NewCommandLine returns an empty command-line parser. Handlers are
// registered with Register before Parse is called.
func NewCommandLine() *CommandLine {
	return &CommandLine{handlers: make(map[string]FlagHandler)}
}

// Register associates a flag name (without its leading '-') with a
// handler. Registering the same name twice returns a Conflict error,
// mirroring the registry discipline used for IRQ owners and device
// names elsewhere in the core.
func (c *CommandLine) Register(name string, h FlagHandler) error {
	if _, exists := c.handlers[name]; exists {
		return Wrap("cmdline.Register", Conflict, nil)
	}
	c.handlers[name] = h
	return nil
}

// Parse walks line through the SCANNING / NAME_CONSUME / ARGS_FIND /
// NO_ARGS / ARGS_CONSUME / SUBARGS_CONSUME / ARGS_END state machine,
// dispatching each recognized flag to its registered handler.
// Arguments enclosed in double quotes (SUBARGS_CONSUME) are passed to
// the handler with the quotes stripped and embedded whitespace
// preserved. Unrecognized flags are silently skipped along with their
// argument run, matching firmware command lines that carry flags
// meant for other subsystems.
func (c *CommandLine) Parse(line string) error {
	state := csScanning
	var name strings.Builder
	var args strings.Builder
	i := 0
	n := len(line)

	dispatch := func() error {
		defer func() { name.Reset(); args.Reset() }()
		h, ok := c.handlers[name.String()]
		if !ok {
			return nil
		}
		return h(args.String())
	}

	for i < n {
		ch := line[i]
		switch state {
		case csScanning:
			if ch == '-' {
				state = csNameConsume
			}
			i++
		case csNameConsume:
			if ch == ' ' || ch == 0 {
				state = csArgsFind
			} else {
				name.WriteByte(ch)
				i++
			}
		case csArgsFind:
			switch {
			case ch == ' ':
				i++
			case ch == '-':
				state = csNoArgs
			case ch == '"':
				state = csSubargsConsume
				i++
			default:
				state = csArgsConsume
			}
		case csNoArgs:
			if err := dispatch(); err != nil {
				return err
			}
			state = csScanning
		case csArgsConsume:
			if ch == ' ' {
				state = csArgsEnd
			} else {
				args.WriteByte(ch)
				i++
			}
		case csSubargsConsume:
			if ch == '"' {
				i++
				state = csArgsEnd
			} else {
				args.WriteByte(ch)
				i++
			}
		case csArgsEnd:
			if err := dispatch(); err != nil {
				return err
			}
			state = csScanning
		}
	}

	// Flush whatever the final token was.
	switch state {
	case csNameConsume, csArgsFind, csNoArgs:
		return dispatch()
	case csArgsConsume, csSubargsConsume, csArgsEnd:
		return dispatch()
	}
	return nil
}
