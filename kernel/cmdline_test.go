package kernel

import "testing"

func TestCommandLineDispatchesFlagsWithAndWithoutArgs(t *testing.T) {
	c := NewCommandLine()
	var verboseCalled bool
	var level string

	if err := c.Register("verbose", func(args string) error {
		verboseCalled = true
		if args != "" {
			t.Fatalf("verbose handler got args=%q, want empty", args)
		}
		return nil
	}); err != nil {
		t.Fatalf("Register verbose: %v", err)
	}
	if err := c.Register("level", func(args string) error {
		level = args
		return nil
	}); err != nil {
		t.Fatalf("Register level: %v", err)
	}

	if err := c.Parse("-verbose -level 5"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !verboseCalled {
		t.Fatalf("verbose handler never ran")
	}
	if level != "5" {
		t.Fatalf("level = %q, want \"5\"", level)
	}
}

func TestCommandLineQuotedArgsPreserveWhitespace(t *testing.T) {
	c := NewCommandLine()
	var got string
	_ = c.Register("root", func(args string) error {
		got = args
		return nil
	})

	if err := c.Parse(`-root "/dev/sda 1"`); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "/dev/sda 1" {
		t.Fatalf("args = %q, want %q", got, "/dev/sda 1")
	}
}

func TestCommandLineSkipsUnregisteredFlags(t *testing.T) {
	c := NewCommandLine()
	var ran bool
	_ = c.Register("known", func(args string) error {
		ran = true
		return nil
	})
	if err := c.Parse("-unknown foo -known bar"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ran {
		t.Fatalf("known flag after an unrecognized one never dispatched")
	}
}

func TestCommandLineRegisterRejectsDuplicateName(t *testing.T) {
	c := NewCommandLine()
	noop := func(string) error { return nil }
	if err := c.Register("dup", noop); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := c.Register("dup", noop)
	if err == nil {
		t.Fatalf("second Register with the same name should fail")
	}
	if kind, ok := KindOf(err); !ok || kind != Conflict {
		t.Fatalf("duplicate Register error = %v, want Conflict", err)
	}
}

func TestCommandLineHandlerErrorPropagates(t *testing.T) {
	c := NewCommandLine()
	sentinel := New("handler", BadParameter)
	_ = c.Register("fail", func(string) error { return sentinel })

	err := c.Parse("-fail")
	if err != sentinel {
		t.Fatalf("Parse error = %v, want the handler's own error", err)
	}
}
