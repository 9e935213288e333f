package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a signing secret from an explicit value, an environment
// variable or an interactive prompt, in that order. The value is cached
// after the first successful lookup.
type Source struct {
	explicit string
	envVar   string
	label    string

	lookupEnv func(string) (string, bool)
	prompt    func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource builds a source for label (used in prompts and errors).
func NewSource(explicit, envVar, label string) *Source {
	return &Source{
		explicit:  explicit,
		envVar:    strings.TrimSpace(envVar),
		label:     label,
		lookupEnv: os.LookupEnv,
		prompt:    terminalPrompt(os.Stdin, os.Stderr),
	}
}

// Get returns the secret. Whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.explicit != "" {
		return nonEmpty(s.explicit, "flag")
	}
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			return nonEmpty(value, s.envVar)
		}
	}
	if s.prompt == nil {
		return "", fmt.Errorf("%s required", s.label)
	}
	value, err := s.prompt(s.label)
	if err != nil {
		if s.envVar != "" {
			return "", fmt.Errorf("%s required; set %s or run interactively: %w", s.label, s.envVar, err)
		}
		return "", err
	}
	return nonEmpty(value, "prompt")
}

func nonEmpty(value, origin string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("secret from %s is empty", origin)
	}
	return value, nil
}

var errNoTerminal = errors.New("no terminal available")

func terminalPrompt(in *os.File, out io.Writer) func(string) (string, error) {
	return func(label string) (string, error) {
		if !term.IsTerminal(int(in.Fd())) {
			return "", errNoTerminal
		}
		fmt.Fprintf(out, "Enter %s: ", label)
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", label, err)
		}
		return string(raw), nil
	}
}
