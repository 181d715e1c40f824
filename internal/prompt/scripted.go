package prompt

import (
	"fmt"
	"strings"
	"sync"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

// Scripted answers prompts from a fixed list, for tests and piped input.
// Select answers match an item exactly or by prefix; Confirm answers are
// "y" or "n"; an empty Input answer takes the default.
type Scripted struct {
	mu      sync.Mutex
	answers []string
	Asked   []string
}

func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) next(label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Asked = append(s.Asked, label)
	if len(s.answers) == 0 {
		return "", clierr.New(clierr.CodeDeclined, fmt.Sprintf("no scripted answer for %q", label))
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Remaining reports answers not consumed yet.
func (s *Scripted) Remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answers...)
}

func (s *Scripted) Select(label string, items []string) (int, error) {
	a, err := s.next(label)
	if err != nil {
		return 0, err
	}
	for i, item := range items {
		if item == a {
			return i, nil
		}
	}
	for i, item := range items {
		if strings.HasPrefix(item, a) {
			return i, nil
		}
	}
	return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("scripted answer %q matches none of %q", a, items))
}

func (s *Scripted) Input(label, def string, validate func(string) error) (string, error) {
	a, err := s.next(label)
	if err != nil {
		return "", err
	}
	if a == "" {
		a = def
	}
	if validate != nil {
		if err := validate(a); err != nil {
			return "", clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("scripted answer %q for %q", a, label), err)
		}
	}
	return strings.TrimSpace(a), nil
}

func (s *Scripted) Confirm(label string, def bool) (bool, error) {
	a, err := s.next(label)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(a)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return false, clierr.New(clierr.CodeUsage, fmt.Sprintf("scripted confirm answer %q is not y or n", a))
	}
}
