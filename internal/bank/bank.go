// Package bank holds the static question bank shipped with the binary.
package bank

import (
	_ "embed"
	"fmt"
	"strings"

	"code-quizzer/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var topicsYAML []byte

// Embedded returns the bank compiled into the binary.
func Embedded() (domain.Bank, error) {
	return Parse(topicsYAML)
}

// MustEmbedded is Embedded for process start-up; the embedded file is validated by tests.
func MustEmbedded() domain.Bank {
	b, err := Embedded()
	if err != nil {
		panic(err)
	}
	return b
}

// Parse decodes a YAML bank and validates it.
func Parse(data []byte) (domain.Bank, error) {
	var b domain.Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return domain.Bank{}, fmt.Errorf("decode bank: %w", err)
	}
	if err := Validate(b); err != nil {
		return domain.Bank{}, err
	}
	return b, nil
}

// Validate checks that topic names are unique and every question's correct
// answer is one of its options.
func Validate(b domain.Bank) error {
	if len(b.Topics) == 0 {
		return fmt.Errorf("bank has no topics")
	}
	seen := make(map[string]struct{}, len(b.Topics))
	for _, t := range b.Topics {
		if t.Name == "" {
			return fmt.Errorf("topic with empty name")
		}
		if strings.Contains(t.Name, "/") {
			return fmt.Errorf("topic %q: name must not contain '/'", t.Name)
		}
		if _, ok := seen[t.Name]; ok {
			return fmt.Errorf("duplicate topic %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if len(t.Questions) == 0 {
			return fmt.Errorf("topic %q has no questions", t.Name)
		}
		for i, q := range t.Questions {
			if !contains(q.Options, q.Correct) {
				return fmt.Errorf("topic %q question %d: correct answer %q is not an option", t.Name, i+1, q.Correct)
			}
		}
	}
	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
