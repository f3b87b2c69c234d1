package dynacmd

import (
	"fmt"
	"strings"
)

// enumValue is a string flag restricted to a fixed set of choices.
type enumValue struct {
	value   string
	choices []string
	fold    bool
}

func newEnumValue(choices []string, def string) *enumValue {
	return &enumValue{value: def, choices: choices}
}

func (e *enumValue) String() string {
	return e.value
}

func (e *enumValue) Set(v string) error {
	for _, c := range e.choices {
		if v == c || (e.fold && strings.EqualFold(v, c)) {
			e.value = c
			return nil
		}
	}
	return fmt.Errorf("invalid choice %q (choose from %s)", v, strings.Join(e.choices, ", "))
}

func (e *enumValue) Type() string {
	return "enum"
}
