// Package identity validates student identifiers.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalid is returned for an id that is malformed or denylisted.
var ErrInvalid = errors.New("invalid student id")

// Validator checks student ids against a format and a denylist.
type Validator struct {
	pattern  *regexp.Regexp
	denylist map[int64]struct{}
}

// NewValidator compiles pattern and indexes the denylist.
func NewValidator(pattern string, denylist []int64) (*Validator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile student id pattern: %w", err)
	}
	deny := make(map[int64]struct{}, len(denylist))
	for _, id := range denylist {
		deny[id] = struct{}{}
	}
	return &Validator{pattern: re, denylist: deny}, nil
}

// Validate reports whether id is acceptable.
func (v *Validator) Validate(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalid, id)
	}
	if !v.pattern.MatchString(strconv.FormatInt(id, 10)) {
		return fmt.Errorf("%w: %d", ErrInvalid, id)
	}
	if _, denied := v.denylist[id]; denied {
		return fmt.Errorf("%w: %d", ErrInvalid, id)
	}
	return nil
}
