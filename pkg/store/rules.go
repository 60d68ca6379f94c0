package store

import (
	"fmt"
	"slices"

	"github.com/macropower/orgz/pkg/ruleset"
)

// Rule returns a copy of the rule at index.
func (s *Store) Rule(index int) (*ruleset.Rule, error) {
	err := s.checkIndex(index)
	if err != nil {
		return nil, err
	}

	return s.rules.Rules[index].Clone(), nil
}

// AddRule appends a rule.
func (s *Store) AddRule(r *ruleset.Rule) error {
	return s.InsertRule(s.rules.Len(), r)
}

// InsertRule inserts a rule before index. An index equal to the number of
// rules appends.
func (s *Store) InsertRule(index int, r *ruleset.Rule) error {
	if index < 0 || index > s.rules.Len() {
		return s.fail(fmt.Errorf("%w: insert at %d, have %d rules", ErrIndexOutOfRange, index, s.rules.Len()))
	}

	rules := s.Rules()
	rules = slices.Insert(rules, index, r.Clone())

	return s.commit(rules)
}

// UpdateRule replaces the rule at index.
func (s *Store) UpdateRule(index int, r *ruleset.Rule) error {
	err := s.checkIndex(index)
	if err != nil {
		return err
	}

	rules := s.Rules()
	rules[index] = r.Clone()

	return s.commit(rules)
}

// DeleteRule removes the rule at index.
func (s *Store) DeleteRule(index int) error {
	err := s.checkIndex(index)
	if err != nil {
		return err
	}

	rules := slices.Delete(s.Rules(), index, index+1)

	return s.commit(rules)
}

// MoveRule moves the rule at from so that it ends up at index to.
func (s *Store) MoveRule(from, to int) error {
	err := s.checkIndex(from)
	if err != nil {
		return err
	}

	err = s.checkIndex(to)
	if err != nil {
		return err
	}

	rules := s.Rules()
	r := rules[from]
	rules = slices.Delete(rules, from, from+1)
	rules = slices.Insert(rules, to, r)

	return s.commit(rules)
}

// DuplicateRule inserts a copy of the rule at index directly after it.
// A named rule's copy gets the [CopySuffix].
func (s *Store) DuplicateRule(index int) error {
	err := s.checkIndex(index)
	if err != nil {
		return err
	}

	rules := s.Rules()

	dup := rules[index].Clone()
	if dup.Name != "" {
		dup.Name += CopySuffix
	}

	rules = slices.Insert(rules, index+1, dup)

	return s.commit(rules)
}

// SetRules replaces the whole rule list.
func (s *Store) SetRules(rules []*ruleset.Rule) error {
	c := make([]*ruleset.Rule, len(rules))
	for i, r := range rules {
		c[i] = r.Clone()
	}

	return s.commit(c)
}

// commit applies defaults, re-serializes the rules and re-parses the result,
// so the stored rules always equal what the text parses to.
func (s *Store) commit(rules []*ruleset.Rule) error {
	for i, r := range rules {
		if r == nil {
			return s.fail(fmt.Errorf("rules[%d]: %w: empty rule", i, ruleset.ErrInvalidRule))
		}

		r.EnsureDefaults()

		if len(r.Actions) == 0 {
			r.Actions = []ruleset.Spec{ruleset.DefaultAction()}
		}
	}

	text, err := s.codec.Marshal(ruleset.New(rules...))
	if err != nil {
		return s.fail(err)
	}

	rs, err := s.codec.Parse(text)
	if err != nil {
		return s.fail(err)
	}

	s.content = text
	s.rules = rs
	s.valid = true
	s.dirty = true
	s.lastErr = nil

	return nil
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= s.rules.Len() {
		return s.fail(fmt.Errorf("%w: %d, have %d rules", ErrIndexOutOfRange, index, s.rules.Len()))
	}

	return nil
}
