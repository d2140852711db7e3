package transition

import (
	"errors"
	"fmt"

	"delivery/internal/domain"
)

type pair struct {
	from domain.OrderStatus
	to   domain.OrderStatus
}

// Table is an immutable, validated rule table. It is safe for concurrent use.
type Table struct {
	rules []Rule
	index map[pair]int
}

// NewTable validates rules and indexes them by (from, to).
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{
		rules: append([]Rule(nil), rules...),
		index: make(map[pair]int, len(rules)),
	}

	var errs []error
	for i, r := range t.rules {
		key := pair{r.From, r.To}
		switch {
		case !r.From.Valid() || !r.To.Valid():
			errs = append(errs, fmt.Errorf("rule %d: unknown status %q -> %q", i, r.From, r.To))
		case r.From == r.To:
			errs = append(errs, fmt.Errorf("rule %d: self-loop on %q", i, r.From))
		case r.From == domain.OrderStatusCancelled:
			errs = append(errs, fmt.Errorf("rule %d: cancelled is terminal", i))
		case len(r.AllowedRoles) == 0:
			errs = append(errs, fmt.Errorf("rule %d: %q -> %q has no allowed roles", i, r.From, r.To))
		}
		if _, dup := t.index[key]; dup {
			errs = append(errs, fmt.Errorf("rule %d: duplicate %q -> %q", i, r.From, r.To))
			continue
		}
		t.index[key] = i
	}

	for _, s := range t.Reachable(domain.OrderStatusPending) {
		if !t.reachesEnd(s) {
			errs = append(errs, fmt.Errorf("status %q cannot reach delivered or cancelled", s))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

// MustTable is NewTable that panics on a malformed table.
func MustTable(rules []Rule) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic("transition: " + err.Error())
	}
	return t
}

// Default is the platform order lifecycle.
var Default = MustTable(defaultRules)

// Rules returns a copy of the declared rules in declaration order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Lookup returns the rule for (from, to).
func (t *Table) Lookup(from, to domain.OrderStatus) (Rule, bool) {
	i, ok := t.index[pair{from, to}]
	if !ok {
		return Rule{}, false
	}
	return t.rules[i], true
}

// Next returns the statuses directly reachable from s, in declaration order.
func (t *Table) Next(s domain.OrderStatus) []domain.OrderStatus {
	var out []domain.OrderStatus
	for _, r := range t.rules {
		if r.From == s {
			out = append(out, r.To)
		}
	}
	return out
}

// Reachable returns every status reachable from start, start included.
func (t *Table) Reachable(start domain.OrderStatus) []domain.OrderStatus {
	seen := map[domain.OrderStatus]bool{start: true}
	queue := []domain.OrderStatus{start}
	out := []domain.OrderStatus{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range t.Next(cur) {
			if seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
			out = append(out, next)
		}
	}
	return out
}

func (t *Table) reachesEnd(s domain.OrderStatus) bool {
	for _, r := range t.Reachable(s) {
		if r == domain.OrderStatusDelivered || r == domain.OrderStatusCancelled {
			return true
		}
	}
	return false
}
