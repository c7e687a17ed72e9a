// Package workflow decides which project status changes are allowed.
package workflow

import (
	"fmt"

	"opsdash/internal/model"
)

// TransitionError is returned for a status change the policy forbids.
type TransitionError struct {
	From model.ProjectStatus
	To   model.ProjectStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("project status change %s -> %s is not allowed", e.From, e.To)
}

// Policy maps a status to the statuses it may move to. A status missing from
// the map may move anywhere, so the zero Policy allows every change.
type Policy struct {
	allowed map[model.ProjectStatus]map[model.ProjectStatus]bool
}

// NewPolicy builds a policy from config, e.g.
//
//	Completed: [InReview]
//
// Unknown statuses are rejected.
func NewPolicy(rules map[string][]string) (*Policy, error) {
	p := &Policy{allowed: make(map[model.ProjectStatus]map[model.ProjectStatus]bool, len(rules))}
	for from, targets := range rules {
		fromStatus := model.ProjectStatus(from)
		if !fromStatus.Valid() {
			return nil, fmt.Errorf("unknown project status %q in transition rules", from)
		}
		set := make(map[model.ProjectStatus]bool, len(targets))
		for _, to := range targets {
			toStatus := model.ProjectStatus(to)
			if !toStatus.Valid() {
				return nil, fmt.Errorf("unknown project status %q in transition rules for %s", to, from)
			}
			set[toStatus] = true
		}
		p.allowed[fromStatus] = set
	}
	return p, nil
}

// AllowAll permits any change between known statuses.
func AllowAll() *Policy {
	return &Policy{}
}

// Check validates from → to. Staying in the same status is always fine.
func (p *Policy) Check(from, to model.ProjectStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown project status %q", to)
	}
	if from == to || p == nil {
		return nil
	}
	targets, ok := p.allowed[from]
	if !ok || targets[to] {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
