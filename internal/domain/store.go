package domain

import (
	"context"
	"sort"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// SortNewestFirst orders qs by creation time descending, breaking ties by
// instance id.
func SortNewestFirst(qs []Question) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].InstanceID < qs[j].InstanceID
		}
		return qs[i].CreatedAt.After(qs[j].CreatedAt)
	})
}

// Page applies opts to an already ordered slice.
func (opts ListOpts) Page(qs []Question) []Question {
	if opts.Offset > 0 {
		if opts.Offset >= len(qs) {
			return []Question{}
		}
		qs = qs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(qs) {
		qs = qs[:opts.Limit]
	}
	return qs
}

// QuestionStore persists question registries and their oracle bindings.
//
// Create must be atomic: either both records are inserted, or, when a record
// already exists at either derived location, nothing is written and
// ErrAlreadyInitialized is returned.
//
// Resolve is a compare-and-set: it writes res only when the question is still
// unresolved and res.ResolvedAt is strictly before the deadline, returning
// ErrAlreadyResolved or ErrDeadlineExpired otherwise, and ErrNotFound for an
// unknown instance. It never touches the binding.
type QuestionStore interface {
	Create(ctx context.Context, q Question, b OracleBinding) error
	Get(ctx context.Context, instanceID string) (Question, error)
	GetBinding(ctx context.Context, instanceID string) (OracleBinding, error)
	Resolve(ctx context.Context, instanceID string, res Resolution) (Question, error)
	List(ctx context.Context, opts ListOpts) ([]Question, error)
}

// CheckResolve applies the Resolve preconditions to the current record. Store
// implementations call it inside their atomic section.
func CheckResolve(q Question, res Resolution) error {
	if q.Outcome.Resolved() {
		return ErrAlreadyResolved
	}
	if q.Expired(res.ResolvedAt) {
		return ErrDeadlineExpired
	}
	return nil
}

// ApplyResolution returns q with res committed.
func ApplyResolution(q Question, res Resolution) Question {
	r := res
	q.Outcome = res.Outcome
	q.Resolution = &r
	return q
}

// LockManager provides single-writer locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
