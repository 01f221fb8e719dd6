// Package ledger provides the atomic reservation primitive that all
// capacity accounting is built on: an all-or-nothing decrement across a set
// of named balances, with a best-effort release for compensation.
package ledger

import "context"

// Ledger reserves and releases amounts against a set of resources as one
// logical unit. Reserve either decrements every resource or none; errors are
// the domain sentinels (not found, insufficient, conflict).
//
// Release is compensation: it re-increments every resource and never fails
// the caller. Failures are logged inside the implementation because release
// runs from contexts (webhook, reaper, saga rollback) that must not let a
// cleanup error mask the outcome already decided.
type Ledger interface {
	Reserve(ctx context.Context, resourceIDs []string, amount int) error
	Release(ctx context.Context, resourceIDs []string, amount int)
}
