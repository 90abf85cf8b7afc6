// Package store is the relational persistence layer: tenant credentials,
// conversations keyed by (channel, thread), and the per-conversation message
// ledger. Concurrency safety for admission and get-or-create relies entirely
// on the store's unique constraints, never on in-process locks.
package store

import "errors"

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrDuplicateMessage   = errors.New("duplicate message id")
)
