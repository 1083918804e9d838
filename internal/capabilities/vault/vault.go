// Package vault implements the secrets vault capability: a named Locker
// namespace with get/set/delete/exists/list_ids, backed by an in-memory
// store or AWS Secrets Manager.
//
// Grounded on original_source/crates/wasi-vault/src/host/vault_impl.rs
// (HostLockerWithStore's get/set/delete/exists/list_ids shape) and
// spec.md §3's "Locker (vault): namespace with get / set / delete /
// exists / list_ids".
package vault

import "context"

// Locker is the vault capability object.
type Locker interface {
	Get(ctx context.Context, secretID string) ([]byte, bool, error)
	Set(ctx context.Context, secretID string, value []byte) error
	Delete(ctx context.Context, secretID string) error
	Exists(ctx context.Context, secretID string) (bool, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// Backend opens named lockers.
type Backend interface {
	Open(ctx context.Context, lockerID string) (Locker, error)
}
