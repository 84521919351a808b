/*
store.go - Persistence boundary for policy versions and audit events

PURPOSE:
  Defines the interfaces between the engine and storage. The store holds no
  business logic: overlap healing and validation happen before it is called.

KEY INTERFACES:
  PolicyStore: save / get / find-as-of / list-by-key / delete
  TxStore:     PolicyStore plus WithTx, which serializes writers for one
               DomainKey and commits or rolls back all writes together
  AuditSink:   fire-and-forget record of policy changes

SERIALIZATION:
  Two admins editing the same DomainKey must not interleave the overlap scan
  and the writes. WithTx holds the key's write lock for the whole callback.
  Reads outside WithTx see committed state only.

IMPLEMENTATIONS:
  - incentive/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:    SQLite via database/sql

SEE ALSO:
  - service.go: the only writer
*/
package incentive

import (
	"context"
	"time"
)

// =============================================================================
// POLICY STORE
// =============================================================================

// PolicyStore persists policy versions.
type PolicyStore interface {
	PolicyReader

	// Save inserts a policy when ID is empty (assigning a new ID) and
	// otherwise replaces the stored record. Replacing a missing ID fails with
	// a NotFoundError; Save never silently no-ops.
	Save(ctx context.Context, p Policy) (Policy, error)

	// Get returns the policy or a NotFoundError.
	Get(ctx context.Context, id PolicyID) (Policy, error)

	// FindAllByDomain returns every version for key ordered by EffectiveFrom.
	FindAllByDomain(ctx context.Context, key DomainKey) ([]Policy, error)

	// List returns every stored policy, optionally limited to one domain.
	List(ctx context.Context, domain Domain) ([]Policy, error)

	// Delete removes the record or fails with a NotFoundError.
	Delete(ctx context.Context, id PolicyID) error
}

// TxStore adds key-scoped transactions.
type TxStore interface {
	PolicyStore

	// WithTx runs fn with exclusive write access to key. If fn returns an
	// error every write made through the passed store is rolled back.
	WithTx(ctx context.Context, key DomainKey, fn func(PolicyStore) error) error
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditPolicyCreated     AuditAction = "policy_created"
	AuditPolicyUpdated     AuditAction = "policy_updated"
	AuditPolicyDeleted     AuditAction = "policy_deleted"
	AuditPolicyTruncated   AuditAction = "policy_truncated"
	AuditPolicyDeactivated AuditAction = "policy_deactivated"
	AuditPolicyDeferred    AuditAction = "policy_deferred"
)

// AuditEvent is one before/after record of a policy change.
type AuditEvent struct {
	ID       string
	Action   AuditAction
	Key      DomainKey
	PolicyID PolicyID
	Before   *Policy
	After    *Policy
	ActorID  string
	At       time.Time
}

// AuditSink receives audit events. A failing sink never fails the write that
// produced the event.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// AuditFilter narrows an audit query. Zero fields match everything.
type AuditFilter struct {
	PolicyID PolicyID
	Domain   Domain
	Limit    int
}

// AuditReader is implemented by sinks that can be queried.
type AuditReader interface {
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEvent, error)
}

func auditActionFor(a AdjustmentAction) AuditAction {
	switch a {
	case ActionTruncated:
		return AuditPolicyTruncated
	case ActionDeactivated:
		return AuditPolicyDeactivated
	default:
		return AuditPolicyDeferred
	}
}
