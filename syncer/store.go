/*
store.go - Persistence and collaborator contracts for the sync engine

PURPOSE:
  Defines the interfaces between the engine and everything it does not
  own: durable queue/state persistence, the remote backend, connectivity
  probing, and session identity. Implementations live elsewhere
  (store/sqlite for durable persistence, syncer/store for in-memory,
  remote for the HTTP gateway).

KEY INTERFACES:
  QueueStore:   durable queue item persistence with per-entity lookup
  StateStore:   the persisted Status singleton
  Gateway:      create/update/delete/get/list against one remote table
  Connectivity: on-demand online check, never cached
  Identity:     resolves the authenticated user id

DURABILITY CONTRACT:
  Queue items and sync state must survive process restarts. There is no
  cross-collection transaction guarantee: an entity write can land while
  the matching queue write fails. Callers surface that window as a
  storage failure rather than pretending atomicity.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: durable storage for entities, queue, state
  - syncer/store/memory.go: in-memory store for tests and demos
  - remote/gateway.go: HTTP gateway against the hosted backend

SEE ALSO:
  - queue.go: the Queue built on QueueStore
  - status.go: the Tracker built on StateStore
*/
package syncer

import (
	"context"
	"encoding/json"
)

// =============================================================================
// QUEUE STORE - Durable queue item persistence
// =============================================================================

// QueueStore persists queue items. Implementations must keep List order
// stable in enqueue order so equal priorities replay first-in first-out.
type QueueStore interface {
	// PutQueueItem inserts the item or replaces the stored item with the
	// same id.
	PutQueueItem(ctx context.Context, item QueueItem) error

	// DeleteQueueItems removes the items with the given ids. Unknown ids
	// are ignored.
	DeleteQueueItems(ctx context.Context, ids []string) error

	// GetQueueItem returns the item with the given id, or nil when absent.
	GetQueueItem(ctx context.Context, id string) (*QueueItem, error)

	// ListQueueItems returns every stored item, dead included, in stable
	// enqueue order.
	ListQueueItems(ctx context.Context) ([]QueueItem, error)

	// GetQueueItemByEntity returns the pending item targeting the entity,
	// or nil when none exists. Used for enqueue-time coalescing.
	GetQueueItemByEntity(ctx context.Context, kind EntityKind, entityID string) (*QueueItem, error)
}

// =============================================================================
// STATE STORE - The persisted Status record
// =============================================================================

// StateStore persists the aggregate sync status across restarts.
type StateStore interface {
	// SaveSyncState overwrites the stored status.
	SaveSyncState(ctx context.Context, status Status) error

	// LoadSyncState returns the stored status, or nil when none was ever
	// saved.
	LoadSyncState(ctx context.Context) (*Status, error)
}

// =============================================================================
// GATEWAY - Remote CRUD for one entity table
// =============================================================================

// Gateway is the engine-facing view of one remote entity table. Payloads
// are opaque JSON; the remote package owns the row mapping. Errors must be
// translated into the taxonomy in errors.go before they reach the engine.
type Gateway interface {
	// Create inserts a new row and returns the stored representation.
	Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

	// Update patches the row with the given id and returns the result.
	Update(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error)

	// Delete removes the row with the given id.
	Delete(ctx context.Context, id string) error

	// GetByID fetches one row, ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (json.RawMessage, error)

	// List fetches rows matching the filter (nil filter = all rows owned
	// by the current user).
	List(ctx context.Context, filter map[string]string) ([]json.RawMessage, error)
}

// Gateways maps entity kinds to their remote tables for drain dispatch.
type Gateways map[EntityKind]Gateway

// =============================================================================
// CAPABILITIES - Collaborators owned by the app shell
// =============================================================================

// Connectivity reports whether the backend is reachable right now. Every
// call re-queries; the engine never caches the answer.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Identity resolves the authenticated user. Mutations fail with
// ErrUnauthenticated when no id is resolvable.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// =============================================================================
// FUNC ADAPTERS - For tests and simple wiring
// =============================================================================

// ConnectivityFunc adapts a function to the Connectivity interface.
type ConnectivityFunc func(ctx context.Context) bool

func (f ConnectivityFunc) Online(ctx context.Context) bool { return f(ctx) }

// IdentityFunc adapts a function to the Identity interface.
type IdentityFunc func(ctx context.Context) (string, error)

func (f IdentityFunc) CurrentUserID(ctx context.Context) (string, error) { return f(ctx) }

// StaticIdentity returns an Identity that always resolves to id, the usual
// shape for a single-user device session.
func StaticIdentity(id string) Identity {
	return IdentityFunc(func(context.Context) (string, error) {
		if id == "" {
			return "", ErrUnauthenticated
		}
		return id, nil
	})
}
