// Package storage provides the durable key-value collaborator the engine
// persists its workflow and audit collections into.
package storage

import (
	"context"
	"fmt"
)

// KV is a byte-oriented key-value store. Get returns sentinel.ErrNotFound
// (possibly wrapped) when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Encoder produces the current value of a key. It may run on another
// goroutine after PutEncoded returns and must take whatever lock guards the
// state it reads.
type Encoder func() ([]byte, error)

// DeferredPutter is a KV that postpones encoding until it writes, so a key
// updated many times is encoded once per write.
type DeferredPutter interface {
	PutDeferred(ctx context.Context, key string, encode Encoder) error
}

// PutEncoded hands encode to kv. A DeferredPutter encodes when it writes;
// any other KV is encoded and written now.
func PutEncoded(ctx context.Context, kv KV, key string, encode Encoder) error {
	if d, ok := kv.(DeferredPutter); ok {
		return d.PutDeferred(ctx, key, encode)
	}
	raw, err := encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, raw)
}

// Collection keys.
const (
	KeyWorkflows = "approval_workflows"
	// KeySyncOutbox holds undelivered and dead-lettered backend commands.
	KeySyncOutbox = "sync_outbox"
	// KeyAuditPrefix is joined with an audit category name.
	KeyAuditPrefix = "audit_logs:"
)

// AuditKey returns the key of one audit category collection.
func AuditKey(category string) string {
	return KeyAuditPrefix + category
}
