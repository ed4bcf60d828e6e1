// Package store keeps approval workflows keyed by voucher id and mirrors the
// collection into the durable KV store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cdigit/internal/storage"
	"cdigit/internal/workflow/models"
	id "cdigit/pkg/domain"
	"cdigit/pkg/platform/sentinel"
)

// InMemoryWorkflowStore holds every workflow in memory. Reads return copies
// so callers can never mutate stored state.
type InMemoryWorkflowStore struct {
	mu        sync.RWMutex
	byVoucher map[id.VoucherID]*models.Workflow
	order     []id.VoucherID
	kv        storage.KV
	logger    *slog.Logger
}

type Option func(*InMemoryWorkflowStore)

// WithPersistence writes the whole collection to kv after every change.
// kv should be a storage.WriteBehind so writers never wait on I/O.
func WithPersistence(kv storage.KV) Option {
	return func(s *InMemoryWorkflowStore) {
		s.kv = kv
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *InMemoryWorkflowStore) {
		s.logger = logger
	}
}

func New(opts ...Option) *InMemoryWorkflowStore {
	s := &InMemoryWorkflowStore{
		byVoucher: make(map[id.VoucherID]*models.Workflow),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new workflow. Returns sentinel.ErrConflict when the
// voucher already has one.
func (s *InMemoryWorkflowStore) Create(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byVoucher[wf.VoucherID]; exists {
		return fmt.Errorf("workflow for voucher %s: %w", wf.VoucherID, sentinel.ErrConflict)
	}
	s.byVoucher[wf.VoucherID] = wf.Clone()
	s.order = append(s.order, wf.VoucherID)
	s.persistLocked(ctx)
	return nil
}

// Update replaces an existing workflow.
func (s *InMemoryWorkflowStore) Update(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byVoucher[wf.VoucherID]; !exists {
		return fmt.Errorf("workflow for voucher %s: %w", wf.VoucherID, sentinel.ErrNotFound)
	}
	s.byVoucher[wf.VoucherID] = wf.Clone()
	s.persistLocked(ctx)
	return nil
}

func (s *InMemoryWorkflowStore) FindByVoucher(_ context.Context, voucherID id.VoucherID) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.byVoucher[voucherID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return wf.Clone(), nil
}

// List returns every workflow in creation order.
func (s *InMemoryWorkflowStore) List(_ context.Context) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(), nil
}

func (s *InMemoryWorkflowStore) listLocked() []*models.Workflow {
	out := make([]*models.Workflow, 0, len(s.order))
	for _, voucherID := range s.order {
		out = append(out, s.byVoucher[voucherID].Clone())
	}
	return out
}

func (s *InMemoryWorkflowStore) persistLocked(ctx context.Context) {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(s.listLocked())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode workflows", "error", err)
		return
	}
	if err := s.kv.Put(ctx, storage.KeyWorkflows, raw); err != nil {
		s.logger.WarnContext(ctx, "failed to persist workflows", "error", err)
	}
}

// Load replaces the in-memory collection with the persisted one. A missing
// key leaves the store empty.
func (s *InMemoryWorkflowStore) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	raw, err := s.kv.Get(ctx, storage.KeyWorkflows)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}
	var workflows []*models.Workflow
	if err := json.Unmarshal(raw, &workflows); err != nil {
		return fmt.Errorf("decode workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byVoucher = make(map[id.VoucherID]*models.Workflow, len(workflows))
	s.order = s.order[:0]
	for _, wf := range workflows {
		if _, dup := s.byVoucher[wf.VoucherID]; dup {
			continue
		}
		s.byVoucher[wf.VoucherID] = wf
		s.order = append(s.order, wf.VoucherID)
	}
	return nil
}

// Count returns the number of stored workflows.
func (s *InMemoryWorkflowStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
