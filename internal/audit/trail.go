// Package audit implements the append-only, per-category bounded audit trail
// the engine writes every authentication, authorization, approval and
// signature-binding outcome into.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/mssola/useragent"

	"cdigit/internal/platform/metrics"
	"cdigit/internal/storage"
	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/requestcontext"
)

// DefaultCapacity is the per-category entry cap.
const DefaultCapacity = 1000

// Trail holds the four audit logs. Appends to one category are serialized;
// reads work on copies and never block appends for long.
type Trail struct {
	logs    map[Category]*RingBuffer
	locks   map[Category]*sync.Mutex
	store   storage.KV
	// persistMu orders hand-offs to the store so a store that encodes
	// immediately never overwrites a newer snapshot with an older one.
	persistMu sync.Mutex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Trail)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

// WithStore persists every category snapshot after each append. With a
// storage.WriteBehind the snapshot is encoded once per write-behind drain
// rather than on every append.
func WithStore(kv storage.KV) Option {
	return func(t *Trail) {
		t.store = kv
	}
}

// NewTrail creates a trail capping each category at capacity entries.
func NewTrail(capacity int, opts ...Option) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	t := &Trail{
		logs:   make(map[Category]*RingBuffer, len(allCategories)),
		locks:  make(map[Category]*sync.Mutex, len(allCategories)),
		logger: slog.Default(),
	}
	for _, c := range allCategories {
		t.logs[c] = NewRingBuffer(capacity)
		t.locks[c] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends e to its category. Missing id, timestamp and request
// metadata are filled from ctx. The returned entry is what was stored.
func (t *Trail) Record(ctx context.Context, e Entry) (Entry, error) {
	if !e.Category.IsValid() {
		return Entry{}, dErrors.Newf(dErrors.CodeValidation, "unknown audit category %q", e.Category)
	}
	if strings.TrimSpace(e.Action) == "" {
		return Entry{}, dErrors.New(dErrors.CodeValidation, "audit action is required")
	}

	e = e.clone()
	if e.ID == (id.EntryID{}) {
		e.ID = id.NewEntryID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.IPAddress == "" {
		e.IPAddress = requestcontext.ClientIP(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = requestcontext.UserAgent(ctx)
	}
	if e.Device == "" && e.UserAgent != "" {
		e.Device = DeviceSummary(e.UserAgent)
	}

	lock := t.locks[e.Category]
	lock.Lock()
	evicted := t.logs[e.Category].Enqueue(e)
	lock.Unlock()
	t.persist(ctx, e.Category)

	t.metrics.IncAuditEntry(e.Category.String(), evicted)
	return e, nil
}

// persist hands category c to the store. The encoder always reads the
// category as it is when it runs.
func (t *Trail) persist(ctx context.Context, c Category) {
	if t.store == nil {
		return
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	encode := func() ([]byte, error) { return t.encode(c) }
	if err := storage.PutEncoded(ctx, t.store, storage.AuditKey(c.String()), encode); err != nil {
		t.logger.WarnContext(ctx, "failed to persist audit log", "category", c, "error", err)
	}
}

func (t *Trail) encode(c Category) ([]byte, error) {
	lock := t.locks[c]
	lock.Lock()
	snapshot := t.logs[c].Snapshot()
	lock.Unlock()
	return json.Marshal(snapshot)
}

// Load restores every category from the store. Missing keys leave the
// category empty.
func (t *Trail) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	for _, c := range allCategories {
		raw, err := t.store.Get(ctx, storage.AuditKey(c.String()))
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load audit log "+c.String())
		}
		var entries []Entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "corrupt audit log "+c.String())
		}
		lock := t.locks[c]
		lock.Lock()
		t.logs[c].Replace(entries)
		lock.Unlock()
	}
	return nil
}

// Len returns the number of entries held for c.
func (t *Trail) Len(c Category) int {
	if b, ok := t.logs[c]; ok {
		return b.Len()
	}
	return 0
}

// Capacity returns the per-category cap.
func (t *Trail) Capacity() int {
	return t.logs[CategoryApproval].Cap()
}

// Evicted returns how many entries of c were evicted by the cap.
func (t *Trail) Evicted(c Category) int64 {
	if b, ok := t.logs[c]; ok {
		return b.Evicted()
	}
	return 0
}

// DeviceSummary renders a short "browser on os" description of a user agent.
func DeviceSummary(userAgent string) string {
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	browser, _ := ua.Browser()
	platform := ua.OS()
	switch {
	case browser != "" && platform != "":
		summary := browser + " on " + platform
		if ua.Mobile() {
			summary += " (mobile)"
		}
		return summary
	case browser != "":
		return browser
	default:
		return platform
	}
}
