package audit

import (
	"sort"
	"strings"
	"time"

	id "cdigit/pkg/domain"
	dErrors "cdigit/pkg/domain-errors"
)

// Filter narrows a category read. Zero fields match everything. Resource is
// a case-insensitive substring match; Since and Until are inclusive.
type Filter struct {
	ActorID   id.ActorID
	Role      string
	Resource  string
	VoucherID id.VoucherID
	Success   *bool
	Since     time.Time
	Until     time.Time
	Limit     int
}

func (f Filter) matches(e Entry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Role != "" && !strings.EqualFold(e.Role, f.Role) {
		return false
	}
	if f.Resource != "" && !strings.Contains(strings.ToLower(e.Resource), strings.ToLower(f.Resource)) {
		return false
	}
	if f.VoucherID != "" && e.VoucherID != f.VoucherID {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Entries returns the entries of c matching f, newest first.
func (t *Trail) Entries(c Category, f Filter) ([]Entry, error) {
	buf, ok := t.logs[c]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown audit category %q", c)
	}
	return filterNewestFirst(buf.Snapshot(), f), nil
}

func (t *Trail) Authentication(f Filter) []Entry {
	return filterNewestFirst(t.logs[CategoryAuthentication].Snapshot(), f)
}

func (t *Trail) Authorization(f Filter) []Entry {
	return filterNewestFirst(t.logs[CategoryAuthorization].Snapshot(), f)
}

func (t *Trail) Approval(f Filter) []Entry {
	return filterNewestFirst(t.logs[CategoryApproval].Snapshot(), f)
}

func (t *Trail) SignatureBinding(f Filter) []Entry {
	return filterNewestFirst(t.logs[CategorySignatureBinding].Snapshot(), f)
}

// filterNewestFirst expects entries oldest first. Entries sharing a
// timestamp keep reverse append order.
func filterNewestFirst(entries []Entry, f Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if f.matches(entries[i]) {
			out = append(out, entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Bool is a helper for Filter.Success.
func Bool(v bool) *bool { return &v }
