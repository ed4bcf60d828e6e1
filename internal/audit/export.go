package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	dErrors "cdigit/pkg/domain-errors"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat defaults an empty value to JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Snapshot is the structured export document.
type Snapshot struct {
	ExportedAt time.Time            `json:"exportedAt"`
	Logs       map[Category][]Entry `json:"logs"`
}

var tabularHeader = []string{
	"category", "id", "timestamp", "actor_id", "role", "action", "resource", "success",
	"reason", "voucher_id", "workflow_id", "from_status", "to_status", "signature_type",
	"binding_hash", "ip_address", "device", "request_id",
}

func tabularRow(e Entry) []string {
	return []string{
		e.Category.String(),
		e.ID.String(),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ActorID.String(),
		e.Role,
		e.Action,
		e.Resource,
		strconv.FormatBool(e.Success),
		e.Reason,
		e.VoucherID.String(),
		e.WorkflowID,
		e.FromStatus,
		e.ToStatus,
		e.SignatureType,
		e.BindingHash,
		e.IPAddress,
		e.Device,
		e.RequestID,
	}
}

// Snapshot copies every category, or only c when c is non-empty. Entries
// are oldest first, as appended.
func (t *Trail) Snapshot(now time.Time, c Category) (Snapshot, error) {
	categories := allCategories
	if c != "" {
		if !c.IsValid() {
			return Snapshot{}, dErrors.Newf(dErrors.CodeValidation, "unknown audit category %q", c)
		}
		categories = []Category{c}
	}
	snap := Snapshot{ExportedAt: now.UTC(), Logs: make(map[Category][]Entry, len(categories))}
	for _, cat := range categories {
		snap.Logs[cat] = t.logs[cat].Snapshot()
	}
	return snap, nil
}

// Export writes a full or single-category snapshot to w.
func (t *Trail) Export(w io.Writer, now time.Time, format Format, c Category) error {
	snap, err := t.Snapshot(now, c)
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatCSV:
		return writeCSV(w, snap)
	case FormatXLSX:
		return writeXLSX(w, snap)
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q", format)
	}
}

func orderedCategories(snap Snapshot) []Category {
	out := make([]Category, 0, len(snap.Logs))
	for _, c := range allCategories {
		if _, ok := snap.Logs[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func writeCSV(w io.Writer, snap Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tabularHeader); err != nil {
		return err
	}
	for _, c := range orderedCategories(snap) {
		for _, e := range snap.Logs[c] {
			if err := cw.Write(tabularRow(e)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// summarySheet is the workbook's default sheet, reused for the summary.
const summarySheet = "Sheet1"

func writeXLSX(w io.Writer, snap Snapshot) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	summary := [][]any{
		{"exported_at", snap.ExportedAt.Format(time.RFC3339Nano)},
		{"category", "entries", "succeeded", "failed"},
	}
	for _, c := range orderedCategories(snap) {
		entries := snap.Logs[c]
		succeeded := 0
		for _, e := range entries {
			if e.Success {
				succeeded++
			}
		}
		summary = append(summary, []any{c.String(), len(entries), succeeded, len(entries) - succeeded})

		if _, err := f.NewSheet(c.String()); err != nil {
			return fmt.Errorf("create sheet %s: %w", c, err)
		}
		if err := setRow(f, c.String(), 1, toAny(tabularHeader)); err != nil {
			return err
		}
		for i, e := range entries {
			if err := setRow(f, c.String(), i+2, toAny(tabularRow(e))); err != nil {
				return err
			}
		}
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
