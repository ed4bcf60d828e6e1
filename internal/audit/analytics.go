package audit

import (
	"sort"
	"time"
)

const (
	topDenialsLimit = 10
	recentLimit     = 20
)

// CategoryStats summarises one category.
type CategoryStats struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
	FailureRate float64 `json:"failureRate"`
	Evicted     int64   `json:"evicted"`
}

// ResourceCount is a denial hot spot.
type ResourceCount struct {
	Resource string `json:"resource"`
	Count    int    `json:"count"`
}

// Analytics is a point-in-time summary across all categories.
type Analytics struct {
	GeneratedAt    time.Time                  `json:"generatedAt"`
	Categories     map[Category]CategoryStats `json:"categories"`
	TopDenials     []ResourceCount            `json:"topDenials"`
	RecentActivity []Entry                    `json:"recentActivity"`
}

// Analytics computes success and failure rates per category, the most
// frequently denied authorization resources and a merged recent feed.
func (t *Trail) Analytics(now time.Time) Analytics {
	out := Analytics{
		GeneratedAt: now.UTC(),
		Categories:  make(map[Category]CategoryStats, len(allCategories)),
	}

	denials := make(map[string]int)
	var merged []Entry
	for _, c := range allCategories {
		snapshot := t.logs[c].Snapshot()
		stats := CategoryStats{Total: len(snapshot), Evicted: t.logs[c].Evicted()}
		for _, e := range snapshot {
			if e.Success {
				stats.Succeeded++
				continue
			}
			stats.Failed++
			if c == CategoryAuthorization && e.Resource != "" {
				denials[e.Resource]++
			}
		}
		if stats.Total > 0 {
			stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
			stats.FailureRate = float64(stats.Failed) / float64(stats.Total)
		}
		out.Categories[c] = stats
		merged = append(merged, snapshot...)
	}

	out.TopDenials = make([]ResourceCount, 0, len(denials))
	for resource, n := range denials {
		out.TopDenials = append(out.TopDenials, ResourceCount{Resource: resource, Count: n})
	}
	sort.Slice(out.TopDenials, func(i, j int) bool {
		if out.TopDenials[i].Count != out.TopDenials[j].Count {
			return out.TopDenials[i].Count > out.TopDenials[j].Count
		}
		return out.TopDenials[i].Resource < out.TopDenials[j].Resource
	})
	if len(out.TopDenials) > topDenialsLimit {
		out.TopDenials = out.TopDenials[:topDenialsLimit]
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > recentLimit {
		merged = merged[:recentLimit]
	}
	out.RecentActivity = merged
	return out
}
