package workflow

import (
	"time"

	"cdigit/internal/policy"
	"cdigit/internal/workflow/models"
)

// StatisticsFilter narrows the workflows aggregated. Zero fields match
// everything. Since and Until bound the creation time, inclusive.
type StatisticsFilter struct {
	Since        time.Time
	Until        time.Time
	VoucherType  string
	ApproverRole policy.Role
}

func (f StatisticsFilter) matches(wf *models.Workflow) bool {
	if !f.Since.IsZero() && wf.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && wf.CreatedAt.After(f.Until) {
		return false
	}
	if f.VoucherType != "" && wf.VoucherType != f.VoucherType {
		return false
	}
	if f.ApproverRole != "" {
		for _, a := range wf.ApprovalChain {
			if a.ActorRole == f.ApproverRole {
				return true
			}
		}
		return false
	}
	return true
}

// Statistics summarises approval activity.
type Statistics struct {
	Total                    int                                   `json:"total"`
	RequiringApproval        int                                   `json:"requiringApproval"`
	ByStatus                 map[policy.VoucherStatus]int          `json:"byStatus"`
	ByVoucherType            map[string]int                        `json:"byVoucherType"`
	ByRoleAction             map[policy.Role]map[models.Action]int `json:"byRoleAction"`
	Resolved                 int                                   `json:"resolved"`
	AverageResolution        time.Duration                         `json:"-"`
	AverageResolutionSeconds float64                               `json:"averageResolutionSeconds"`
}

// ComputeStatistics aggregates workflows. With an approver role filter only
// that role's actions are counted in ByRoleAction.
func ComputeStatistics(workflows []*models.Workflow, filter StatisticsFilter) Statistics {
	stats := Statistics{
		ByStatus:      make(map[policy.VoucherStatus]int),
		ByVoucherType: make(map[string]int),
		ByRoleAction:  make(map[policy.Role]map[models.Action]int),
	}

	var resolution time.Duration
	for _, wf := range workflows {
		if !filter.matches(wf) {
			continue
		}
		stats.Total++
		if wf.RequiresApproval {
			stats.RequiringApproval++
		}
		stats.ByStatus[wf.Status]++
		stats.ByVoucherType[wf.VoucherType]++

		for _, a := range wf.ApprovalChain {
			if filter.ApproverRole != "" && a.ActorRole != filter.ApproverRole {
				continue
			}
			byAction, ok := stats.ByRoleAction[a.ActorRole]
			if !ok {
				byAction = make(map[models.Action]int)
				stats.ByRoleAction[a.ActorRole] = byAction
			}
			byAction[a.Action]++
		}

		if wf.ResolvedAt != nil && wf.Status.IsTerminal() {
			stats.Resolved++
			resolution += wf.ResolvedAt.Sub(wf.CreatedAt)
		}
	}

	if stats.Resolved > 0 {
		stats.AverageResolution = resolution / time.Duration(stats.Resolved)
		stats.AverageResolutionSeconds = stats.AverageResolution.Seconds()
	}
	return stats
}
