package policy

import (
	"fmt"
	"strings"
)

// TransactionType names the kind of customer transaction a voucher records.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
	TransactionRTGS       TransactionType = "rtgs"
)

// Segment is the customer segment a threshold applies to.
type Segment string

const (
	SegmentNormal    Segment = "normal"
	SegmentVIP       Segment = "vip"
	SegmentCorporate Segment = "corporate"
)

// DefaultBaseCurrency is the ledger currency of the branch.
const DefaultBaseCurrency = "ETB"

// Thresholds holds the base-currency limits per (type, segment) and the
// per-currency limits applied to foreign-currency transactions.
type Thresholds struct {
	BaseCurrency string
	Base         map[TransactionType]map[Segment]float64
	Foreign      map[string]float64
}

// TransactionCheck is the input to approval evaluation.
type TransactionCheck struct {
	Type     TransactionType
	Amount   float64
	Currency string
	Segment  Segment
}

// ApprovalDecision is the outcome of threshold evaluation.
type ApprovalDecision struct {
	Required      bool
	Reason        string
	ApproverRoles RoleSet
}

// Evaluate applies the foreign-currency limit first. Only when it does not
// trigger is the base limit for (type, segment) consulted. A segment without
// its own limit falls back to the normal segment; an unknown transaction type
// has no base limit.
func (t Thresholds) Evaluate(check TransactionCheck, approvers RoleSet) ApprovalDecision {
	currency := strings.ToUpper(strings.TrimSpace(check.Currency))
	if currency == "" {
		currency = t.BaseCurrency
	}

	if currency != t.BaseCurrency {
		if limit, ok := t.Foreign[currency]; ok && check.Amount > limit {
			return ApprovalDecision{
				Required: true,
				Reason: fmt.Sprintf("foreign currency amount %.2f %s exceeds limit of %.2f %s",
					check.Amount, currency, limit, currency),
				ApproverRoles: approvers,
			}
		}
	}

	if limit, ok := t.baseLimit(check.Type, check.Segment); ok && check.Amount > limit {
		return ApprovalDecision{
			Required: true,
			Reason: fmt.Sprintf("amount %.2f %s exceeds %s limit of %.2f %s for %s customers",
				check.Amount, currency, check.Type, limit, t.BaseCurrency, segmentOrDefault(check.Segment)),
			ApproverRoles: approvers,
		}
	}

	return ApprovalDecision{Required: false, Reason: "within approval limits", ApproverRoles: RoleSet{}}
}

func (t Thresholds) baseLimit(txType TransactionType, segment Segment) (float64, bool) {
	bySegment, ok := t.Base[txType]
	if !ok {
		return 0, false
	}
	if limit, ok := bySegment[segmentOrDefault(segment)]; ok {
		return limit, true
	}
	limit, ok := bySegment[SegmentNormal]
	return limit, ok
}

func segmentOrDefault(s Segment) Segment {
	if s == "" {
		return SegmentNormal
	}
	return s
}

func defaultThresholds() Thresholds {
	return Thresholds{
		BaseCurrency: DefaultBaseCurrency,
		Base: map[TransactionType]map[Segment]float64{
			TransactionDeposit: {
				SegmentNormal: 1_000_000, SegmentVIP: 5_000_000, SegmentCorporate: 10_000_000,
			},
			TransactionWithdrawal: {
				SegmentNormal: 500_000, SegmentVIP: 1_000_000, SegmentCorporate: 2_000_000,
			},
			TransactionTransfer: {
				SegmentNormal: 500_000, SegmentVIP: 1_500_000, SegmentCorporate: 3_000_000,
			},
			TransactionRTGS: {
				SegmentNormal: 1_000_000, SegmentVIP: 2_000_000, SegmentCorporate: 5_000_000,
			},
		},
		Foreign: map[string]float64{
			"USD": 5_000,
			"EUR": 5_000,
			"GBP": 4_000,
			"AED": 20_000,
			"SAR": 20_000,
			"CNY": 35_000,
		},
	}
}
