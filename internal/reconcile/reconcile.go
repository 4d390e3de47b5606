// Package reconcile derives the effective view of raw sale records by
// applying reversal markers and credit settlements at read time. Everything
// here is pure: no I/O, no hidden state, same input always yields the same
// output.
package reconcile

import (
	"fmt"
	"strings"

	"ledgerdesk/backend/internal/domain"
)

const (
	InconsistencyOrphanReversal    = "orphan_reversal"
	InconsistencyDuplicateReversal = "duplicate_reversal"
)

// InconsistencyError reports a reversal set that cannot be applied safely:
// a reversal pointing at an unknown sale, or two reversals pointing at the
// same sale. Callers must reject the computation rather than produce totals
// from inconsistent inputs.
type InconsistencyError struct {
	Kind   string
	SaleID string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("reconciliation inconsistency (%s) for sale %s", e.Kind, e.SaleID)
}

// ProductKey normalizes a free-text product name into the key used for all
// grouping and joins. The display name keeps its original casing.
func ProductKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ReversedIDSet collects the original sale ids referenced by a reversal set.
func ReversedIDSet(reversals []domain.SaleReversal) map[string]struct{} {
	set := make(map[string]struct{}, len(reversals))
	for _, rev := range reversals {
		set[rev.OriginalSaleID] = struct{}{}
	}
	return set
}

// SettledCentsBySale sums settlement amounts per sale id.
func SettledCentsBySale(settlements []domain.CreditSettlement) map[string]int64 {
	totals := make(map[string]int64, len(settlements))
	for _, s := range settlements {
		totals[s.SaleID] += s.AmountCents
	}
	return totals
}

// CheckConsistency validates a reversal set against the raw rows it is about
// to be applied to. Returns the first inconsistency found, or nil.
func CheckConsistency(raw []domain.SaleRecord, reversals []domain.SaleReversal) error {
	known := make(map[string]struct{}, len(raw))
	for _, sale := range raw {
		known[sale.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(reversals))
	for _, rev := range reversals {
		if _, ok := known[rev.OriginalSaleID]; !ok {
			return &InconsistencyError{Kind: InconsistencyOrphanReversal, SaleID: rev.OriginalSaleID}
		}
		if _, dup := seen[rev.OriginalSaleID]; dup {
			return &InconsistencyError{Kind: InconsistencyDuplicateReversal, SaleID: rev.OriginalSaleID}
		}
		seen[rev.OriginalSaleID] = struct{}{}
	}
	return nil
}

// Reconcile maps raw sale rows 1:1, in input order, to their effective view.
//
// A row counts as reversed when its payment method is already "reversed"
// (legacy zeroed rows) or its id appears in the reversed set. Reversed rows
// get zero effective amount and quantity. A missing quantity on a live row
// defaults to 1; whether that default should instead be 0 is an open data
// question, so the legacy behavior is kept.
//
// Outstanding credit is only carried by live credit rows: amount minus
// amount_paid minus recorded settlements, clamped at zero.
func Reconcile(raw []domain.SaleRecord, reversed map[string]struct{}, settled map[string]int64) []domain.EffectiveSale {
	effective := make([]domain.EffectiveSale, 0, len(raw))
	for _, sale := range raw {
		es := domain.EffectiveSale{SaleRecord: sale}

		if _, hit := reversed[sale.ID]; hit || sale.PaymentMethod == domain.PaymentReversed {
			es.IsReversed = true
			effective = append(effective, es)
			continue
		}

		es.EffectiveAmountCents = sale.AmountCents
		es.EffectiveQuantity = sale.Quantity
		if es.EffectiveQuantity < 1 {
			es.EffectiveQuantity = 1
		}

		if sale.PaymentMethod == domain.PaymentCredit {
			outstanding := sale.AmountCents - sale.AmountPaidCents - settled[sale.ID]
			if outstanding < 0 {
				outstanding = 0
			}
			es.OutstandingCreditCents = outstanding
		}

		effective = append(effective, es)
	}
	return effective
}
