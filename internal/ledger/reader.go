// Package ledger is the read side of the sales ledger: it fetches raw sale
// rows together with their reversal and settlement side channels and hands
// back the reconciled effective view. It never retries and never returns
// partial results; store failures abort the whole read.
package ledger

import (
	"context"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/reconcile"
	"ledgerdesk/backend/internal/store"
)

// Query narrows a ledger read. IncludeReversed keeps reversed rows in the
// result; filtering happens after reconciliation so that live unpaid credit
// sales are never confused with reversed (zeroed) ones.
type Query struct {
	From            store.SaleFilter
	IncludeReversed bool
}

type Reader struct {
	repo store.Repository
}

func NewReader(repo store.Repository) *Reader {
	return &Reader{repo: repo}
}

// EffectiveSales reads raw rows plus the reversal set for their ids, checks
// the reversal set for inconsistencies, reconciles, and filters.
func (r *Reader) EffectiveSales(ctx context.Context, userID string, q Query) ([]domain.EffectiveSale, error) {
	raw, err := r.repo.ListSales(ctx, userID, q.From)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []domain.EffectiveSale{}, nil
	}

	ids := make([]string, 0, len(raw))
	creditIDs := make([]string, 0, 8)
	for _, sale := range raw {
		ids = append(ids, sale.ID)
		if sale.PaymentMethod == domain.PaymentCredit {
			creditIDs = append(creditIDs, sale.ID)
		}
	}

	reversals, err := r.repo.ListReversalsBySaleIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := reconcile.CheckConsistency(raw, reversals); err != nil {
		return nil, err
	}

	settled := map[string]int64{}
	if len(creditIDs) > 0 {
		settlements, err := r.repo.ListSettlementsBySaleIDs(ctx, creditIDs)
		if err != nil {
			return nil, err
		}
		settled = reconcile.SettledCentsBySale(settlements)
	}

	effective := reconcile.Reconcile(raw, reconcile.ReversedIDSet(reversals), settled)
	if q.IncludeReversed {
		return effective, nil
	}

	live := make([]domain.EffectiveSale, 0, len(effective))
	for _, sale := range effective {
		if sale.IsReversed {
			continue
		}
		live = append(live, sale)
	}
	return live, nil
}
