package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/reconcile"
	"ledgerdesk/backend/internal/store"
	"ledgerdesk/backend/internal/store/memory"
)

func seedSale(t *testing.T, repo store.Repository, id string, method string, amount int64) {
	t.Helper()
	_, err := repo.CreateSale(context.Background(), domain.SaleRecord{
		ID:              id,
		UserID:          "user-1",
		ProductName:     "Widget",
		ProductKey:      "widget",
		AmountCents:     amount,
		Quantity:        1,
		PaymentMethod:   method,
		AmountPaidCents: amount,
		CustomerPhone:   domain.WalkInCustomer,
		PurchaseDate:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed sale %s: %v", id, err)
	}
}

func TestEffectiveSalesFiltersReversedAfterReconciliation(t *testing.T) {
	repo := memory.New()
	reader := NewReader(repo)
	ctx := context.Background()

	seedSale(t, repo, "s1", domain.PaymentCash, 1000)
	seedSale(t, repo, "s2", domain.PaymentCash, 2000)
	if _, err := repo.CreateReversal(ctx, domain.SaleReversal{
		ID:             "r1",
		OriginalSaleID: "s2",
		Reason:         "returned",
		ReversalDate:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed reversal: %v", err)
	}

	live, err := reader.EffectiveSales(ctx, "user-1", Query{})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(live) != 1 || live[0].ID != "s1" {
		t.Fatalf("expected only s1 live, got %+v", live)
	}

	all, err := reader.EffectiveSales(ctx, "user-1", Query{IncludeReversed: true})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both rows with IncludeReversed, got %d", len(all))
	}
}

func TestEffectiveSalesLiveCreditIsNotReversed(t *testing.T) {
	repo := memory.New()
	reader := NewReader(repo)
	ctx := context.Background()

	_, err := repo.CreateSale(ctx, domain.SaleRecord{
		ID:              "c1",
		UserID:          "user-1",
		ProductName:     "Widget",
		ProductKey:      "widget",
		AmountCents:     10000,
		Quantity:        1,
		PaymentMethod:   domain.PaymentCredit,
		AmountPaidCents: 0,
		CustomerPhone:   "0788000001",
		PurchaseDate:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed credit sale: %v", err)
	}

	live, err := reader.EffectiveSales(ctx, "user-1", Query{})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("unpaid credit sale must stay live, got %+v", live)
	}
	if live[0].OutstandingCreditCents != 10000 {
		t.Fatalf("outstanding = %d, want 10000", live[0].OutstandingCreditCents)
	}
}

func TestEffectiveSalesInconsistencyAborts(t *testing.T) {
	repo := &orphanInjectingRepo{Repository: memory.New()}
	reader := NewReader(repo)
	ctx := context.Background()

	seedSale(t, repo, "s1", domain.PaymentCash, 1000)

	_, err := reader.EffectiveSales(ctx, "user-1", Query{})
	var inc *reconcile.InconsistencyError
	if !errors.As(err, &inc) || inc.Kind != reconcile.InconsistencyOrphanReversal {
		t.Fatalf("expected orphan inconsistency, got %v", err)
	}
}

// orphanInjectingRepo returns a reversal pointing at a sale id that is not in
// the listing, simulating a corrupted side channel.
type orphanInjectingRepo struct {
	store.Repository
}

func (r *orphanInjectingRepo) ListReversalsBySaleIDs(ctx context.Context, saleIDs []string) ([]domain.SaleReversal, error) {
	return []domain.SaleReversal{{
		ID:             "r-bad",
		OriginalSaleID: "not-a-known-sale",
		Reason:         "corrupt",
		ReversalDate:   time.Now().UTC(),
	}}, nil
}
