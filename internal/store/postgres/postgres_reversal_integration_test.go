package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/store"
)

func TestReversalUniquePerSale(t *testing.T) {
	databaseURL := os.Getenv("LEDGERDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LEDGERDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	saleID := fmt.Sprintf("sale-rev-it-%d", stamp)
	userID := fmt.Sprintf("user-rev-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_reversals WHERE original_sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	})

	now := time.Now().UTC()
	if _, err := s.CreateSale(ctx, domain.SaleRecord{
		ID:              saleID,
		UserID:          userID,
		ProductName:     "Integration Widget",
		ProductKey:      "integration widget",
		AmountCents:     4200,
		Quantity:        1,
		PaymentMethod:   domain.PaymentCash,
		AmountPaidCents: 4200,
		CustomerPhone:   domain.WalkInCustomer,
		PurchaseDate:    now,
	}); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	first := domain.SaleReversal{
		ID:             fmt.Sprintf("rev-it-a-%d", stamp),
		OriginalSaleID: saleID,
		Reason:         "integration test reversal",
		ReversalDate:   now,
	}
	if _, err := s.CreateReversal(ctx, first); err != nil {
		t.Fatalf("first reversal: %v", err)
	}

	second := first
	second.ID = fmt.Sprintf("rev-it-b-%d", stamp)
	if _, err := s.CreateReversal(ctx, second); !errors.Is(err, store.ErrDuplicateReversal) {
		t.Fatalf("expected duplicate reversal error, got %v", err)
	}

	reversals, err := s.ListReversalsBySaleIDs(ctx, []string{saleID})
	if err != nil {
		t.Fatalf("list reversals: %v", err)
	}
	if len(reversals) != 1 || reversals[0].ID != first.ID {
		t.Fatalf("expected exactly the first reversal, got %+v", reversals)
	}

	// The raw sale row stays untouched.
	sale, err := s.GetSaleByID(ctx, saleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.AmountCents != 4200 || sale.PaymentMethod != domain.PaymentCash {
		t.Fatalf("sale row mutated: %+v", sale)
	}
}
