package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/store"
)

func TestCreateReversalEnforcesUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := domain.SaleReversal{ID: "r1", OriginalSaleID: "s1", Reason: "x"}
	if _, err := s.CreateReversal(ctx, first); err != nil {
		t.Fatalf("first reversal: %v", err)
	}

	second := domain.SaleReversal{ID: "r2", OriginalSaleID: "s1", Reason: "y"}
	if _, err := s.CreateReversal(ctx, second); !errors.Is(err, store.ErrDuplicateReversal) {
		t.Fatalf("expected duplicate reversal error, got %v", err)
	}
}

func TestCustomerAggregateClampsAtZero(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Now().UTC()

	if err := s.ApplyCustomerSale(ctx, "0788000001", 1000, at); err != nil {
		t.Fatalf("apply sale: %v", err)
	}
	if err := s.ApplyCustomerReversal(ctx, "0788000001", 5000); err != nil {
		t.Fatalf("apply reversal: %v", err)
	}

	agg, err := s.GetCustomerAggregate(ctx, "0788000001")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if agg.TotalPurchasesCents != 0 || agg.TotalSalesCount != 0 {
		t.Fatalf("aggregate went negative: %+v", agg)
	}
}

func TestWalkInCustomersAreNotTracked(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.ApplyCustomerSale(ctx, domain.WalkInCustomer, 1000, time.Now().UTC()); err != nil {
		t.Fatalf("apply sale: %v", err)
	}
	if _, err := s.GetCustomerAggregate(ctx, domain.WalkInCustomer); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("walk-in must not create an aggregate, got %v", err)
	}
}

func TestListSalesFiltersWindowAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.CreateSale(ctx, domain.SaleRecord{
			ID:           string(rune('a' + i)),
			UserID:       "user-1",
			ProductName:  "Widget",
			ProductKey:   "widget",
			AmountCents:  100,
			Quantity:     1,
			PurchaseDate: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("seed sale %d: %v", i, err)
		}
	}

	sales, err := s.ListSales(ctx, "user-1", store.SaleFilter{
		From: base.AddDate(0, 0, 1),
		To:   base.AddDate(0, 0, 4),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sales) != 3 {
		t.Fatalf("window [day1, day4) should hold 3 sales, got %d", len(sales))
	}

	limited, err := s.ListSales(ctx, "user-1", store.SaleFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[1].PurchaseDate.Before(limited[0].PurchaseDate) {
		t.Fatalf("limit should keep the newest rows in order, got %+v", limited)
	}
}
