package store

import (
	"context"
	"errors"
	"time"

	"ledgerdesk/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateReversal = errors.New("sale already reversed")
)

// SaleFilter narrows sale/expense listings. Zero From means all history;
// zero To means up to now. Limit <= 0 means no limit.
type SaleFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type Repository interface {
	CreateSale(ctx context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error)
	GetSaleByID(ctx context.Context, id string) (*domain.SaleRecord, error)
	ListSales(ctx context.Context, userID string, filter SaleFilter) ([]domain.SaleRecord, error)

	CreateReversal(ctx context.Context, reversal domain.SaleReversal) (*domain.SaleReversal, error)
	ListReversalsBySaleIDs(ctx context.Context, saleIDs []string) ([]domain.SaleReversal, error)

	CreateMovement(ctx context.Context, movement domain.InventoryMovement) error
	GetStockLevels(ctx context.Context, userID string, productKeys []string) (map[string]int, error)

	ApplyCustomerSale(ctx context.Context, phone string, amountCents int64, at time.Time) error
	ApplyCustomerReversal(ctx context.Context, phone string, amountCents int64) error
	GetCustomerAggregate(ctx context.Context, phone string) (*domain.CustomerAggregate, error)
	ListCustomerAggregates(ctx context.Context) ([]domain.CustomerAggregate, error)

	CreateGoal(ctx context.Context, goal domain.SalesGoal) (*domain.SalesGoal, error)
	ListGoals(ctx context.Context, userID string, activeOnly bool) ([]domain.SalesGoal, error)
	DeactivateGoals(ctx context.Context, userID string, goalType string) error

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, userID string, filter SaleFilter) ([]domain.Expense, error)

	CreateSettlement(ctx context.Context, settlement domain.CreditSettlement) (*domain.CreditSettlement, error)
	ListSettlementsBySaleIDs(ctx context.Context, saleIDs []string) ([]domain.CreditSettlement, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
