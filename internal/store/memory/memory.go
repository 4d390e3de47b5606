// Package memory is the in-memory Repository used for dev/demo mode and
// tests. It mirrors the PostgreSQL store's semantics, including the unique
// reversal-per-sale constraint, so service tests exercise the same failure
// paths the production store produces.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/store"
)

type Store struct {
	mu                sync.RWMutex
	salesByID         map[string]domain.SaleRecord
	saleOrder         []string
	reversalsBySaleID map[string]domain.SaleReversal
	movements         []domain.InventoryMovement
	stockByUser       map[string]map[string]int
	customersByPhone  map[string]domain.CustomerAggregate
	goalsByID         map[string]domain.SalesGoal
	goalOrder         []string
	expensesByID      map[string]domain.Expense
	expenseOrder      []string
	settlementsBySale map[string][]domain.CreditSettlement
	usersByUsername   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		salesByID:         make(map[string]domain.SaleRecord),
		reversalsBySaleID: make(map[string]domain.SaleReversal),
		movements:         make([]domain.InventoryMovement, 0, 128),
		stockByUser:       make(map[string]map[string]int),
		customersByPhone:  make(map[string]domain.CustomerAggregate),
		goalsByID:         make(map[string]domain.SalesGoal),
		expensesByID:      make(map[string]domain.Expense),
		settlementsBySale: make(map[string][]domain.CreditSettlement),
		usersByUsername:   make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) CreateSale(_ context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.salesByID[sale.ID]; ok {
		return nil, store.ErrValidation
	}
	s.salesByID[sale.ID] = sale
	s.saleOrder = append(s.saleOrder, sale.ID)
	return &sale, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, userID string, filter store.SaleFilter) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleRecord, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.UserID != userID {
			continue
		}
		if !filter.From.IsZero() && sale.PurchaseDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.PurchaseDate.Before(filter.To) {
			continue
		}
		out = append(out, sale)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchaseDate.Before(out[j].PurchaseDate)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// CreateReversal enforces only the at-most-one-reversal-per-sale constraint,
// like the unique index in PostgreSQL. Existence of the original sale is a
// workflow concern checked in the service layer.
func (s *Store) CreateReversal(_ context.Context, reversal domain.SaleReversal) (*domain.SaleReversal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reversalsBySaleID[reversal.OriginalSaleID]; ok {
		return nil, store.ErrDuplicateReversal
	}
	s.reversalsBySaleID[reversal.OriginalSaleID] = reversal
	return &reversal, nil
}

func (s *Store) ListReversalsBySaleIDs(_ context.Context, saleIDs []string) ([]domain.SaleReversal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SaleReversal, 0, 8)
	for _, id := range saleIDs {
		if rev, ok := s.reversalsBySaleID[id]; ok {
			out = append(out, rev)
		}
	}
	return out, nil
}

func (s *Store) CreateMovement(_ context.Context, movement domain.InventoryMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movements = append(s.movements, movement)
	levels, ok := s.stockByUser[movement.UserID]
	if !ok {
		levels = make(map[string]int)
		s.stockByUser[movement.UserID] = levels
	}
	switch movement.MovementType {
	case domain.MovementSold:
		levels[movement.ProductKey] -= movement.Quantity
	case domain.MovementReceived, domain.MovementReturned:
		levels[movement.ProductKey] += movement.Quantity
	default:
		return store.ErrValidation
	}
	return nil
}

func (s *Store) GetStockLevels(_ context.Context, userID string, productKeys []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(productKeys))
	levels := s.stockByUser[userID]
	for _, key := range productKeys {
		out[key] = levels[key]
	}
	return out, nil
}

func (s *Store) ApplyCustomerSale(_ context.Context, phone string, amountCents int64, at time.Time) error {
	phone = strings.TrimSpace(phone)
	if phone == "" || phone == domain.WalkInCustomer {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.customersByPhone[phone]
	if !ok {
		agg = domain.CustomerAggregate{CustomerPhone: phone, FirstPurchaseDate: at}
	}
	agg.TotalPurchasesCents += amountCents
	agg.TotalSalesCount++
	if at.After(agg.LastPurchaseDate) {
		agg.LastPurchaseDate = at
	}
	s.customersByPhone[phone] = agg
	return nil
}

func (s *Store) ApplyCustomerReversal(_ context.Context, phone string, amountCents int64) error {
	phone = strings.TrimSpace(phone)
	if phone == "" || phone == domain.WalkInCustomer {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.customersByPhone[phone]
	if !ok {
		return nil
	}
	agg.TotalPurchasesCents -= amountCents
	if agg.TotalPurchasesCents < 0 {
		agg.TotalPurchasesCents = 0
	}
	agg.TotalSalesCount--
	if agg.TotalSalesCount < 0 {
		agg.TotalSalesCount = 0
	}
	s.customersByPhone[phone] = agg
	return nil
}

func (s *Store) GetCustomerAggregate(_ context.Context, phone string) (*domain.CustomerAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.customersByPhone[strings.TrimSpace(phone)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &agg, nil
}

func (s *Store) ListCustomerAggregates(_ context.Context) ([]domain.CustomerAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CustomerAggregate, 0, len(s.customersByPhone))
	for _, agg := range s.customersByPhone {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CustomerPhone < out[j].CustomerPhone
	})
	return out, nil
}

func (s *Store) CreateGoal(_ context.Context, goal domain.SalesGoal) (*domain.SalesGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goalsByID[goal.ID]; ok {
		return nil, store.ErrValidation
	}
	s.goalsByID[goal.ID] = goal
	s.goalOrder = append(s.goalOrder, goal.ID)
	return &goal, nil
}

func (s *Store) ListGoals(_ context.Context, userID string, activeOnly bool) ([]domain.SalesGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SalesGoal, 0, len(s.goalOrder))
	for _, id := range s.goalOrder {
		goal := s.goalsByID[id]
		if goal.UserID != userID {
			continue
		}
		if activeOnly && !goal.Active {
			continue
		}
		out = append(out, goal)
	}
	return out, nil
}

func (s *Store) DeactivateGoals(_ context.Context, userID string, goalType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, goal := range s.goalsByID {
		if goal.UserID == userID && goal.GoalType == goalType && goal.Active {
			goal.Active = false
			s.goalsByID[id] = goal
		}
	}
	return nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expensesByID[expense.ID]; ok {
		return nil, store.ErrValidation
	}
	s.expensesByID[expense.ID] = expense
	s.expenseOrder = append(s.expenseOrder, expense.ID)
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, userID string, filter store.SaleFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Expense, 0, len(s.expenseOrder))
	for _, id := range s.expenseOrder {
		expense := s.expensesByID[id]
		if expense.UserID != userID {
			continue
		}
		if !filter.From.IsZero() && expense.ExpenseDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !expense.ExpenseDate.Before(filter.To) {
			continue
		}
		out = append(out, expense)
	}
	return out, nil
}

func (s *Store) CreateSettlement(_ context.Context, settlement domain.CreditSettlement) (*domain.CreditSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlementsBySale[settlement.SaleID] = append(s.settlementsBySale[settlement.SaleID], settlement)
	return &settlement, nil
}

func (s *Store) ListSettlementsBySaleIDs(_ context.Context, saleIDs []string) ([]domain.CreditSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CreditSettlement, 0, 8)
	for _, id := range saleIDs {
		out = append(out, s.settlementsBySale[id]...)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByUsername[user.Username]; ok {
		return store.ErrValidation
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
