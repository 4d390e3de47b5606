// Package service orchestrates the business workflows: record/reverse sales,
// dashboard metrics, period reports, goals, expenses, and credit
// settlements. Validation happens here; the stores only enforce storage
// constraints.
package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"ledgerdesk/backend/internal/analytics"
	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/events"
	"ledgerdesk/backend/internal/ledger"
	"ledgerdesk/backend/internal/reconcile"
	"ledgerdesk/backend/internal/store"
	"ledgerdesk/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var validPayments = map[string]bool{
	domain.PaymentCash:         true,
	domain.PaymentMobileMoney:  true,
	domain.PaymentBankTransfer: true,
	domain.PaymentCard:         true,
	domain.PaymentCredit:       true,
}

type Service struct {
	repo   store.Repository
	reader *ledger.Reader
	agg    *analytics.Aggregator
	bus    events.Bus
	gate   *events.LatestGate
}

func New(repo store.Repository, reader *ledger.Reader, agg *analytics.Aggregator, bus events.Bus) *Service {
	if bus == nil {
		bus = events.NewMemoryBus()
	}
	return &Service{
		repo:   repo,
		reader: reader,
		agg:    agg,
		bus:    bus,
		gate:   events.NewLatestGate(),
	}
}

func (s *Service) publishSalesChanged(ctx context.Context, entityID string) {
	err := s.bus.Publish(ctx, events.Event{
		Kind:     events.KindSalesChanged,
		EntityID: entityID,
		At:       time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[service] WARN: failed to publish sales-changed event for %s: %v", entityID, err)
	}
}

// RecordSale validates and persists one sale line item, updates stock and
// the customer aggregate, and announces the change on the bus.
func (s *Service) RecordSale(ctx context.Context, userID string, req domain.RecordSaleRequest) (*domain.EffectiveSale, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)

	if req.ProductName == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrValidation)
	}
	if req.AmountCents < 1 {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if req.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", store.ErrValidation)
	}
	if !validPayments[req.PaymentMethod] {
		return nil, fmt.Errorf("%w: unknown payment method %q", store.ErrValidation, req.PaymentMethod)
	}
	if req.PaymentMethod == domain.PaymentCredit {
		if req.AmountPaidCents < 0 || req.AmountPaidCents > req.AmountCents {
			return nil, fmt.Errorf("%w: amount paid must be between 0 and the sale amount", store.ErrValidation)
		}
		if req.CustomerPhone == "" || req.CustomerPhone == domain.WalkInCustomer {
			return nil, fmt.Errorf("%w: credit sales require a customer phone", store.ErrValidation)
		}
	} else {
		// Non-credit sales are paid in full at the counter.
		req.AmountPaidCents = req.AmountCents
	}
	if req.CustomerPhone == "" {
		req.CustomerPhone = domain.WalkInCustomer
	}

	now := time.Now().UTC()
	sale := domain.SaleRecord{
		ID:              xid.New("sale"),
		UserID:          userID,
		ProductName:     req.ProductName,
		ProductKey:      reconcile.ProductKey(req.ProductName),
		AmountCents:     req.AmountCents,
		Quantity:        req.Quantity,
		PaymentMethod:   req.PaymentMethod,
		AmountPaidCents: req.AmountPaidCents,
		CustomerPhone:   req.CustomerPhone,
		PurchaseDate:    now,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, err
	}

	soldQty := created.Quantity
	if soldQty < 1 {
		soldQty = 1
	}
	if err := s.repo.CreateMovement(ctx, domain.InventoryMovement{
		ID:           xid.New("mov"),
		UserID:       userID,
		ProductKey:   created.ProductKey,
		MovementType: domain.MovementSold,
		Quantity:     soldQty,
		SaleID:       created.ID,
		MovementDate: now,
	}); err != nil {
		log.Printf("[service] WARN: failed to record stock movement for sale %s: %v", created.ID, err)
	}
	if err := s.repo.ApplyCustomerSale(ctx, created.CustomerPhone, created.AmountCents, now); err != nil {
		log.Printf("[service] WARN: failed to update customer aggregate for sale %s: %v", created.ID, err)
	}

	s.publishSalesChanged(ctx, created.ID)

	effective := reconcile.Reconcile([]domain.SaleRecord{*created}, nil, nil)
	return &effective[0], nil
}

// ReverseSale records an append-only reversal against an existing sale. The
// original row is never touched; its effect is nullified at read time. A
// second reversal of the same sale fails both in the workflow check here and
// in the store's unique constraint.
func (s *Service) ReverseSale(ctx context.Context, userID string, req domain.ReverseSaleRequest) (*domain.ReverseSaleResponse, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SaleID == "" {
		return nil, fmt.Errorf("%w: sale id is required", store.ErrValidation)
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("%w: reversal reason is required", store.ErrValidation)
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}
	if sale.UserID != userID {
		return nil, store.ErrNotFound
	}
	if sale.PaymentMethod == domain.PaymentReversed {
		return nil, fmt.Errorf("%w: sale was already reversed", store.ErrDuplicateReversal)
	}

	existing, err := s.repo.ListReversalsBySaleIDs(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, store.ErrDuplicateReversal
	}

	now := time.Now().UTC()
	reversal := domain.SaleReversal{
		ID:             xid.New("rev"),
		OriginalSaleID: sale.ID,
		Reason:         req.Reason,
		ReceiptNumber:  strings.TrimSpace(req.ReceiptNumber),
		ReversalDate:   now,
	}

	created, err := s.repo.CreateReversal(ctx, reversal)
	if err != nil {
		return nil, err
	}

	restock := sale.Quantity
	if restock < 1 {
		restock = 1
	}
	if err := s.repo.CreateMovement(ctx, domain.InventoryMovement{
		ID:           xid.New("mov"),
		UserID:       userID,
		ProductKey:   sale.ProductKey,
		MovementType: domain.MovementReturned,
		Quantity:     restock,
		SaleID:       sale.ID,
		MovementDate: now,
	}); err != nil {
		log.Printf("[service] WARN: failed to restock after reversal of sale %s: %v", sale.ID, err)
		restock = 0
	}
	if err := s.repo.ApplyCustomerReversal(ctx, sale.CustomerPhone, sale.AmountCents); err != nil {
		log.Printf("[service] WARN: failed to roll back customer aggregate for sale %s: %v", sale.ID, err)
	}

	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] sale %s reversed by %s: %s", sale.ID, actor.Username, req.Reason)

	s.publishSalesChanged(ctx, sale.ID)

	return &domain.ReverseSaleResponse{Reversal: *created, RestockedQty: restock}, nil
}

// ListSales returns reconciled sales for a window. Reversed rows are kept in
// listings so the owner can see what was undone.
func (s *Service) ListSales(ctx context.Context, userID string, filter store.SaleFilter) ([]domain.EffectiveSale, error) {
	return s.reader.EffectiveSales(ctx, userID, ledger.Query{From: filter, IncludeReversed: true})
}

// Dashboard computes the full dashboard from all sales history. It is
// recomputed from the ledger on every call; when a newer request for the same
// user starts while this one is in flight, this one's result is discarded.
// Any store failure aborts the whole computation instead of returning
// partial figures.
func (s *Service) Dashboard(ctx context.Context, userID string) (*domain.DashboardResponse, error) {
	ticket := s.gate.Begin(userID)
	now := time.Now().UTC()

	sales, err := s.reader.EffectiveSales(ctx, userID, ledger.Query{})
	if err != nil {
		return nil, err
	}

	metrics := s.agg.ComputeMetrics(sales, now)
	debtCleared := s.agg.EstimateDebtCleared(sales, analytics.WeekStart(now), now)

	goals, err := s.goalProgress(ctx, userID, sales, now)
	if err != nil {
		return nil, err
	}

	if !s.gate.Current(userID, ticket) {
		return nil, ErrSuperseded
	}

	return &domain.DashboardResponse{
		Metrics:              metrics,
		DebtClearedWeekCents: debtCleared,
		Goals:                goals,
		GeneratedAt:          now.Format(time.RFC3339),
	}, nil
}

// ErrSuperseded signals that a newer dashboard request for the same user
// started while this one was computing. The caller drops the response.
var ErrSuperseded = fmt.Errorf("computation superseded by a newer request")

func (s *Service) goalProgress(ctx context.Context, userID string, sales []domain.EffectiveSale, now time.Time) ([]domain.GoalProgress, error) {
	goals, err := s.repo.ListGoals(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	out := make([]domain.GoalProgress, 0, len(goals))
	for _, goal := range goals {
		var achieved int64
		for _, sale := range sales {
			if sale.IsReversed {
				continue
			}
			if sale.PurchaseDate.Before(goal.PeriodStart) || !sale.PurchaseDate.Before(goal.PeriodEnd) {
				continue
			}
			achieved += sale.EffectiveAmountCents
		}
		progress := domain.GoalProgress{Goal: goal, AchievedCents: achieved}
		if goal.TargetAmountCents > 0 {
			progress.ProgressRatio = math.Round(float64(achieved)/float64(goal.TargetAmountCents)*10000) / 10000
		}
		out = append(out, progress)
	}
	return out, nil
}

// PeriodReport builds the revenue/cost/profit figures for [from, to).
// Reversed rows stay in the row listing (counted, zero-valued) so the report
// explains itself; totals come only from effective amounts.
func (s *Service) PeriodReport(ctx context.Context, userID string, from, to time.Time) (*domain.PeriodReport, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: report window must end after it starts", store.ErrValidation)
	}

	filter := store.SaleFilter{From: from, To: to}
	rows, err := s.reader.EffectiveSales(ctx, userID, ledger.Query{From: filter, IncludeReversed: true})
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	report := domain.PeriodReport{
		UserID: userID,
		From:   from.Format(time.RFC3339),
		To:     to.Format(time.RFC3339),
		Rows:   rows,
	}
	for _, row := range rows {
		if row.IsReversed {
			report.ReversedCount++
			continue
		}
		report.SalesCount++
		report.RevenueCents += row.EffectiveAmountCents
		if row.PaymentMethod == domain.PaymentCredit {
			report.CreditSalesCents += row.EffectiveAmountCents
			report.CreditOutstandingCents += row.OutstandingCreditCents
		}
	}
	for _, expense := range expenses {
		if expense.Category == domain.ExpenseCategoryStock {
			report.CostCents += expense.AmountCents
		} else {
			report.ExpensesCents += expense.AmountCents
		}
	}
	report.ProfitCents = report.RevenueCents - report.CostCents - report.ExpensesCents

	return &report, nil
}

// SetSalesGoal creates a goal, deactivating any previous active goal of the
// same type so at most one is live per type.
func (s *Service) SetSalesGoal(ctx context.Context, userID string, req domain.GoalCreateRequest) (*domain.SalesGoal, error) {
	req.GoalType = strings.ToLower(strings.TrimSpace(req.GoalType))
	switch req.GoalType {
	case domain.GoalDaily, domain.GoalWeekly, domain.GoalMonthly, domain.GoalYearly:
	default:
		return nil, fmt.Errorf("%w: unknown goal type %q", store.ErrValidation, req.GoalType)
	}
	if req.TargetAmountCents < 1 {
		return nil, fmt.Errorf("%w: goal target must be positive", store.ErrValidation)
	}

	start, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("%w: period_start must be YYYY-MM-DD", store.ErrValidation)
	}
	end, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: period_end must be YYYY-MM-DD", store.ErrValidation)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: goal period must end after it starts", store.ErrValidation)
	}

	if err := s.repo.DeactivateGoals(ctx, userID, req.GoalType); err != nil {
		return nil, err
	}

	goal := domain.SalesGoal{
		ID:                xid.New("goal"),
		UserID:            userID,
		GoalType:          req.GoalType,
		TargetAmountCents: req.TargetAmountCents,
		PeriodStart:       start,
		PeriodEnd:         end,
		Active:            true,
		CreatedAt:         time.Now().UTC(),
	}
	return s.repo.CreateGoal(ctx, goal)
}

func (s *Service) ListGoals(ctx context.Context, userID string, activeOnly bool) ([]domain.SalesGoal, error) {
	return s.repo.ListGoals(ctx, userID, activeOnly)
}

func (s *Service) RecordExpense(ctx context.Context, userID string, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if req.Description == "" {
		return nil, fmt.Errorf("%w: expense description is required", store.ErrValidation)
	}
	if req.Category == "" {
		req.Category = "general"
	}
	if req.AmountCents < 1 {
		return nil, fmt.Errorf("%w: expense amount must be positive", store.ErrValidation)
	}

	expense := domain.Expense{
		ID:          xid.New("exp"),
		UserID:      userID,
		Description: req.Description,
		Category:    req.Category,
		AmountCents: req.AmountCents,
		ExpenseDate: time.Now().UTC(),
	}
	return s.repo.CreateExpense(ctx, expense)
}

func (s *Service) ListExpenses(ctx context.Context, userID string, filter store.SaleFilter) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, userID, filter)
}

// RecordCreditPayment settles part of one credit sale's outstanding balance.
// The payment may never exceed what is currently outstanding.
func (s *Service) RecordCreditPayment(ctx context.Context, userID string, req domain.CreditPaymentRequest) (*domain.CreditPaymentResponse, error) {
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return nil, fmt.Errorf("%w: sale id is required", store.ErrValidation)
	}
	if req.AmountCents < 1 {
		return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return nil, err
	}
	if sale.UserID != userID {
		return nil, store.ErrNotFound
	}
	if sale.PaymentMethod != domain.PaymentCredit {
		return nil, fmt.Errorf("%w: sale %s is not a credit sale", store.ErrValidation, sale.ID)
	}

	reversals, err := s.repo.ListReversalsBySaleIDs(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	if len(reversals) > 0 || sale.PaymentMethod == domain.PaymentReversed {
		return nil, fmt.Errorf("%w: cannot settle a reversed sale", store.ErrValidation)
	}

	settlements, err := s.repo.ListSettlementsBySaleIDs(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	settled := reconcile.SettledCentsBySale(settlements)[sale.ID]
	outstanding := sale.AmountCents - sale.AmountPaidCents - settled
	if outstanding < 0 {
		outstanding = 0
	}
	if req.AmountCents > outstanding {
		return nil, fmt.Errorf("%w: payment %d exceeds outstanding %d", store.ErrValidation, req.AmountCents, outstanding)
	}

	settlement := domain.CreditSettlement{
		ID:            xid.New("stl"),
		SaleID:        sale.ID,
		CustomerPhone: sale.CustomerPhone,
		AmountCents:   req.AmountCents,
		SettledAt:     time.Now().UTC(),
	}
	created, err := s.repo.CreateSettlement(ctx, settlement)
	if err != nil {
		return nil, err
	}

	s.publishSalesChanged(ctx, sale.ID)

	return &domain.CreditPaymentResponse{
		Settlement:       *created,
		OutstandingCents: outstanding - req.AmountCents,
	}, nil
}

// ListCustomerCredit summarizes outstanding credit per customer from the
// reconciled ledger, largest debt first.
func (s *Service) ListCustomerCredit(ctx context.Context, userID string) ([]domain.CustomerCredit, error) {
	sales, err := s.reader.EffectiveSales(ctx, userID, ledger.Query{})
	if err != nil {
		return nil, err
	}

	byPhone := make(map[string]*domain.CustomerCredit)
	order := make([]string, 0, 8)
	for _, sale := range sales {
		if sale.PaymentMethod != domain.PaymentCredit || sale.IsReversed {
			continue
		}
		phone := sale.CustomerPhone
		if phone == "" || phone == domain.WalkInCustomer {
			continue
		}
		entry, ok := byPhone[phone]
		if !ok {
			entry = &domain.CustomerCredit{CustomerPhone: phone}
			byPhone[phone] = entry
			order = append(order, phone)
		}
		entry.CreditSalesCount++
		entry.OutstandingCents += sale.OutstandingCreditCents
	}

	out := make([]domain.CustomerCredit, 0, len(order))
	for _, phone := range order {
		out = append(out, *byPhone[phone])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OutstandingCents > out[j].OutstandingCents
	})
	return out, nil
}

// StockLevels reports the net stock per product key derived from movements.
func (s *Service) StockLevels(ctx context.Context, userID string, productNames []string) (map[string]int, error) {
	keys := make([]string, 0, len(productNames))
	for _, name := range productNames {
		key := reconcile.ProductKey(name)
		if key != "" {
			keys = append(keys, key)
		}
	}
	return s.repo.GetStockLevels(ctx, userID, keys)
}

// ReceiveStock records received inventory for a product.
func (s *Service) ReceiveStock(ctx context.Context, userID string, productName string, qty int) error {
	key := reconcile.ProductKey(productName)
	if key == "" {
		return fmt.Errorf("%w: product name is required", store.ErrValidation)
	}
	if qty < 1 {
		return fmt.Errorf("%w: received quantity must be positive", store.ErrValidation)
	}
	return s.repo.CreateMovement(ctx, domain.InventoryMovement{
		ID:           xid.New("mov"),
		UserID:       userID,
		ProductKey:   key,
		MovementType: domain.MovementReceived,
		Quantity:     qty,
		MovementDate: time.Now().UTC(),
	})
}
