// Package postgres is the production Repository. It expects the ledgerdesk
// schema to exist: sales, sale_reversals (unique original_sale_id),
// inventory_movements, customer_aggregates, sales_goals, expenses,
// credit_settlements, and users.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, user_id, product_name, product_key, amount_cents, quantity, payment_method, amount_paid_cents, customer_phone, purchase_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.UserID, sale.ProductName, sale.ProductKey, sale.AmountCents, sale.Quantity,
		sale.PaymentMethod, sale.AmountPaidCents, sale.CustomerPhone, sale.PurchaseDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.SaleRecord, error) {
	var sale domain.SaleRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_name, product_key, amount_cents, quantity, payment_method, amount_paid_cents, customer_phone, purchase_date
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.UserID, &sale.ProductName, &sale.ProductKey, &sale.AmountCents, &sale.Quantity,
		&sale.PaymentMethod, &sale.AmountPaidCents, &sale.CustomerPhone, &sale.PurchaseDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.PurchaseDate = sale.PurchaseDate.UTC()
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, userID string, filter store.SaleFilter) ([]domain.SaleRecord, error) {
	query := `
		SELECT id, user_id, product_name, product_key, amount_cents, quantity, payment_method, amount_paid_cents, customer_phone, purchase_date
		FROM sales
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR purchase_date >= $2)
		  AND ($3::timestamptz IS NULL OR purchase_date < $3)
		ORDER BY purchase_date ASC
	`
	from := sqlNullTime(filter.From)
	to := sqlNullTime(filter.To)

	rows, err := s.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 256)
	for rows.Next() {
		var sale domain.SaleRecord
		if err := rows.Scan(&sale.ID, &sale.UserID, &sale.ProductName, &sale.ProductKey, &sale.AmountCents, &sale.Quantity,
			&sale.PaymentMethod, &sale.AmountPaidCents, &sale.CustomerPhone, &sale.PurchaseDate); err != nil {
			return nil, err
		}
		sale.PurchaseDate = sale.PurchaseDate.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[len(sales)-filter.Limit:]
	}
	return sales, nil
}

func (s *Store) CreateReversal(ctx context.Context, reversal domain.SaleReversal) (*domain.SaleReversal, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_reversals (id, original_sale_id, reason, receipt_number, reversal_date)
		VALUES ($1,$2,$3,$4,$5)
	`, reversal.ID, reversal.OriginalSaleID, reversal.Reason, reversal.ReceiptNumber, reversal.ReversalDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReversal
		}
		return nil, err
	}

	created := reversal
	return &created, nil
}

func (s *Store) ListReversalsBySaleIDs(ctx context.Context, saleIDs []string) ([]domain.SaleReversal, error) {
	reversals := make([]domain.SaleReversal, 0, 8)
	if len(saleIDs) == 0 {
		return reversals, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_sale_id, reason, receipt_number, reversal_date
		FROM sale_reversals
		WHERE original_sale_id = ANY($1)
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rev domain.SaleReversal
		if err := rows.Scan(&rev.ID, &rev.OriginalSaleID, &rev.Reason, &rev.ReceiptNumber, &rev.ReversalDate); err != nil {
			return nil, err
		}
		rev.ReversalDate = rev.ReversalDate.UTC()
		reversals = append(reversals, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reversals, nil
}

func (s *Store) CreateMovement(ctx context.Context, movement domain.InventoryMovement) error {
	switch movement.MovementType {
	case domain.MovementSold, domain.MovementReceived, domain.MovementReturned:
	default:
		return store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, user_id, product_key, movement_type, quantity, sale_id, movement_date)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
	`, movement.ID, movement.UserID, movement.ProductKey, movement.MovementType, movement.Quantity, movement.SaleID, movement.MovementDate)
	return err
}

func (s *Store) GetStockLevels(ctx context.Context, userID string, productKeys []string) (map[string]int, error) {
	levels := make(map[string]int, len(productKeys))
	if len(productKeys) == 0 {
		return levels, nil
	}
	for _, key := range productKeys {
		levels[key] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_key,
		       COALESCE(SUM(CASE WHEN movement_type = 'sold' THEN -quantity ELSE quantity END), 0)
		FROM inventory_movements
		WHERE user_id = $1 AND product_key = ANY($2)
		GROUP BY product_key
	`, userID, productKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var qty int
		if err := rows.Scan(&key, &qty); err != nil {
			return nil, err
		}
		levels[key] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

func (s *Store) ApplyCustomerSale(ctx context.Context, phone string, amountCents int64, at time.Time) error {
	if phone == "" || phone == domain.WalkInCustomer {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_aggregates (customer_phone, total_purchases_cents, total_sales_count, first_purchase_date, last_purchase_date)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (customer_phone) DO UPDATE
		SET total_purchases_cents = customer_aggregates.total_purchases_cents + EXCLUDED.total_purchases_cents,
		    total_sales_count = customer_aggregates.total_sales_count + 1,
		    last_purchase_date = GREATEST(customer_aggregates.last_purchase_date, EXCLUDED.last_purchase_date)
	`, phone, amountCents, at)
	return err
}

func (s *Store) ApplyCustomerReversal(ctx context.Context, phone string, amountCents int64) error {
	if phone == "" || phone == domain.WalkInCustomer {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE customer_aggregates
		SET total_purchases_cents = GREATEST(total_purchases_cents - $2, 0),
		    total_sales_count = GREATEST(total_sales_count - 1, 0)
		WHERE customer_phone = $1
	`, phone, amountCents)
	return err
}

func (s *Store) GetCustomerAggregate(ctx context.Context, phone string) (*domain.CustomerAggregate, error) {
	var agg domain.CustomerAggregate
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_phone, total_purchases_cents, total_sales_count, first_purchase_date, last_purchase_date
		FROM customer_aggregates
		WHERE customer_phone = $1
	`, phone).Scan(&agg.CustomerPhone, &agg.TotalPurchasesCents, &agg.TotalSalesCount, &agg.FirstPurchaseDate, &agg.LastPurchaseDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	agg.FirstPurchaseDate = agg.FirstPurchaseDate.UTC()
	agg.LastPurchaseDate = agg.LastPurchaseDate.UTC()
	return &agg, nil
}

func (s *Store) ListCustomerAggregates(ctx context.Context) ([]domain.CustomerAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_phone, total_purchases_cents, total_sales_count, first_purchase_date, last_purchase_date
		FROM customer_aggregates
		ORDER BY customer_phone
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggregates := make([]domain.CustomerAggregate, 0, 64)
	for rows.Next() {
		var agg domain.CustomerAggregate
		if err := rows.Scan(&agg.CustomerPhone, &agg.TotalPurchasesCents, &agg.TotalSalesCount, &agg.FirstPurchaseDate, &agg.LastPurchaseDate); err != nil {
			return nil, err
		}
		agg.FirstPurchaseDate = agg.FirstPurchaseDate.UTC()
		agg.LastPurchaseDate = agg.LastPurchaseDate.UTC()
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return aggregates, nil
}

func (s *Store) CreateGoal(ctx context.Context, goal domain.SalesGoal) (*domain.SalesGoal, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_goals (id, user_id, goal_type, target_amount_cents, period_start, period_end, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, goal.ID, goal.UserID, goal.GoalType, goal.TargetAmountCents, goal.PeriodStart, goal.PeriodEnd, goal.Active, goal.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := goal
	return &created, nil
}

func (s *Store) ListGoals(ctx context.Context, userID string, activeOnly bool) ([]domain.SalesGoal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, goal_type, target_amount_cents, period_start, period_end, active, created_at
		FROM sales_goals
		WHERE user_id = $1 AND ($2 = false OR active = true)
		ORDER BY created_at ASC
	`, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]domain.SalesGoal, 0, 8)
	for rows.Next() {
		var goal domain.SalesGoal
		if err := rows.Scan(&goal.ID, &goal.UserID, &goal.GoalType, &goal.TargetAmountCents, &goal.PeriodStart, &goal.PeriodEnd, &goal.Active, &goal.CreatedAt); err != nil {
			return nil, err
		}
		goal.PeriodStart = goal.PeriodStart.UTC()
		goal.PeriodEnd = goal.PeriodEnd.UTC()
		goal.CreatedAt = goal.CreatedAt.UTC()
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return goals, nil
}

func (s *Store) DeactivateGoals(ctx context.Context, userID string, goalType string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sales_goals
		SET active = false
		WHERE user_id = $1 AND goal_type = $2 AND active = true
	`, userID, goalType)
	return err
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, description, category, amount_cents, expense_date)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, expense.ID, expense.UserID, expense.Description, expense.Category, expense.AmountCents, expense.ExpenseDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string, filter store.SaleFilter) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, description, category, amount_cents, expense_date
		FROM expenses
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR expense_date >= $2)
		  AND ($3::timestamptz IS NULL OR expense_date < $3)
		ORDER BY expense_date ASC
	`, userID, sqlNullTime(filter.From), sqlNullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var expense domain.Expense
		if err := rows.Scan(&expense.ID, &expense.UserID, &expense.Description, &expense.Category, &expense.AmountCents, &expense.ExpenseDate); err != nil {
			return nil, err
		}
		expense.ExpenseDate = expense.ExpenseDate.UTC()
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateSettlement(ctx context.Context, settlement domain.CreditSettlement) (*domain.CreditSettlement, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_settlements (id, sale_id, customer_phone, amount_cents, settled_at)
		VALUES ($1,$2,$3,$4,$5)
	`, settlement.ID, settlement.SaleID, settlement.CustomerPhone, settlement.AmountCents, settlement.SettledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := settlement
	return &created, nil
}

func (s *Store) ListSettlementsBySaleIDs(ctx context.Context, saleIDs []string) ([]domain.CreditSettlement, error) {
	settlements := make([]domain.CreditSettlement, 0, 8)
	if len(saleIDs) == 0 {
		return settlements, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, customer_phone, amount_cents, settled_at
		FROM credit_settlements
		WHERE sale_id = ANY($1)
		ORDER BY settled_at ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var stl domain.CreditSettlement
		if err := rows.Scan(&stl.ID, &stl.SaleID, &stl.CustomerPhone, &stl.AmountCents, &stl.SettledAt); err != nil {
			return nil, err
		}
		stl.SettledAt = stl.SettledAt.UTC()
		settlements = append(settlements, stl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settlements, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrValidation
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func sqlNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
