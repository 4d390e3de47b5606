package domain

import "time"

// SaleRecord is one product line item of a completed sale. Records are
// append-only: a reversal never mutates the original row, it is recorded as
// a separate SaleReversal and applied at read time. Legacy imports may still
// carry payment_method "reversed" with zeroed amounts; the reconciler honors
// those too.
type SaleRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ProductName     string    `json:"product_name"`
	ProductKey      string    `json:"product_key"`
	AmountCents     int64     `json:"amount_cents"`
	Quantity        int       `json:"quantity"`
	PaymentMethod   string    `json:"payment_method"`
	AmountPaidCents int64     `json:"amount_paid_cents"`
	CustomerPhone   string    `json:"customer_phone"`
	PurchaseDate    time.Time `json:"purchase_date"`
}

// SaleReversal nullifies the financial effect of one SaleRecord. At most one
// reversal may reference a given sale.
type SaleReversal struct {
	ID             string    `json:"id"`
	OriginalSaleID string    `json:"original_sale_id"`
	Reason         string    `json:"reversal_reason"`
	ReceiptNumber  string    `json:"reversal_receipt_number"`
	ReversalDate   time.Time `json:"reversal_date"`
}

// EffectiveSale is the read-time view of a SaleRecord with reversal and
// credit-settlement adjustments applied. Never persisted; recomputed on
// every read so it can never disagree with the latest reversal state.
type EffectiveSale struct {
	SaleRecord
	EffectiveAmountCents   int64 `json:"effective_amount_cents"`
	EffectiveQuantity      int   `json:"effective_quantity"`
	IsReversed             bool  `json:"is_reversed"`
	OutstandingCreditCents int64 `json:"outstanding_credit_cents"`
}

// InventoryMovement records a stock change. Quantity is always positive;
// direction is implied by the movement type.
type InventoryMovement struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ProductKey   string    `json:"product_key"`
	MovementType string    `json:"movement_type"`
	Quantity     int       `json:"quantity"`
	SaleID       string    `json:"sale_id,omitempty"`
	MovementDate time.Time `json:"movement_date"`
}

// CustomerAggregate holds running purchase counters per customer phone.
// Totals are decremented on reversal and never go below zero.
type CustomerAggregate struct {
	CustomerPhone       string    `json:"customer_phone"`
	TotalPurchasesCents int64     `json:"total_purchases_cents"`
	TotalSalesCount     int64     `json:"total_sales_count"`
	FirstPurchaseDate   time.Time `json:"first_purchase_date"`
	LastPurchaseDate    time.Time `json:"last_purchase_date"`
}

type SalesGoal struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	GoalType          string    `json:"goal_type"`
	TargetAmountCents int64     `json:"target_amount_cents"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

type Expense struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	ExpenseDate time.Time `json:"expense_date"`
}

// CreditSettlement is an explicit payment against one outstanding credit
// sale. Outstanding credit on a sale is amount minus amount_paid minus its
// settlements.
type CreditSettlement struct {
	ID            string    `json:"id"`
	SaleID        string    `json:"sale_id"`
	CustomerPhone string    `json:"customer_phone"`
	AmountCents   int64     `json:"amount_cents"`
	SettledAt     time.Time `json:"settled_at"`
}

type RecordSaleRequest struct {
	ProductName     string `json:"product_name"`
	AmountCents     int64  `json:"amount_cents"`
	Quantity        int    `json:"quantity"`
	PaymentMethod   string `json:"payment_method"`
	AmountPaidCents int64  `json:"amount_paid_cents"`
	CustomerPhone   string `json:"customer_phone"`
}

type SaleResponse struct {
	Sale EffectiveSale `json:"sale"`
}

type SalesListResponse struct {
	Sales []EffectiveSale `json:"sales"`
}

type ReverseSaleRequest struct {
	SaleID        string `json:"sale_id"`
	Reason        string `json:"reason"`
	ReceiptNumber string `json:"receipt_number"`
	OwnerPIN      string `json:"owner_pin"`
}

type ReverseSaleResponse struct {
	Reversal     SaleReversal `json:"reversal"`
	RestockedQty int          `json:"restocked_qty"`
}

// ProductStat is one row of the weekly per-product breakdown. Grouping is by
// normalized product key; the display name is the first one encountered.
type ProductStat struct {
	ProductKey      string `json:"product_key"`
	ProductName     string `json:"product_name"`
	QuantityWeek    int    `json:"quantity_week"`
	AmountCentsWeek int64  `json:"amount_cents_week"`
	Status          string `json:"status"`
}

type ProductTrend struct {
	ProductKey       string  `json:"product_key"`
	ProductName      string  `json:"product_name"`
	QuantityThisWeek int     `json:"quantity_this_week"`
	QuantityLastWeek int     `json:"quantity_last_week"`
	ChangePercent    float64 `json:"change_percent"`
	Direction        string  `json:"direction,omitempty"`
	Label            string  `json:"label"`
}

type SalesMetrics struct {
	TodaySalesCents int64          `json:"today_sales_cents"`
	WeekSalesCents  int64          `json:"week_sales_cents"`
	MonthSalesCents int64          `json:"month_sales_cents"`
	ItemsSoldToday  int            `json:"items_sold_today"`
	BestSellerWeek  *ProductStat   `json:"best_seller_week,omitempty"`
	SlowSellerWeek  *ProductStat   `json:"slow_seller_week,omitempty"`
	Breakdown       []ProductStat  `json:"breakdown"`
	Trends          []ProductTrend `json:"trends"`
}

type GoalProgress struct {
	Goal          SalesGoal `json:"goal"`
	AchievedCents int64     `json:"achieved_cents"`
	ProgressRatio float64   `json:"progress_ratio"`
}

type DashboardResponse struct {
	Metrics              SalesMetrics   `json:"metrics"`
	DebtClearedWeekCents int64          `json:"debt_cleared_week_cents"`
	Goals                []GoalProgress `json:"goals"`
	GeneratedAt          string         `json:"generated_at"`
}

// PeriodReport carries the figures handed to the report renderers. Cost is
// the sum of stock-purchase expenses in the window; other expenses land in
// ExpensesCents.
type PeriodReport struct {
	UserID                 string          `json:"user_id"`
	From                   string          `json:"from"`
	To                     string          `json:"to"`
	RevenueCents           int64           `json:"revenue_cents"`
	CostCents              int64           `json:"cost_cents"`
	ExpensesCents          int64           `json:"expenses_cents"`
	CreditSalesCents       int64           `json:"credit_sales_cents"`
	CreditOutstandingCents int64           `json:"credit_outstanding_cents"`
	ProfitCents            int64           `json:"profit_cents"`
	SalesCount             int             `json:"sales_count"`
	ReversedCount          int             `json:"reversed_count"`
	Rows                   []EffectiveSale `json:"rows"`
}

type GoalCreateRequest struct {
	GoalType          string `json:"goal_type"`
	TargetAmountCents int64  `json:"target_amount_cents"`
	PeriodStart       string `json:"period_start"`
	PeriodEnd         string `json:"period_end"`
}

type GoalResponse struct {
	Goal SalesGoal `json:"goal"`
}

type ExpenseCreateRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
}

type CreditPaymentRequest struct {
	SaleID      string `json:"sale_id"`
	AmountCents int64  `json:"amount_cents"`
	OwnerPIN    string `json:"owner_pin"`
}

type CreditPaymentResponse struct {
	Settlement       CreditSettlement `json:"settlement"`
	OutstandingCents int64            `json:"outstanding_cents"`
}

// CustomerCredit summarizes a single customer's outstanding credit position.
type CustomerCredit struct {
	CustomerPhone    string `json:"customer_phone"`
	CreditSalesCount int    `json:"credit_sales_count"`
	OutstandingCents int64  `json:"outstanding_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentCash         = "cash"
	PaymentMobileMoney  = "mobile money"
	PaymentBankTransfer = "bank transfer"
	PaymentCard         = "card"
	PaymentCredit       = "credit"
	PaymentReversed     = "reversed"
)

// WalkInCustomer is the sentinel phone value for anonymous customers.
const WalkInCustomer = "walk-in"

const (
	MovementReceived = "received"
	MovementSold     = "sold"
	MovementReturned = "returned"
)

const (
	GoalDaily   = "daily"
	GoalWeekly  = "weekly"
	GoalMonthly = "monthly"
	GoalYearly  = "yearly"
)

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// ExpenseCategoryStock marks expenses that count as cost of goods in the
// period report; everything else is an operating expense.
const ExpenseCategoryStock = "stock"
