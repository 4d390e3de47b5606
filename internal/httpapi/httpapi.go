package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/excel"
	"ledgerdesk/backend/internal/service"
	"ledgerdesk/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, domain.RoleStaff, domain.RoleOwner))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, domain.RoleStaff, domain.RoleOwner))
	mux.HandleFunc("/api/v1/dashboard/metrics", a.requireAuth(a.handleDashboard, domain.RoleStaff, domain.RoleOwner))
	mux.HandleFunc("/api/v1/credit/customers", a.requireAuth(a.handleCustomerCredit, domain.RoleStaff, domain.RoleOwner))
	mux.HandleFunc("/api/v1/credit/settlements", a.requireAuth(a.handleCreditSettlement, domain.RoleStaff, domain.RoleOwner))
	mux.HandleFunc("/api/v1/stock", a.requireAuth(a.handleStockLevels, domain.RoleStaff, domain.RoleOwner))

	mux.HandleFunc("/api/v1/reports/period", a.requireAuth(a.handlePeriodReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/goals", a.requireAuth(a.handleGoals, domain.RoleOwner))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, domain.RoleOwner))
	mux.HandleFunc("/api/v1/stock/receive", a.requireAuth(a.handleStockReceive, domain.RoleOwner))
	mux.HandleFunc("/api/v1/users/staff", a.requireAuth(a.handleStaff, domain.RoleOwner))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// actorLedgerID resolves the ledger owner for a request. The shop owner and
// their staff share one ledger, so staff requests resolve to the owner's id.
func actorLedgerID(r *http.Request) string {
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleStaff {
		return "owner"
	}
	return actor.Username
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation. Login is
// excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods
// (POST/PUT/PATCH). Returns false and writes an error response on failure.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseWindow(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Limit = parsePositiveLimit(r.URL.Query().Get("limit"), 0, 1000)

		sales, err := a.service.ListSales(r.Context(), actorLedgerID(r), filter)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, domain.SalesListResponse{Sales: sales})
	case http.MethodPost:
		var req domain.RecordSaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		sale, err := a.service.RecordSale(r.Context(), actorLedgerID(r), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.SaleResponse{Sale: *sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/sales/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	if !strings.HasSuffix(tail, "/reverse") {
		writeError(w, http.StatusNotFound, errors.New("unknown sale action"))
		return
	}
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	saleID := strings.Trim(strings.TrimSuffix(tail, "/reverse"), "/")
	if saleID == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	var req domain.ReverseSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.SaleID = saleID

	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return
	}
	if !a.auth.ValidateOwnerPIN(req.OwnerPIN) {
		writeError(w, http.StatusForbidden, errors.New("invalid owner PIN"))
		return
	}

	resp, err := a.service.ReverseSale(r.Context(), actorLedgerID(r), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	dash, err := a.service.Dashboard(r.Context(), actorLedgerID(r))
	if err != nil {
		if errors.Is(err, service.ErrSuperseded) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handlePeriodReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseReportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	report, err := a.service.PeriodReport(r.Context(), actorLedgerID(r), from, to)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"period-report-%s.csv\"", from.Format("2006-01-02")))
		_, _ = w.Write([]byte(periodReportToCSV(*report)))
	case "xlsx":
		payload, err := excel.RenderPeriodReport(*report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"period-report-%s.xlsx\"", from.Format("2006-01-02")))
		_, _ = w.Write(payload)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(periodReportToPrintableHTML(*report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleGoals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")
		goals, err := a.service.ListGoals(r.Context(), actorLedgerID(r), activeOnly)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
	case http.MethodPost:
		var req domain.GoalCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		goal, err := a.service.SetSalesGoal(r.Context(), actorLedgerID(r), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.GoalResponse{Goal: *goal})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter, err := parseWindow(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expenses, err := a.service.ListExpenses(r.Context(), actorLedgerID(r), filter)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.RecordExpense(r.Context(), actorLedgerID(r), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCreditSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CreditPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return
	}
	if !a.auth.ValidateOwnerPIN(req.OwnerPIN) {
		writeError(w, http.StatusForbidden, errors.New("invalid owner PIN"))
		return
	}

	resp, err := a.service.RecordCreditPayment(r.Context(), actorLedgerID(r), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCustomerCredit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	credit, err := a.service.ListCustomerCredit(r.Context(), actorLedgerID(r))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": credit})
}

func (a *API) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	names := strings.Split(r.URL.Query().Get("products"), ",")
	levels, err := a.service.StockLevels(r.Context(), actorLedgerID(r), names)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": levels})
}

func (a *API) handleStockReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductName string `json:"product_name"`
		Quantity    int    `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.service.ReceiveStock(r.Context(), actorLedgerID(r), req.ProductName, req.Quantity); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (a *API) handleStaff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff()})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		staff, err := a.auth.CreateStaff(req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"staff": staff})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// parseWindow reads optional from/to query parameters as YYYY-MM-DD dates.
// The window is half-open: [from, to).
func parseWindow(r *http.Request) (store.SaleFilter, error) {
	var filter store.SaleFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, fmt.Errorf("from must be YYYY-MM-DD")
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, fmt.Errorf("to must be YYYY-MM-DD")
		}
		filter.To = to
	}
	return filter, nil
}

// parseReportRange is parseWindow with both bounds required.
func parseReportRange(r *http.Request) (time.Time, time.Time, error) {
	filter, err := parseWindow(r)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if filter.From.IsZero() || filter.To.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to are required")
	}
	return filter.From, filter.To, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateReversal):
		return http.StatusConflict
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func periodReportToCSV(report domain.PeriodReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,from,%s", report.From),
		fmt.Sprintf("summary,to,%s", report.To),
		fmt.Sprintf("summary,sales_count,%d", report.SalesCount),
		fmt.Sprintf("summary,reversed_count,%d", report.ReversedCount),
		fmt.Sprintf("summary,revenue_cents,%d", report.RevenueCents),
		fmt.Sprintf("summary,cost_cents,%d", report.CostCents),
		fmt.Sprintf("summary,expenses_cents,%d", report.ExpensesCents),
		fmt.Sprintf("summary,credit_sales_cents,%d", report.CreditSalesCents),
		fmt.Sprintf("summary,credit_outstanding_cents,%d", report.CreditOutstandingCents),
		fmt.Sprintf("summary,profit_cents,%d", report.ProfitCents),
	}
	for _, row := range report.Rows {
		name := strings.ReplaceAll(row.ProductName, ",", " ")
		lines = append(lines, fmt.Sprintf("sale,%s,%s|%d|%d|%s|%t",
			row.ID, name, row.EffectiveAmountCents, row.EffectiveQuantity, row.PaymentMethod, row.IsReversed))
	}
	return strings.Join(lines, "\n") + "\n"
}

// periodReportHTMLTmpl renders printable period reports. All user-controlled
// fields are auto-escaped by html/template to prevent XSS.
var periodReportHTMLTmpl = template.Must(template.New("period-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Period Report {{.From}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Period Report</h2>
  <p>{{.From}} to {{.To}}</p>
  <p>Sales: {{.SalesCount}} | Reversed: {{.ReversedCount}} | Revenue: {{.RevenueCents}} | Cost: {{.CostCents}} | Expenses: {{.ExpensesCents}} | Profit: {{.ProfitCents}}</p>
  <p>Credit sales: {{.CreditSalesCents}} | Outstanding: {{.CreditOutstandingCents}}</p>

  <h3>Sales</h3>
  <table>
    <thead><tr><th>Product</th><th>Amount Cents</th><th>Qty</th><th>Payment</th><th>Reversed</th></tr></thead>
    <tbody>{{range .Rows}}<tr><td>{{.ProductName}}</td><td style="text-align:right;">{{.EffectiveAmountCents}}</td><td style="text-align:right;">{{.EffectiveQuantity}}</td><td>{{.PaymentMethod}}</td><td>{{.IsReversed}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func periodReportToPrintableHTML(report domain.PeriodReport) string {
	var buf bytes.Buffer
	if err := periodReportHTMLTmpl.Execute(&buf, report); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
