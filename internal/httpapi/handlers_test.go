package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledgerdesk/backend/internal/analytics"
	"ledgerdesk/backend/internal/domain"
	"ledgerdesk/backend/internal/events"
	"ledgerdesk/backend/internal/ledger"
	"ledgerdesk/backend/internal/service"
	"ledgerdesk/backend/internal/store/memory"
)

const testOwnerPIN = "739154"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	reader := ledger.NewReader(repo)
	agg := analytics.New(analytics.DefaultPolicy())
	svc := service.New(repo, reader, agg, events.NewMemoryBus())
	auth := NewAuthManager("test-secret-key", time.Hour, testOwnerPIN, repo)

	return New(svc, auth, "*")
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token in login response: %v", body)
	}
	return token
}

func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf body: %v", err)
	}
	return body["csrf_token"]
}

func authedRequest(t *testing.T, handler http.Handler, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "owner",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute.
	payload, _ := json.Marshal(map[string]string{
		"username": "owner",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestSalesRequireAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner", "owner123")

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/sales", token, "", domain.RecordSaleRequest{
		ProductName:   "Rice",
		AmountCents:   1000,
		Quantity:      1,
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRecordAndListSales(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner", "owner123")
	csrf := csrfToken(t, handler)

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/sales", token, csrf, domain.RecordSaleRequest{
		ProductName:   "Rice 5kg",
		AmountCents:   15000,
		Quantity:      1,
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/sales", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sales: expected 200, got %d", rec.Code)
	}
	var list domain.SalesListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode sales list: %v", err)
	}
	if len(list.Sales) != 1 || list.Sales[0].ProductKey != "rice 5kg" {
		t.Fatalf("unexpected sales list: %+v", list.Sales)
	}
}

func TestReverseSaleRequiresOwnerPIN(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner", "owner123")
	csrf := csrfToken(t, handler)

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/sales", token, csrf, domain.RecordSaleRequest{
		ProductName:   "Soap",
		AmountCents:   700,
		Quantity:      1,
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale: expected 201, got %d", rec.Code)
	}
	var created domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	path := "/api/v1/sales/" + created.Sale.ID + "/reverse"

	rec = authedRequest(t, handler, http.MethodPost, path, token, csrf, domain.ReverseSaleRequest{
		Reason:   "wrong item",
		OwnerPIN: "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with bad PIN, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, http.MethodPost, path, token, csrf, domain.ReverseSaleRequest{
		Reason:   "wrong item",
		OwnerPIN: testOwnerPIN,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid PIN, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// A second reversal of the same sale conflicts.
	rec = authedRequest(t, handler, http.MethodPost, path, token, csrf, domain.ReverseSaleRequest{
		Reason:   "again",
		OwnerPIN: testOwnerPIN,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate reversal, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPeriodReportIsOwnerOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staffToken := login(t, handler, "staff", "staff123")

	rec := authedRequest(t, handler, http.MethodGet, "/api/v1/reports/period?from=2026-08-01&to=2026-09-01", staffToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}

	ownerToken := login(t, handler, "owner", "owner123")
	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/reports/period?from=2026-08-01&to=2026-09-01", ownerToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var report domain.PeriodReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
}

func TestPeriodReportRequiresRange(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner", "owner123")

	rec := authedRequest(t, handler, http.MethodGet, "/api/v1/reports/period", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without from/to, got %d", rec.Code)
	}
}

func TestPeriodReportCSVFormat(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "owner", "owner123")

	rec := authedRequest(t, handler, http.MethodGet, "/api/v1/reports/period?from=2026-08-01&to=2026-09-01&format=csv", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("summary,revenue_cents")) {
		t.Fatalf("csv body missing summary rows: %s", rec.Body.String())
	}
}

func TestDashboardAccessibleToStaff(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "staff", "staff123")

	rec := authedRequest(t, handler, http.MethodGet, "/api/v1/dashboard/metrics", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var dash domain.DashboardResponse
	if err := json.NewDecoder(rec.Body).Decode(&dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.GeneratedAt == "" {
		t.Fatalf("dashboard missing generated_at")
	}
}

func TestStaffManagementIsOwnerOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := csrfToken(t, handler)

	staffToken := login(t, handler, "staff", "staff123")
	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/users/staff", staffToken, csrf, domain.StaffCreateRequest{
		Username: "newstaff",
		Password: "secret99",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}

	ownerToken := login(t, handler, "owner", "owner123")
	rec = authedRequest(t, handler, http.MethodPost, "/api/v1/users/staff", ownerToken, csrf, domain.StaffCreateRequest{
		Username: "newstaff",
		Password: "secret99",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for owner, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
