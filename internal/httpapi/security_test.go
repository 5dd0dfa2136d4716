package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/service"
	"backoffice/backend/internal/store"
)

// billUnit bills one stocked serial to the walk-in customer and returns the
// bill id.
func billUnit(t *testing.T, c *client, serial string, draft bool) string {
	t.Helper()
	var created domain.BillingResult
	c.mustDo(http.MethodPost, "/api/v1/billings", map[string]any{
		"customer_contact": "9000000001",
		"products":         []map[string]any{{"imei_number": serial, "rate": "1200"}},
		"payable_amount":   "1200",
		"is_drafted":       draft,
	}, http.StatusCreated, &created)
	return created.Billing.ID
}

func unitStatus(t *testing.T, c *client, serial string) domain.ProductStatus {
	t.Helper()
	var list domain.ProductListResponse
	c.mustDo(http.MethodGet, "/api/v1/products?imei_number="+serial, nil, http.StatusOK, &list)
	if len(list.Products) != 1 {
		t.Fatalf("expected one record for %s, got %d", serial, len(list.Products))
	}
	return list.Products[0].Status
}

func TestBillingDeleteApproval(t *testing.T) {
	cases := []struct {
		name     string
		draft    bool
		pin      string
		wantCode int
		wantUnit domain.ProductStatus
	}{
		{"draft needs no pin", true, "", http.StatusOK, domain.ProductAvailable},
		{"finalized without pin", false, "", http.StatusForbidden, domain.ProductSold},
		{"finalized with wrong pin", false, "000000", http.StatusForbidden, domain.ProductSold},
		{"finalized with manager pin", false, testPIN, http.StatusOK, domain.ProductAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)
			admin := newClient(t, api, "admin", "admin123")
			seedShop(t, admin, "IMEI-300")
			staff := newClient(t, api, "staff", "staff123")
			id := billUnit(t, staff, "IMEI-300", tc.draft)

			res := staff.do(http.MethodDelete, "/api/v1/billings/"+id, nil, map[string]string{managerPINHeader: tc.pin})
			if res.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d (body: %s)", tc.wantCode, res.Code, res.Body.String())
			}
			if got := unitStatus(t, admin, "IMEI-300"); got != tc.wantUnit {
				t.Fatalf("expected unit %s, got %s", tc.wantUnit, got)
			}
		})
	}
}

func TestManagerPINLockoutSparesDrafts(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	seedShop(t, admin, "IMEI-301", "IMEI-302")
	sold := billUnit(t, admin, "IMEI-301", false)
	draft := billUnit(t, admin, "IMEI-302", true)

	for attempt := 1; attempt <= 8; attempt++ {
		res := admin.do(http.MethodDelete, "/api/v1/billings/"+sold, nil, map[string]string{managerPINHeader: "000000"})
		if res.Code != http.StatusForbidden {
			t.Fatalf("attempt %d: expected 403, got %d", attempt, res.Code)
		}
	}
	res := admin.do(http.MethodDelete, "/api/v1/billings/"+sold, nil, map[string]string{managerPINHeader: testPIN})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the right pin to be locked out too, got %d", res.Code)
	}
	if got := unitStatus(t, admin, "IMEI-301"); got != domain.ProductSold {
		t.Fatalf("expected unit to stay SOLD during lockout, got %s", got)
	}

	admin.mustDo(http.MethodDelete, "/api/v1/billings/"+draft, nil, http.StatusOK, nil)
}

func TestBillingMutationsNeedCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/billings"},
		{http.MethodPut, "/api/v1/billings/bill-1"},
		{http.MethodDelete, "/api/v1/billings/bill-1"},
		{http.MethodPost, "/api/v1/billings/bill-1/payments"},
		{http.MethodPost, "/api/v1/counterparties/cp-1/ledger"},
	}
	for _, route := range routes {
		for _, csrf := range []string{"", "deadbeef"} {
			req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			if csrf != "" {
				req.Header.Set("X-CSRF-Token", csrf)
			}
			res := httptest.NewRecorder()
			api.Handler().ServeHTTP(res, req)
			if res.Code != http.StatusForbidden {
				t.Fatalf("%s %s with csrf %q: expected 403, got %d", route.method, route.path, csrf, res.Code)
			}
		}
	}
}

func TestLoginThrottleIsPerClient(t *testing.T) {
	api := newTestAPI(t)
	attempt := func(remote string) int {
		body, _ := json.Marshal(domain.LoginRequest{Username: "staff", Password: "not-it"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)
		return res.Code
	}

	for i := 1; i <= 5; i++ {
		if code := attempt("10.1.1.1:5000"); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, code)
		}
	}
	if code := attempt("10.1.1.1:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("expected the same host on another port to be throttled, got %d", code)
	}
	if code := attempt("10.1.1.2:5000"); code != http.StatusUnauthorized {
		t.Fatalf("expected another counter to be unaffected, got %d", code)
	}
}

func TestResponsesCarrySecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, httptest.NewRequest(method, "/api/v1/billings", nil))

		if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Fatalf("%s: expected X-Frame-Options DENY, got %q", method, got)
		}
		if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("%s: expected nosniff, got %q", method, got)
		}
		if !strings.Contains(res.Header().Get("Access-Control-Allow-Headers"), managerPINHeader) {
			t.Fatalf("%s: expected the manager pin header to be allowed cross-origin", method)
		}
	}

	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodOptions, "/api/v1/billings", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/billings", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", res.Code)
	}
}

func TestOversizedBillIsRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	res := admin.do(http.MethodPost, "/api/v1/billings", map[string]any{
		"customer_contact": strings.Repeat("9", (1<<20)+1),
		"products":         []map[string]any{{"imei_number": "IMEI-1", "rate": "100"}},
	}, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a body over 1MiB, got %d", res.Code)
	}
}

func TestStatusForMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", store.ErrInvalidPayment), http.StatusUnprocessableEntity},
		{store.ErrInvalidRequest, http.StatusBadRequest},
		{store.ErrProductNotFound, http.StatusNotFound},
		{store.ErrCustomerNotFound, http.StatusNotFound},
		{&store.UnavailableError{Serials: []string{"X"}}, http.StatusConflict},
		{store.ErrConflict, http.StatusConflict},
		{store.ErrInvalidTransition, http.StatusConflict},
		{service.ErrForbidden, http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestNegativePaymentIsUnprocessable(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	seedShop(t, admin, "IMEI-303")

	res := admin.do(http.MethodPost, "/api/v1/billings", map[string]any{
		"customer_contact": "9000000001",
		"products":         []map[string]any{{"imei_number": "IMEI-303", "rate": "100"}},
		"paid_amount":      []map[string]any{{"method": "cash", "amount": "-5"}},
	}, nil)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", res.Code, res.Body.String())
	}
	if got := unitStatus(t, admin, "IMEI-303"); got != domain.ProductAvailable {
		t.Fatalf("expected rejected bill to leave unit AVAILABLE, got %s", got)
	}
}

func TestParsePositiveLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"20", 20},
		{"0", 50},
		{"-3", 50},
		{"lots", 50},
		{"9999", 200},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, 50, 200); got != tc.want {
			t.Fatalf("limit %q: expected %d, got %d", tc.raw, tc.want, got)
		}
	}
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("csrf token: status %d", res.Code)
	}
	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil || payload.Token == "" {
		t.Fatalf("csrf token: %q (%v)", payload.Token, err)
	}
	return payload.Token
}

// login signs in from an address derived from the username so tests do not
// share a login throttle bucket.
func login(t *testing.T, api *API, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("10.0.0.%d:4000", len(username))
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login: status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil || payload.AccessToken == "" {
		t.Fatalf("%s login: token %q (%v)", username, payload.AccessToken, err)
	}
	return payload.AccessToken
}
