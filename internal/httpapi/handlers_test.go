package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/service"
	"backoffice/backend/internal/store/memory"
)

const testPIN = "482915"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{})
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, testPIN, repo)

	return New(svc, auth, "*")
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newClient(t *testing.T, api *API, username, password string) *client {
	t.Helper()
	return &client{
		t:       t,
		handler: api.Handler(),
		token:   login(t, api, username, password),
		csrf:    fetchCSRFToken(t, api),
	}
}

func (c *client) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-CSRF-Token", c.csrf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	c.handler.ServeHTTP(res, req)
	return res
}

func (c *client) mustDo(method, path string, body any, want int, out any) {
	c.t.Helper()
	res := c.do(method, path, body, nil)
	if res.Code != want {
		c.t.Fatalf("%s %s: expected %d, got %d (body: %s)", method, path, want, res.Code, res.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

// seedShop registers a supplier and a customer and takes two units into stock.
func seedShop(t *testing.T, admin *client, serials ...string) {
	t.Helper()
	admin.mustDo(http.MethodPost, "/api/v1/counterparties", domain.CounterpartyCreateRequest{
		Name: "Supplier One", Contact: "8000000001", Role: "SUPPLIER",
	}, http.StatusCreated, nil)
	admin.mustDo(http.MethodPost, "/api/v1/counterparties", domain.CounterpartyCreateRequest{
		Name: "Walk In", Contact: "9000000001", Role: "CUSTOMER",
	}, http.StatusCreated, nil)
	for _, serial := range serials {
		admin.mustDo(http.MethodPost, "/api/v1/products", map[string]any{
			"brand_name":       "Acme",
			"model_name":       "Phone 1",
			"imei_number":      serial,
			"sales_price":      "1500",
			"purchase_price":   "1000",
			"supplier_contact": "8000000001",
		}, http.StatusCreated, nil)
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

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

func TestHandleLoginWrongPassword(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBillingLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	staff := newClient(t, api, "staff", "staff123")
	seedShop(t, admin, "IMEI-100", "IMEI-200")

	var created domain.BillingResult
	staff.mustDo(http.MethodPost, "/api/v1/billings", map[string]any{
		"customer_contact": "9000000001",
		"products":         []map[string]any{{"imei_number": "IMEI-100", "rate": "1200"}},
		"payable_amount":   "1200",
		"paid_amount":      []map[string]any{{"method": "cash", "amount": "200"}},
	}, http.StatusCreated, &created)
	if created.Billing.Status != domain.BillingPartiallyPaid {
		t.Fatalf("expected PARTIALLY_PAID, got %s", created.Billing.Status)
	}
	id := created.Billing.ID

	var paid domain.BillingResult
	staff.mustDo(http.MethodPost, "/api/v1/billings/"+id+"/payments", map[string]any{
		"paid_amount": []map[string]any{{"method": "upi", "amount": "1000"}},
	}, http.StatusOK, &paid)
	if paid.Billing.Status != domain.BillingPaid || !paid.Billing.PendingAmount.IsZero() {
		t.Fatalf("expected PAID with nothing pending, got %s %s", paid.Billing.Status, paid.Billing.PendingAmount)
	}

	var fetched domain.BillingResult
	staff.mustDo(http.MethodGet, "/api/v1/billings/"+id, nil, http.StatusOK, &fetched)
	if fetched.Billing.Version != paid.Billing.Version {
		t.Fatalf("expected fresh read after payment, got version %d", fetched.Billing.Version)
	}

	var list domain.BillingListResponse
	staff.mustDo(http.MethodGet, "/api/v1/billings?imei_number=imei-100", nil, http.StatusOK, &list)
	if len(list.Billings) != 1 || list.TotalProducts != 1 {
		t.Fatalf("expected one listed bill, got %d", len(list.Billings))
	}

	// finalized bills need the manager PIN
	if res := staff.do(http.MethodDelete, "/api/v1/billings/"+id, nil, nil); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without pin, got %d", res.Code)
	}
	res := staff.do(http.MethodDelete, "/api/v1/billings/"+id, nil, map[string]string{"X-Manager-PIN": testPIN})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with pin, got %d (body: %s)", res.Code, res.Body.String())
	}
	var deleted domain.BillingDeleteResponse
	if err := json.NewDecoder(res.Body).Decode(&deleted); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if deleted.Status != domain.BillingRemovedCheckout || len(deleted.Released) != 1 {
		t.Fatalf("unexpected delete response %+v", deleted)
	}
}

func TestCreateBillingUnavailableReturnsSerials(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	seedShop(t, admin, "IMEI-100")

	res := admin.do(http.MethodPost, "/api/v1/billings", map[string]any{
		"customer_contact": "9000000001",
		"products": []map[string]any{
			{"imei_number": "IMEI-100", "rate": "1200"},
			{"imei_number": "IMEI-404", "rate": "1200"},
		},
		"payable_amount": "2400",
	}, nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body struct {
		Serials []string `json:"serials"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Serials) != 1 || body.Serials[0] != "IMEI-404" {
		t.Fatalf("expected IMEI-404 to be reported, got %v", body.Serials)
	}

	var products domain.ProductListResponse
	admin.mustDo(http.MethodGet, "/api/v1/products?status=AVAILABLE", nil, http.StatusOK, &products)
	if len(products.Products) != 1 {
		t.Fatalf("expected the available unit to stay in stock, got %d", len(products.Products))
	}
}

func TestCreateBillingValidationErrorListsFields(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api, "staff", "staff123")

	res := staff.do(http.MethodPost, "/api/v1/billings", map[string]any{
		"customer_contact": "9000000001",
		"products":         []map[string]any{},
	}, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Fields["BillingCreateRequest.products"] != "min" {
		t.Fatalf("expected products min violation, got %v", body.Fields)
	}
}

func TestUnknownBillingIs404(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api, "staff", "staff123")

	if res := staff.do(http.MethodGet, "/api/v1/billings/bill-missing", nil, nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestRepairFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	seedShop(t, admin, "IMEI-100")

	var repairer struct {
		Counterparty domain.Counterparty `json:"counterparty"`
	}
	admin.mustDo(http.MethodPost, "/api/v1/counterparties", domain.CounterpartyCreateRequest{
		Name: "Bench Tech", Contact: "7000000001", Role: "REPAIRER",
	}, http.StatusCreated, &repairer)

	var products domain.ProductListResponse
	admin.mustDo(http.MethodGet, "/api/v1/products?imei_number=IMEI-100", nil, http.StatusOK, &products)
	if len(products.Products) != 1 {
		t.Fatalf("expected one product, got %d", len(products.Products))
	}
	productID := products.Products[0].ID

	var started struct {
		Product domain.Product `json:"product"`
	}
	admin.mustDo(http.MethodPost, "/api/v1/products/"+productID+"/repair/start", domain.RepairStartRequest{
		Issue: "cracked screen", RepairerID: repairer.Counterparty.ID,
	}, http.StatusOK, &started)
	if started.Product.Status != domain.ProductInRepairing {
		t.Fatalf("expected IN_REPAIRING, got %s", started.Product.Status)
	}

	var done struct {
		Product domain.Product `json:"product"`
	}
	admin.mustDo(http.MethodPost, "/api/v1/products/"+productID+"/repair/complete", map[string]any{
		"repairer_cost": "150",
		"remark":        "screen replaced",
	}, http.StatusOK, &done)
	if done.Product.Status != domain.ProductAvailable || !done.Product.IsRepaired {
		t.Fatalf("expected repaired AVAILABLE unit, got %s repaired=%t", done.Product.Status, done.Product.IsRepaired)
	}

	var fetched struct {
		Counterparty domain.Counterparty `json:"counterparty"`
	}
	admin.mustDo(http.MethodGet, "/api/v1/counterparties/"+repairer.Counterparty.ID, nil, http.StatusOK, &fetched)
	if fetched.Counterparty.PayableAmount.String() != "150" {
		t.Fatalf("expected repairer payable 150, got %s", fetched.Counterparty.PayableAmount)
	}

	var repairers domain.CounterpartyListResponse
	admin.mustDo(http.MethodGet, "/api/v1/counterparties?role=repairer&name=bench", nil, http.StatusOK, &repairers)
	if len(repairers.Counterparties) != 1 || repairers.PayableTotal.String() != "150" || repairers.PendingTotal.String() != "150" {
		t.Fatalf("unexpected repairer listing %+v", repairers)
	}
}

func TestCounterpartyLookupAndAuditLog(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	seedShop(t, admin)

	var found struct {
		Counterparty domain.Counterparty `json:"counterparty"`
	}
	admin.mustDo(http.MethodGet, "/api/v1/counterparties/lookup?contact=9000000001&role=customer", nil, http.StatusOK, &found)
	if found.Counterparty.Name != "Walk In" {
		t.Fatalf("unexpected counterparty %+v", found.Counterparty)
	}

	var logs struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	today := time.Now().UTC().Format("2006-01-02")
	admin.mustDo(http.MethodGet, "/api/v1/audit-logs?date="+today, nil, http.StatusOK, &logs)
	if len(logs.Logs) < 2 {
		t.Fatalf("expected audit entries for counterparty creation, got %d", len(logs.Logs))
	}
	for _, entry := range logs.Logs {
		if strings.TrimSpace(entry.ActorUsername) == "" {
			t.Fatalf("expected actor on audit entry %+v", entry)
		}
	}
}

func TestStaffCannotReachAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	staff := newClient(t, api, "staff", "staff123")

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/audit-logs"},
		{http.MethodGet, "/api/v1/users/staff"},
		{http.MethodDelete, "/api/v1/products/prd-1"},
		{http.MethodPost, "/api/v1/counterparties/cp-1/ledger"},
	} {
		if res := staff.do(tc.method, tc.path, map[string]any{}, nil); res.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", tc.method, tc.path, res.Code)
		}
	}
}

func TestAdminCreatesStaffAccount(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	admin.mustDo(http.MethodPost, "/api/v1/users/staff", domain.StaffCreateRequest{
		Username: "teknisi", Password: "secret99",
	}, http.StatusCreated, nil)

	var list struct {
		Staff []domain.StaffUser `json:"staff"`
	}
	admin.mustDo(http.MethodGet, "/api/v1/users/staff", nil, http.StatusOK, &list)
	found := false
	for _, user := range list.Staff {
		if user.Username == "teknisi" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new staff account in %+v", list.Staff)
	}
}
