package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ==================== Billings ====================

func (a *API) handleListBillings(w http.ResponseWriter, r *http.Request) {
	filter, err := billingFilterFromQuery(r)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ListBillings(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateBilling(w http.ResponseWriter, r *http.Request) {
	var req domain.BillingCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.service.CreateBilling(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleGetBilling(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.GetBilling(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUpdateBilling(w http.ResponseWriter, r *http.Request) {
	var req domain.BillingUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.service.UpdateBilling(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.service.RecordPayment(r.Context(), chi.URLParam(r, "id"), req.PaidAmount)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeleteBilling soft-deletes a bill, or hard-deletes a draft with
// ?hard=true. Finalized bills also need the manager PIN.
func (a *API) handleDeleteBilling(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))

	current, err := a.service.GetBilling(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if needsManagerApproval(current.Billing) && !a.pinLimiter.Allow("pin:billing:"+clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return
	}
	if err := a.auth.approveBillingDelete(current.Billing, r.Header.Get(managerPINHeader)); err != nil {
		a.writeError(w, http.StatusForbidden, err)
		return
	}

	resp, err := a.service.DeleteBilling(r.Context(), id, domain.BillingDeleteOptions{Hard: hard})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func billingFilterFromQuery(r *http.Request) (store.BillingFilter, error) {
	q := r.URL.Query()
	filter := store.BillingFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Serial: strings.TrimSpace(q.Get("imei_number")),
		Limit:  parsePositiveLimit(q.Get("limit"), 100, 500),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				filter.Statuses = append(filter.Statuses, domain.BillingStatus(part))
			}
		}
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return store.BillingFilter{}, fmt.Errorf("from must be YYYY-MM-DD")
		}
		filter.From = from.UTC()
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return store.BillingFilter{}, fmt.Errorf("to must be YYYY-MM-DD")
		}
		// inclusive day
		filter.To = to.UTC().Add(24 * time.Hour)
	}
	return filter, nil
}

// ==================== Products and catalog ====================

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeRemoved, _ := strconv.ParseBool(q.Get("include_removed"))
	resp, err := a.service.ListProducts(r.Context(), store.ProductFilter{
		Serial:         strings.TrimSpace(q.Get("imei_number")),
		Status:         domain.ProductStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		SupplierID:     strings.TrimSpace(q.Get("supplier_id")),
		IncludeRemoved: includeRemoved,
		Limit:          parsePositiveLimit(q.Get("limit"), 200, 1000),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleRemoveProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.RemoveProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleStartRepair(w http.ResponseWriter, r *http.Request) {
	var req domain.RepairStartRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.StartRepair(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCompleteRepair(w http.ResponseWriter, r *http.Request) {
	var req domain.RepairCompleteRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CompleteRepair(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := a.service.ListBrands(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"brands": brands})
}

func (a *API) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := a.service.ListModels(r.Context(), strings.TrimSpace(r.URL.Query().Get("brand_id")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// ==================== Counterparties ====================

func (a *API) handleListCounterparties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.ListCounterparties(r.Context(), domain.CounterpartyQuery{
		Role:    q.Get("role"),
		Name:    q.Get("name"),
		Contact: q.Get("contact"),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateCounterparty(w http.ResponseWriter, r *http.Request) {
	var req domain.CounterpartyCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	cp, err := a.service.CreateCounterparty(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"counterparty": cp})
}

func (a *API) handleLookupCounterparty(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cp, err := a.service.FindCounterpartyByContact(r.Context(), q.Get("contact"), q.Get("role"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counterparty": cp})
}

func (a *API) handleGetCounterparty(w http.ResponseWriter, r *http.Request) {
	cp, err := a.service.GetCounterparty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counterparty": cp})
}

func (a *API) handleCounterpartyLedger(w http.ResponseWriter, r *http.Request) {
	var req domain.CounterpartyPaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	cp, err := a.service.RecordCounterpartyPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counterparty": cp})
}

// ==================== Audit and users ====================

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff(r.Context())})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.auth.CreateStaff(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"staff": user})
}
