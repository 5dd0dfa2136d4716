package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/finance"
	"backoffice/backend/internal/inventory"
	"backoffice/backend/internal/lock"
	"backoffice/backend/internal/payment"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

func (s *Service) CreateBilling(ctx context.Context, req domain.BillingCreateRequest) (domain.BillingResult, error) {
	lines, err := normalizeLines(req.Products)
	if err != nil {
		return domain.BillingResult{}, err
	}
	incoming, err := payment.Normalize(req.PaidAmount)
	if err != nil {
		return domain.BillingResult{}, err
	}
	if req.PayableAmount.IsNegative() {
		return domain.BillingResult{}, fmt.Errorf("%w: payable_amount must not be negative", store.ErrInvalidRequest)
	}
	contact := strings.TrimSpace(req.CustomerContact)
	if contact == "" && !req.Draft {
		return domain.BillingResult{}, fmt.Errorf("%w: customer_contact is required to finalize a bill", store.ErrCustomerNotFound)
	}
	serials := lineSerials(lines)

	var created domain.Billing
	err = s.withRetry(ctx, "create billing", lock.SerialKeys(inventory.SortedSerials(serials)), func(ctx context.Context, repo store.Repository) error {
		customer, err := resolveCustomer(ctx, repo, contact)
		if err != nil {
			return err
		}
		reserved, err := s.ledger.ReserveAll(ctx, repo, serials)
		if err != nil {
			return err
		}

		now := s.now()
		billing := domain.Billing{
			ID:            xid.New("bill"),
			Items:         buildItems(lines, reserved, nil),
			PayableAmount: req.PayableAmount,
			PaidAmount:    payment.Accumulate(nil, incoming),
			CreatedBy:     actorName(ctx),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		setCustomer(&billing, customer)
		applyAmounts(&billing, req.Draft)

		number, err := repo.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		billing.InvoiceNumber = number

		if billing.Status.Finalized() {
			for _, item := range billing.Items {
				if _, err := s.ledger.FinalizeSale(ctx, repo, item.ProductID, billing.ID, item.Rate, now); err != nil {
					return err
				}
			}
		}
		if err := s.settleCustomer(ctx, repo, nil, &billing); err != nil {
			return err
		}

		saved, err := repo.CreateBilling(ctx, billing)
		if err != nil {
			return err
		}
		created = *saved
		return nil
	})
	if err != nil {
		return domain.BillingResult{}, err
	}

	s.logAudit(ctx, "CREATE_BILLING", "billing", created.ID, fmt.Sprintf("invoice=%d status=%s items=%d payable=%s", created.InvoiceNumber, created.Status, len(created.Items), created.PayableAmount))
	return billingResult(created), nil
}

// UpdateBilling replaces the product set, customer and payable of a bill and
// folds in any new payments. Units leaving a finalized bill are released, new
// units are sold and kept units are repriced.
func (s *Service) UpdateBilling(ctx context.Context, id string, req domain.BillingUpdateRequest) (domain.BillingResult, error) {
	lines, err := normalizeLines(req.Products)
	if err != nil {
		return domain.BillingResult{}, err
	}
	incoming, err := payment.Normalize(req.PaidAmount)
	if err != nil {
		return domain.BillingResult{}, err
	}
	if req.PayableAmount.Valid && req.PayableAmount.Decimal.IsNegative() {
		return domain.BillingResult{}, fmt.Errorf("%w: payable_amount must not be negative", store.ErrInvalidRequest)
	}
	current, err := s.loadBilling(ctx, s.repo, id)
	if err != nil {
		return domain.BillingResult{}, err
	}
	keys := billingLockKeys(id, current.Serials(), lineSerials(lines))

	var updated domain.Billing
	err = s.withRetry(ctx, "update billing", keys, func(ctx context.Context, repo store.Repository) error {
		before, err := s.loadBilling(ctx, repo, id)
		if err != nil {
			return err
		}
		if before.Status.Removed() {
			return fmt.Errorf("%w: billing %s is %s", store.ErrInvalidTransition, id, before.Status)
		}
		if before.Status.Finalized() && req.Draft {
			return fmt.Errorf("%w: a finalized bill cannot return to draft", store.ErrInvalidTransition)
		}

		after := cloneBilling(*before)
		if contact := strings.TrimSpace(req.CustomerContact); contact != "" && contact != before.CustomerContact {
			customer, err := resolveCustomer(ctx, repo, contact)
			if err != nil {
				return err
			}
			setCustomer(&after, customer)
		}

		oldItems := make(map[string]domain.BillingItem, len(before.Items))
		for _, item := range before.Items {
			oldItems[item.Serial] = item
		}
		newSerials := make(map[string]bool, len(lines))
		var added []string
		for _, line := range lines {
			newSerials[line.Serial] = true
			if _, kept := oldItems[line.Serial]; !kept {
				added = append(added, line.Serial)
			}
		}
		var removed []domain.BillingItem
		for _, item := range before.Items {
			if !newSerials[item.Serial] {
				removed = append(removed, item)
			}
		}

		reserved, err := s.ledger.ReserveAll(ctx, repo, added)
		if err != nil {
			return err
		}

		after.Items = buildItems(lines, reserved, oldItems)
		after.PaidAmount = payment.Accumulate(before.PaidAmount, incoming)
		if req.PayableAmount.Valid {
			after.PayableAmount = req.PayableAmount.Decimal
		}
		applyAmounts(&after, req.Draft)
		if after.Status.Finalized() && after.CustomerID == "" {
			return fmt.Errorf("%w: a finalized bill needs a customer", store.ErrCustomerNotFound)
		}

		now := s.now()
		wasFinal := before.Status.Finalized()
		if wasFinal {
			for _, item := range removed {
				if _, err := s.ledger.Release(ctx, repo, item.ProductID, now); err != nil {
					return err
				}
			}
		}
		if after.Status.Finalized() {
			for _, item := range after.Items {
				_, kept := oldItems[item.Serial]
				if kept && wasFinal {
					_, err = s.ledger.Reprice(ctx, repo, item.ProductID, after.ID, item.Rate, now)
				} else {
					_, err = s.ledger.FinalizeSale(ctx, repo, item.ProductID, after.ID, item.Rate, now)
				}
				if err != nil {
					return err
				}
			}
		}
		if err := s.settleCustomer(ctx, repo, before, &after); err != nil {
			return err
		}

		after.UpdatedAt = now
		saved, err := repo.UpdateBilling(ctx, after, before.Version)
		if err != nil {
			return err
		}
		updated = *saved
		return nil
	})
	if err != nil {
		return domain.BillingResult{}, err
	}

	s.invalidate(ctx, id)
	s.logAudit(ctx, "UPDATE_BILLING", "billing", id, fmt.Sprintf("status=%s items=%d payable=%s pending=%s", updated.Status, len(updated.Items), updated.PayableAmount, updated.PendingAmount))
	return billingResult(updated), nil
}

// RecordPayment merges payments into a bill. The first payment on a draft
// finalizes it. An empty list changes nothing.
func (s *Service) RecordPayment(ctx context.Context, id string, payments []domain.PaymentInput) (domain.BillingResult, error) {
	incoming, err := payment.Normalize(payments)
	if err != nil {
		return domain.BillingResult{}, err
	}
	current, err := s.loadBilling(ctx, s.repo, id)
	if err != nil {
		return domain.BillingResult{}, err
	}
	if len(incoming) == 0 {
		return billingResult(*current), nil
	}

	var updated domain.Billing
	err = s.withRetry(ctx, "record payment", billingLockKeys(id, current.Serials()), func(ctx context.Context, repo store.Repository) error {
		before, err := s.loadBilling(ctx, repo, id)
		if err != nil {
			return err
		}
		if before.Status.Removed() {
			return fmt.Errorf("%w: billing %s is %s", store.ErrInvalidTransition, id, before.Status)
		}
		if before.CustomerID == "" {
			return fmt.Errorf("%w: a finalized bill needs a customer", store.ErrCustomerNotFound)
		}

		now := s.now()
		after := cloneBilling(*before)
		after.PaidAmount = payment.Accumulate(before.PaidAmount, incoming)
		applyAmounts(&after, false)
		if before.Status == domain.BillingDrafted {
			for _, item := range after.Items {
				if _, err := s.ledger.FinalizeSale(ctx, repo, item.ProductID, after.ID, item.Rate, now); err != nil {
					return err
				}
			}
		}
		if err := s.settleCustomer(ctx, repo, before, &after); err != nil {
			return err
		}

		after.UpdatedAt = now
		saved, err := repo.UpdateBilling(ctx, after, before.Version)
		if err != nil {
			return err
		}
		updated = *saved
		return nil
	})
	if err != nil {
		return domain.BillingResult{}, err
	}

	s.invalidate(ctx, id)
	s.logAudit(ctx, "RECORD_PAYMENT", "billing", id, fmt.Sprintf("paid=%s pending=%s status=%s", payment.Total(incoming), updated.PendingAmount, updated.Status))
	return billingResult(updated), nil
}

// DeleteBilling soft-deletes a bill, releasing its units when it was
// finalized. Only drafts may be hard-deleted.
func (s *Service) DeleteBilling(ctx context.Context, id string, opts domain.BillingDeleteOptions) (domain.BillingDeleteResponse, error) {
	if opts.Hard {
		if err := requireAdmin(ctx); err != nil {
			return domain.BillingDeleteResponse{}, err
		}
	}
	current, err := s.loadBilling(ctx, s.repo, id)
	if err != nil {
		return domain.BillingDeleteResponse{}, err
	}

	var resp domain.BillingDeleteResponse
	err = s.withRetry(ctx, "delete billing", billingLockKeys(id, current.Serials()), func(ctx context.Context, repo store.Repository) error {
		resp = domain.BillingDeleteResponse{ID: id}
		before, err := s.loadBilling(ctx, repo, id)
		if err != nil {
			return err
		}
		if before.Status.Removed() {
			resp.Status = before.Status
			return nil
		}
		if opts.Hard && before.Status != domain.BillingDrafted {
			return fmt.Errorf("%w: only drafted bills can be hard deleted", store.ErrInvalidTransition)
		}

		now := s.now()
		after := cloneBilling(*before)
		if before.Status == domain.BillingDrafted {
			resp.Status = domain.BillingRemovedDrafted
			if opts.Hard {
				resp.Deleted = true
				return repo.DeleteBilling(ctx, id)
			}
		} else {
			resp.Status = domain.BillingRemovedCheckout
			for _, item := range before.Items {
				status, err := s.ledger.Release(ctx, repo, item.ProductID, now)
				if err != nil {
					return err
				}
				resp.Released = append(resp.Released, domain.ReleasedProduct{ProductID: item.ProductID, Serial: item.Serial, Status: status})
			}
		}

		after.Status = resp.Status
		if err := s.settleCustomer(ctx, repo, before, &after); err != nil {
			return err
		}
		after.UpdatedAt = now
		_, err = repo.UpdateBilling(ctx, after, before.Version)
		return err
	})
	if err != nil {
		return domain.BillingDeleteResponse{}, err
	}

	s.invalidate(ctx, id)
	s.logAudit(ctx, "DELETE_BILLING", "billing", id, fmt.Sprintf("status=%s hard=%t released=%d", resp.Status, resp.Deleted, len(resp.Released)))
	return resp, nil
}

func (s *Service) GetBilling(ctx context.Context, id string) (domain.BillingResult, error) {
	if cached, ok, err := s.cache.Get(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("billing_id", id).Msg("billing cache read failed")
	} else if ok {
		return *cached, nil
	}

	billing, err := s.loadBilling(ctx, s.repo, id)
	if err != nil {
		return domain.BillingResult{}, err
	}
	result := billingResult(*billing)
	if err := s.cache.Set(ctx, id, &result, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("billing_id", id).Msg("billing cache write failed")
	}
	return result, nil
}

func (s *Service) ListBillings(ctx context.Context, filter store.BillingFilter) (domain.BillingListResponse, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = store.DefaultBillingStatuses
	}
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return domain.BillingListResponse{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidRequest, status)
		}
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 500
	}

	billings, err := s.repo.ListBillings(ctx, filter)
	if err != nil {
		return domain.BillingListResponse{}, err
	}
	resp := domain.BillingListResponse{
		Billings:       billings,
		TotalAmount:    decimal.Zero,
		TotalRemaining: decimal.Zero,
		TotalProfit:    decimal.Zero,
	}
	for _, billing := range billings {
		resp.TotalAmount = resp.TotalAmount.Add(billing.PayableAmount)
		resp.TotalRemaining = resp.TotalRemaining.Add(billing.PendingAmount)
		resp.TotalProfit = resp.TotalProfit.Add(billing.ActualProfit)
		resp.TotalProducts += len(billing.Items)
	}
	return resp, nil
}

func (s *Service) loadBilling(ctx context.Context, repo store.Repository, id string) (*domain.Billing, error) {
	billing, err := repo.GetBilling(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: billing %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return billing, nil
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if err := s.cache.Delete(ctx, ids...); err != nil {
		s.log.Warn().Err(err).Strs("billing_ids", ids).Msg("billing cache invalidation failed")
	}
}

// settleCustomer moves the customer ledger by the difference between the
// bill's contribution before and after the change.
func (s *Service) settleCustomer(ctx context.Context, repo store.Repository, before *domain.Billing, after *domain.Billing) error {
	old := contributionOf(before)
	next := contributionOf(after)

	if old.customerID == next.customerID {
		if next.customerID == "" {
			return nil
		}
		delta := domain.LedgerDelta{
			PayableDelta: next.payable.Sub(old.payable),
			PaidEntries:  payment.Diff(old.paid, next.paid),
			AdvanceDelta: payment.AdvanceTotal(old.paid).Sub(payment.AdvanceTotal(next.paid)),
		}
		return s.applyLedgerDelta(ctx, repo, next.customerID, delta)
	}
	if old.customerID != "" {
		if err := s.applyLedgerDelta(ctx, repo, old.customerID, old.reversal()); err != nil {
			return err
		}
	}
	if next.customerID != "" {
		if err := s.applyLedgerDelta(ctx, repo, next.customerID, next.charge()); err != nil {
			return err
		}
	}
	return nil
}

type contribution struct {
	customerID string
	payable    decimal.Decimal
	paid       []domain.PaymentEntry
}

// contributionOf is what a bill adds to its customer's ledger. Only finalized
// bills count.
func contributionOf(b *domain.Billing) contribution {
	if b == nil || !b.Status.Finalized() || b.CustomerID == "" {
		return contribution{payable: decimal.Zero}
	}
	return contribution{customerID: b.CustomerID, payable: b.PayableAmount, paid: b.PaidAmount}
}

func (c contribution) charge() domain.LedgerDelta {
	return domain.LedgerDelta{
		PayableDelta: c.payable,
		PaidEntries:  payment.Diff(nil, c.paid),
		AdvanceDelta: payment.AdvanceTotal(c.paid).Neg(),
	}
}

func (c contribution) reversal() domain.LedgerDelta {
	return domain.LedgerDelta{
		PayableDelta: c.payable.Neg(),
		PaidEntries:  payment.Diff(c.paid, nil),
		AdvanceDelta: payment.AdvanceTotal(c.paid),
	}
}

func resolveCustomer(ctx context.Context, repo store.Repository, contact string) (*domain.Counterparty, error) {
	if contact == "" {
		return nil, nil
	}
	customer, err := repo.FindCounterpartyByContact(ctx, contact, domain.RoleCustomer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrCustomerNotFound, contact)
		}
		return nil, err
	}
	return customer, nil
}

func setCustomer(billing *domain.Billing, customer *domain.Counterparty) {
	if customer == nil {
		return
	}
	billing.CustomerID = customer.ID
	billing.CustomerName = customer.Name
	billing.CustomerContact = customer.Contact
}

func normalizeLines(lines []domain.BillingLineRequest) ([]domain.BillingLineRequest, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one product is required", store.ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(lines))
	out := make([]domain.BillingLineRequest, 0, len(lines))
	for _, line := range lines {
		serial := strings.TrimSpace(line.Serial)
		if serial == "" {
			return nil, fmt.Errorf("%w: product without imei_number", store.ErrInvalidRequest)
		}
		if seen[serial] {
			return nil, fmt.Errorf("%w: %s listed twice", store.ErrInvalidRequest, serial)
		}
		if line.Rate.IsNegative() {
			return nil, fmt.Errorf("%w: rate for %s must not be negative", store.ErrInvalidRequest, serial)
		}
		seen[serial] = true
		out = append(out, domain.BillingLineRequest{Serial: serial, Rate: line.Rate})
	}
	return out, nil
}

func lineSerials(lines []domain.BillingLineRequest) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Serial)
	}
	return out
}

func billingLockKeys(id string, serials ...[]string) []string {
	keys := lock.SerialKeys(inventory.SortedSerials(serials...))
	return append(keys, lock.BillingKey(id))
}

// buildItems snapshots each line in request order. Kept lines reuse the
// product reference and cost figures already on the bill.
func buildItems(lines []domain.BillingLineRequest, reserved map[string]domain.Product, existing map[string]domain.BillingItem) []domain.BillingItem {
	items := make([]domain.BillingItem, 0, len(lines))
	for _, line := range lines {
		if item, ok := existing[line.Serial]; ok {
			item.Rate = line.Rate
			items = append(items, item)
			continue
		}
		product := reserved[line.Serial]
		items = append(items, domain.BillingItem{
			ProductID:        product.ID,
			Serial:           product.Serial,
			ModelName:        product.ModelName,
			Rate:             line.Rate,
			SalesPrice:       product.SalesPrice,
			PurchasePrice:    product.PurchasePrice,
			GSTPurchasePrice: product.GSTPurchasePrice,
		})
	}
	return items
}

// applyAmounts recomputes every derived figure and the status of a bill.
func applyAmounts(billing *domain.Billing, draft bool) {
	summary := finance.Summarize(financeLines(billing.Items), billing.PayableAmount)
	billing.ProfitToShow = summary.ProfitToShow
	billing.ActualProfit = summary.ActualProfit
	billing.CGST = summary.Tax.CGST
	billing.SGST = summary.Tax.SGST
	billing.NetTotal = summary.NetTotal
	billing.PendingAmount = payment.Pending(billing.PayableAmount, billing.PaidAmount)
	billing.Status = payment.Status(billing.PayableAmount, payment.Total(billing.PaidAmount), draft)
}

func financeLines(items []domain.BillingItem) []finance.Line {
	lines := make([]finance.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, finance.Line{Rate: item.Rate, PurchasePrice: item.PurchasePrice, GSTPurchasePrice: item.GSTPurchasePrice})
	}
	return lines
}

func billingResult(billing domain.Billing) domain.BillingResult {
	totals := domain.BillingTotals{
		TotalSalesPrice:       decimal.Zero,
		TotalRate:             decimal.Zero,
		TotalPurchasePrice:    decimal.Zero,
		TotalGSTPurchasePrice: decimal.Zero,
	}
	basis := finance.ComputeCostBasis(financeLines(billing.Items))
	for _, item := range billing.Items {
		totals.TotalSalesPrice = totals.TotalSalesPrice.Add(item.SalesPrice)
	}
	totals.TotalRate = basis.TotalSale
	totals.TotalPurchasePrice = basis.TotalPurchase
	totals.TotalGSTPurchasePrice = basis.TotalGSTPurchase
	return domain.BillingResult{Billing: billing, Totals: totals}
}

func cloneBilling(b domain.Billing) domain.Billing {
	out := b
	out.Items = append([]domain.BillingItem(nil), b.Items...)
	out.PaidAmount = append([]domain.PaymentEntry(nil), b.PaidAmount...)
	return out
}
