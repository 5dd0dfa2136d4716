package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/payment"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

func (s *Service) CreateCounterparty(ctx context.Context, req domain.CounterpartyCreateRequest) (domain.Counterparty, error) {
	role, err := parseRole(req.Role)
	if err != nil {
		return domain.Counterparty{}, err
	}
	name := strings.TrimSpace(req.Name)
	contact := strings.TrimSpace(req.Contact)
	if name == "" || contact == "" {
		return domain.Counterparty{}, fmt.Errorf("%w: name and contact are required", store.ErrInvalidRequest)
	}

	now := s.now()
	created, err := s.repo.CreateCounterparty(ctx, domain.Counterparty{
		ID:            xid.New("cp"),
		Name:          name,
		Contact:       contact,
		Role:          role,
		Address:       strings.TrimSpace(req.Address),
		PayableAmount: decimal.Zero,
		PendingAmount: decimal.Zero,
		PaidAmount:    []domain.PaymentEntry{},
		AdvanceAmount: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Counterparty{}, fmt.Errorf("%w: %s %s already exists", store.ErrDuplicate, strings.ToLower(string(role)), contact)
		}
		return domain.Counterparty{}, err
	}

	s.logAudit(ctx, "CREATE_COUNTERPARTY", "counterparty", created.ID, fmt.Sprintf("role=%s contact=%s", created.Role, created.Contact))
	return *created, nil
}

func (s *Service) GetCounterparty(ctx context.Context, id string) (domain.Counterparty, error) {
	cp, err := loadCounterparty(ctx, s.repo, id)
	if err != nil {
		return domain.Counterparty{}, err
	}
	return *cp, nil
}

func (s *Service) FindCounterpartyByContact(ctx context.Context, contact string, role string) (domain.Counterparty, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return domain.Counterparty{}, fmt.Errorf("%w: contact is required", store.ErrInvalidRequest)
	}
	var parsed domain.CounterpartyRole
	if strings.TrimSpace(role) != "" {
		r, err := parseRole(role)
		if err != nil {
			return domain.Counterparty{}, err
		}
		parsed = r
	}
	cp, err := s.repo.FindCounterpartyByContact(ctx, contact, parsed)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Counterparty{}, fmt.Errorf("%w: %s", store.ErrCounterpartyNotFound, contact)
		}
		return domain.Counterparty{}, err
	}
	return *cp, nil
}

// ListCounterparties lists by role, narrows by name and contact, and totals
// the result. Part cost sums every repair part bought from a listed shop,
// removed units included.
func (s *Service) ListCounterparties(ctx context.Context, query domain.CounterpartyQuery) (domain.CounterpartyListResponse, error) {
	var parsed domain.CounterpartyRole
	if strings.TrimSpace(query.Role) != "" {
		r, err := parseRole(query.Role)
		if err != nil {
			return domain.CounterpartyListResponse{}, err
		}
		parsed = r
	}
	all, err := s.repo.ListCounterparties(ctx, parsed)
	if err != nil {
		return domain.CounterpartyListResponse{}, err
	}

	name := strings.ToLower(strings.TrimSpace(query.Name))
	contact := strings.ToLower(strings.TrimSpace(query.Contact))
	resp := domain.CounterpartyListResponse{
		Counterparties: []domain.Counterparty{},
		PartCostTotal:  decimal.Zero,
		PayableTotal:   decimal.Zero,
		PendingTotal:   decimal.Zero,
		PaidTotal:      decimal.Zero,
	}
	shops := map[string]bool{}
	for _, cp := range all {
		if name != "" && !strings.Contains(strings.ToLower(cp.Name), name) {
			continue
		}
		if contact != "" && !strings.Contains(strings.ToLower(cp.Contact), contact) {
			continue
		}
		resp.Counterparties = append(resp.Counterparties, cp)
		resp.PayableTotal = resp.PayableTotal.Add(cp.PayableAmount)
		resp.PendingTotal = resp.PendingTotal.Add(cp.PendingAmount)
		if cp.Role == domain.RoleShop {
			shops[cp.ID] = true
		}
	}
	resp.PaidTotal = resp.PayableTotal.Sub(resp.PendingTotal)

	if len(shops) > 0 {
		products, err := s.repo.ListProducts(ctx, store.ProductFilter{IncludeRemoved: true})
		if err != nil {
			return domain.CounterpartyListResponse{}, err
		}
		for _, product := range products {
			for _, part := range product.RepairParts {
				if shops[part.ShopID] {
					resp.PartCostTotal = resp.PartCostTotal.Add(part.Cost)
				}
			}
		}
	}
	return resp, nil
}

// RecordCounterpartyPayment settles money directly against a counterparty,
// outside any bill. advance_amount tops up the standing advance.
func (s *Service) RecordCounterpartyPayment(ctx context.Context, id string, req domain.CounterpartyPaymentRequest) (domain.Counterparty, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Counterparty{}, err
	}
	entries, err := payment.Normalize(req.PaidAmount)
	if err != nil {
		return domain.Counterparty{}, err
	}
	delta := domain.LedgerDelta{
		PayableDelta: req.PayableAmount,
		PaidEntries:  entries,
		AdvanceDelta: req.AdvanceAmount.Sub(payment.AdvanceTotal(entries)),
	}

	var updated domain.Counterparty
	err = s.withRetry(ctx, "record counterparty payment", nil, func(ctx context.Context, repo store.Repository) error {
		if delta.IsZero() {
			cp, err := loadCounterparty(ctx, repo, id)
			if err != nil {
				return err
			}
			updated = *cp
			return nil
		}
		cp, err := s.applyLedger(ctx, repo, id, delta)
		if err != nil {
			return err
		}
		updated = *cp
		return nil
	})
	if err != nil {
		return domain.Counterparty{}, err
	}

	s.logAudit(ctx, "RECORD_COUNTERPARTY_PAYMENT", "counterparty", id, fmt.Sprintf("payable_delta=%s paid=%s advance_delta=%s", delta.PayableDelta, payment.Total(entries), delta.AdvanceDelta))
	return updated, nil
}

// applyLedgerDelta moves a counterparty's running totals. Zero deltas do not
// write.
func (s *Service) applyLedgerDelta(ctx context.Context, repo store.Repository, id string, delta domain.LedgerDelta) error {
	if delta.IsZero() {
		return nil
	}
	_, err := s.applyLedger(ctx, repo, id, delta)
	return err
}

func (s *Service) applyLedger(ctx context.Context, repo store.Repository, id string, delta domain.LedgerDelta) (*domain.Counterparty, error) {
	cp, err := loadCounterparty(ctx, repo, id)
	if err != nil {
		return nil, err
	}

	next := *cp
	next.PayableAmount = cp.PayableAmount.Add(delta.PayableDelta)
	next.PaidAmount = payment.Accumulate(cp.PaidAmount, delta.PaidEntries)
	next.AdvanceAmount = cp.AdvanceAmount.Add(delta.AdvanceDelta)
	if next.AdvanceAmount.IsNegative() {
		return nil, fmt.Errorf("%w: advance balance of %s is %s", store.ErrInvalidPayment, cp.Name, cp.AdvanceAmount)
	}
	next.PendingAmount = payment.Pending(next.PayableAmount, next.PaidAmount)
	next.UpdatedAt = s.now()
	return repo.UpdateCounterparty(ctx, next, cp.Version)
}

func loadCounterparty(ctx context.Context, repo store.Repository, id string) (*domain.Counterparty, error) {
	cp, err := repo.GetCounterparty(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrCounterpartyNotFound, id)
		}
		return nil, err
	}
	return cp, nil
}

func parseRole(role string) (domain.CounterpartyRole, error) {
	parsed := domain.CounterpartyRole(strings.ToUpper(strings.TrimSpace(role)))
	switch parsed {
	case domain.RoleCustomer, domain.RoleSupplier, domain.RoleRepairer, domain.RoleShop:
		return parsed, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", store.ErrInvalidRequest, role)
}
