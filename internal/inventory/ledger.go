// Package inventory owns the lifecycle status of each physical unit.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store"
)

// ProductStore is the slice of the repository the ledger reads and writes.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	FindProductsBySerial(ctx context.Context, serial string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product, expected domain.ProductStatus) (*domain.Product, error)
}

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve picks the live record for serial that can go on a bill, preferring
// AVAILABLE over RETURN and newer over older. It never writes.
func (l *Ledger) Reserve(ctx context.Context, repo ProductStore, serial string) (domain.Product, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return domain.Product{}, fmt.Errorf("%w: empty serial", store.ErrInvalidRequest)
	}
	records, err := repo.FindProductsBySerial(ctx, serial)
	if err != nil {
		return domain.Product{}, err
	}
	if len(records) == 0 {
		return domain.Product{}, fmt.Errorf("%w: %s", store.ErrProductNotFound, serial)
	}

	var picked *domain.Product
	for i := range records {
		candidate := &records[i]
		if !candidate.Status.Reservable() {
			continue
		}
		if picked == nil || (candidate.Status == domain.ProductAvailable && picked.Status != domain.ProductAvailable) {
			picked = candidate
		}
	}
	if picked == nil {
		return domain.Product{}, fmt.Errorf("%w: %s is %s", store.ErrProductUnavailable, serial, records[0].Status)
	}
	return *picked, nil
}

// ReserveAll reserves every serial or none. The failure lists every serial
// that could not be reserved, in request order.
func (l *Ledger) ReserveAll(ctx context.Context, repo ProductStore, serials []string) (map[string]domain.Product, error) {
	reserved := make(map[string]domain.Product, len(serials))
	var rejected []string
	for _, serial := range serials {
		product, err := l.Reserve(ctx, repo, serial)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) || errors.Is(err, store.ErrProductUnavailable) {
				rejected = append(rejected, serial)
				continue
			}
			return nil, err
		}
		reserved[serial] = product
	}
	if len(rejected) > 0 {
		return nil, &store.UnavailableError{Serials: rejected}
	}
	return reserved, nil
}

// FinalizeSale marks the unit SOLD under billingID. Repeating it for the same
// bill is a no-op; a unit sold under another bill fails with ErrAlreadySold.
func (l *Ledger) FinalizeSale(ctx context.Context, repo ProductStore, productID string, billingID string, price decimal.Decimal, at time.Time) (domain.Product, error) {
	current, err := l.get(ctx, repo, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if current.Status == domain.ProductSold {
		if current.BillingID == billingID {
			return current, nil
		}
		return domain.Product{}, fmt.Errorf("%w: %s", store.ErrAlreadySold, current.Serial)
	}
	if !current.Status.Reservable() {
		return domain.Product{}, fmt.Errorf("%w: %s is %s", store.ErrProductUnavailable, current.Serial, current.Status)
	}

	next := current
	next.Status = domain.ProductSold
	next.SoldAtPrice = price
	next.BillingID = billingID
	next.UpdatedAt = at
	return l.write(ctx, repo, next, current.Status)
}

// Reprice updates the sale price of a unit already sold under billingID.
func (l *Ledger) Reprice(ctx context.Context, repo ProductStore, productID string, billingID string, price decimal.Decimal, at time.Time) (domain.Product, error) {
	current, err := l.get(ctx, repo, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if current.Status != domain.ProductSold || current.BillingID != billingID {
		return domain.Product{}, fmt.Errorf("%w: %s is not sold under %s", store.ErrInvalidTransition, current.Serial, billingID)
	}
	if current.SoldAtPrice.Equal(price) {
		return current, nil
	}
	next := current
	next.SoldAtPrice = price
	next.UpdatedAt = at
	return l.write(ctx, repo, next, domain.ProductSold)
}

// Release returns a sold unit to the pool. It becomes RETURN when another live
// record with the same serial is still SOLD, otherwise AVAILABLE. A unit that
// is already back in the pool is left alone.
func (l *Ledger) Release(ctx context.Context, repo ProductStore, productID string, at time.Time) (domain.ProductStatus, error) {
	current, err := l.get(ctx, repo, productID)
	if err != nil {
		return "", err
	}
	if current.Status.Reservable() {
		return current.Status, nil
	}
	if current.Status != domain.ProductSold {
		return "", fmt.Errorf("%w: cannot release %s from %s", store.ErrInvalidTransition, current.Serial, current.Status)
	}

	status, err := l.poolStatus(ctx, repo, current, domain.ProductSold)
	if err != nil {
		return "", err
	}

	next := current
	next.Status = status
	next.SoldAtPrice = decimal.Zero
	next.BillingID = ""
	next.UpdatedAt = at
	if _, err := l.write(ctx, repo, next, domain.ProductSold); err != nil {
		return "", err
	}
	return status, nil
}

// Remove takes a unit out of every active query. Sold units cannot be removed.
func (l *Ledger) Remove(ctx context.Context, repo ProductStore, productID string, at time.Time) (domain.Product, error) {
	current, err := l.get(ctx, repo, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if current.Status == domain.ProductRemoved {
		return current, nil
	}
	if !current.Status.CanTransition(domain.ProductRemoved) {
		return domain.Product{}, fmt.Errorf("%w: cannot remove %s unit %s", store.ErrInvalidTransition, current.Status, current.Serial)
	}
	next := current
	next.Status = domain.ProductRemoved
	next.UpdatedAt = at
	return l.write(ctx, repo, next, current.Status)
}

func (l *Ledger) StartRepair(ctx context.Context, repo ProductStore, productID string, issue string, repairerID string, at time.Time) (domain.Product, error) {
	current, err := l.get(ctx, repo, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !current.Status.Reservable() {
		return domain.Product{}, fmt.Errorf("%w: cannot repair %s unit %s", store.ErrInvalidTransition, current.Status, current.Serial)
	}
	started := at
	next := current
	next.Status = domain.ProductInRepairing
	next.Issue = issue
	next.RepairBy = repairerID
	next.RepairStartedAt = &started
	next.RepairCompletedAt = nil
	next.UpdatedAt = at
	return l.write(ctx, repo, next, current.Status)
}

type RepairCompletion struct {
	Parts        []domain.RepairPart
	RepairerCost decimal.Decimal
	Remark       string
}

// CompleteRepair puts the unit back in the pool and folds the repair spend into
// purchase_cost_including_expenses. It comes back as RETURN while another live
// record with the serial is AVAILABLE or SOLD.
func (l *Ledger) CompleteRepair(ctx context.Context, repo ProductStore, productID string, done RepairCompletion, at time.Time) (domain.Product, error) {
	current, err := l.get(ctx, repo, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if current.Status != domain.ProductInRepairing {
		return domain.Product{}, fmt.Errorf("%w: %s is not in repair", store.ErrInvalidTransition, current.Serial)
	}
	status, err := l.poolStatus(ctx, repo, current, domain.ProductSold, domain.ProductAvailable)
	if err != nil {
		return domain.Product{}, err
	}

	completed := at
	next := current
	next.Status = status
	next.IsRepaired = true
	next.RepairParts = append([]domain.RepairPart(nil), done.Parts...)
	next.RepairerCost = done.RepairerCost
	next.RepairRemark = done.Remark
	next.RepairCompletedAt = &completed
	next.PurchaseCostIncludingExpenses = current.PurchasePrice.Add(done.RepairerCost).Add(PartsCost(done.Parts))
	next.UpdatedAt = at
	return l.write(ctx, repo, next, domain.ProductInRepairing)
}

func PartsCost(parts []domain.RepairPart) decimal.Decimal {
	total := decimal.Zero
	for _, part := range parts {
		total = total.Add(part.Cost)
	}
	return total
}

// SortedSerials returns a de-duplicated, sorted copy used for lock ordering.
func SortedSerials(serials ...[]string) []string {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, group := range serials {
		for _, serial := range group {
			serial = strings.TrimSpace(serial)
			if serial == "" || seen[serial] {
				continue
			}
			seen[serial] = true
			out = append(out, serial)
		}
	}
	sort.Strings(out)
	return out
}

// poolStatus is the status p takes when it goes back to the pool: RETURN when
// another live record with its serial holds one of the blocking statuses,
// otherwise AVAILABLE.
func (l *Ledger) poolStatus(ctx context.Context, repo ProductStore, p domain.Product, blocking ...domain.ProductStatus) (domain.ProductStatus, error) {
	siblings, err := repo.FindProductsBySerial(ctx, p.Serial)
	if err != nil {
		return "", err
	}
	for _, sibling := range siblings {
		if sibling.ID != p.ID && slices.Contains(blocking, sibling.Status) {
			return domain.ProductReturn, nil
		}
	}
	return domain.ProductAvailable, nil
}

func (l *Ledger) get(ctx context.Context, repo ProductStore, productID string) (domain.Product, error) {
	product, err := repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", store.ErrProductNotFound, productID)
		}
		return domain.Product{}, err
	}
	return *product, nil
}

func (l *Ledger) write(ctx context.Context, repo ProductStore, next domain.Product, expected domain.ProductStatus) (domain.Product, error) {
	saved, err := repo.UpdateProduct(ctx, next, expected)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}
