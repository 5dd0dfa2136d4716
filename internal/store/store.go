package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrProductUnavailable   = errors.New("product unavailable")
	ErrAlreadySold          = errors.New("product already sold")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrCounterpartyNotFound = errors.New("counterparty not found")
	ErrInvalidPayment       = errors.New("invalid payment")
	ErrConflict             = errors.New("concurrent update conflict")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrDuplicate            = errors.New("duplicate record")
	ErrDuplicateSerial      = errors.New("serial already available in stock")
)

// UnavailableError lists every serial that could not be reserved for a bill.
type UnavailableError struct {
	Serials []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductUnavailable, strings.Join(e.Serials, ", "))
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrProductUnavailable
}

type ProductFilter struct {
	Serial         string
	Status         domain.ProductStatus
	SupplierID     string
	IncludeRemoved bool
	Limit          int
}

type BillingFilter struct {
	Search   string
	Serial   string
	Statuses []domain.BillingStatus
	From     time.Time
	To       time.Time
	Limit    int
}

// TxFunc runs against a repository bound to an open transaction.
type TxFunc func(ctx context.Context, repo Repository) error

type Repository interface {
	// RunInTx executes fn atomically. Returning an error rolls every write back.
	RunInTx(ctx context.Context, fn TxFunc) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	// FindProductsBySerial returns live records for the exact serial, newest first.
	FindProductsBySerial(ctx context.Context, serial string) ([]domain.Product, error)
	// UpdateProduct replaces the record only while its stored status equals
	// expected, otherwise ErrConflict.
	UpdateProduct(ctx context.Context, product domain.Product, expected domain.ProductStatus) (*domain.Product, error)

	NextInvoiceNumber(ctx context.Context) (int64, error)
	CreateBilling(ctx context.Context, billing domain.Billing) (*domain.Billing, error)
	GetBilling(ctx context.Context, id string) (*domain.Billing, error)
	ListBillings(ctx context.Context, filter BillingFilter) ([]domain.Billing, error)
	// UpdateBilling replaces the bill only while its stored version equals
	// expectedVersion and bumps the version, otherwise ErrConflict.
	UpdateBilling(ctx context.Context, billing domain.Billing, expectedVersion int64) (*domain.Billing, error)
	DeleteBilling(ctx context.Context, id string) error

	CreateCounterparty(ctx context.Context, cp domain.Counterparty) (*domain.Counterparty, error)
	GetCounterparty(ctx context.Context, id string) (*domain.Counterparty, error)
	FindCounterpartyByContact(ctx context.Context, contact string, role domain.CounterpartyRole) (*domain.Counterparty, error)
	ListCounterparties(ctx context.Context, role domain.CounterpartyRole) ([]domain.Counterparty, error)
	UpdateCounterparty(ctx context.Context, cp domain.Counterparty, expectedVersion int64) (*domain.Counterparty, error)

	FindOrCreateBrand(ctx context.Context, name string) (*domain.Brand, error)
	FindOrCreateModel(ctx context.Context, brandID string, name string) (*domain.Model, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	ListModels(ctx context.Context, brandID string) ([]domain.Model, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// DefaultBillingStatuses is the listing scope when no status is requested.
var DefaultBillingStatuses = []domain.BillingStatus{
	domain.BillingUnpaid,
	domain.BillingPartiallyPaid,
	domain.BillingPaid,
}

// MatchesBilling applies the non-status parts of a filter in memory. Drivers
// that cannot push a clause down use it to post-filter.
func (f BillingFilter) MatchesBilling(b domain.Billing) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, status := range f.Statuses {
			if b.Status == status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && b.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !b.CreatedAt.Before(f.To) {
		return false
	}
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		if !strings.Contains(strings.ToLower(b.CustomerName), search) && !strings.Contains(strings.ToLower(b.CustomerContact), search) {
			return false
		}
	}
	if serial := strings.ToLower(strings.TrimSpace(f.Serial)); serial != "" {
		found := false
		for _, item := range b.Items {
			if strings.Contains(strings.ToLower(item.Serial), serial) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
