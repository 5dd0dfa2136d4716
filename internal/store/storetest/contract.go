// Package storetest holds behaviour checks shared by every store.Repository
// driver. Each check namespaces its data with a unique suffix so it can run
// against a database that already holds rows.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store"
)

// Run executes the repository checks against repo.
func Run(t *testing.T, repo store.Repository) {
	t.Helper()
	t.Run("ProductStatusCAS", func(t *testing.T) { productStatusCAS(t, repo) })
	t.Run("SerialLookupSkipsRemoved", func(t *testing.T) { serialLookupSkipsRemoved(t, repo) })
	t.Run("BillingVersionCAS", func(t *testing.T) { billingVersionCAS(t, repo) })
	t.Run("TxRollback", func(t *testing.T) { txRollback(t, repo) })
	t.Run("CounterpartyUniqueContactRole", func(t *testing.T) { counterpartyUnique(t, repo) })
	t.Run("CatalogFindOrCreate", func(t *testing.T) { catalogFindOrCreate(t, repo) })
	t.Run("InvoiceNumbersIncrease", func(t *testing.T) { invoiceNumbersIncrease(t, repo) })
}

func suffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func newProduct(serial string, status domain.ProductStatus) domain.Product {
	return domain.Product{
		Serial:           serial,
		Status:           status,
		SalesPrice:       decimal.NewFromInt(1500),
		PurchasePrice:    decimal.NewFromInt(1000),
		GSTPurchasePrice: decimal.NewFromInt(1500),
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}
}

func productStatusCAS(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	p, err := repo.CreateProduct(ctx, newProduct("CAS-"+suffix(), domain.ProductAvailable))
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	sold := *p
	sold.Status = domain.ProductSold
	sold.BillingID = "bill-x"
	got, err := repo.UpdateProduct(ctx, sold, domain.ProductAvailable)
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if got.Status != domain.ProductSold || got.BillingID != "bill-x" {
		t.Fatalf("unexpected product after update: %+v", got)
	}

	stale := *p
	stale.Status = domain.ProductInRepairing
	if _, err := repo.UpdateProduct(ctx, stale, domain.ProductAvailable); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale status, got %v", err)
	}

	missing := *p
	missing.ID = "prd-missing-" + suffix()
	if _, err := repo.UpdateProduct(ctx, missing, domain.ProductAvailable); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func serialLookupSkipsRemoved(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	serial := "LOOKUP-" + suffix()

	older := newProduct(serial, domain.ProductSold)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	if _, err := repo.CreateProduct(ctx, older); err != nil {
		t.Fatalf("create older: %v", err)
	}
	if _, err := repo.CreateProduct(ctx, newProduct(serial, domain.ProductRemoved)); err != nil {
		t.Fatalf("create removed: %v", err)
	}
	newer, err := repo.CreateProduct(ctx, newProduct(serial, domain.ProductReturn))
	if err != nil {
		t.Fatalf("create newer: %v", err)
	}

	found, err := repo.FindProductsBySerial(ctx, serial)
	if err != nil {
		t.Fatalf("find by serial: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 live records, got %d", len(found))
	}
	if found[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %s", found[0].ID)
	}
}

func billingVersionCAS(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	n, err := repo.NextInvoiceNumber(ctx)
	if err != nil {
		t.Fatalf("next invoice: %v", err)
	}
	b, err := repo.CreateBilling(ctx, domain.Billing{
		InvoiceNumber: n,
		Items: []domain.BillingItem{{
			ProductID: "prd-1",
			Serial:    "BILL-" + suffix(),
			Rate:      decimal.NewFromInt(1200),
		}},
		PayableAmount: decimal.NewFromInt(1200),
		PaidAmount:    []domain.PaymentEntry{{Method: "cash", Amount: decimal.NewFromInt(200)}},
		PendingAmount: decimal.NewFromInt(1000),
		CGST:          decimal.RequireFromString("111.1104"),
		SGST:          decimal.RequireFromString("111.1104"),
		NetTotal:      decimal.RequireFromString("1422.2208"),
		Status:        domain.BillingPartiallyPaid,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		t.Fatalf("create billing: %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("expected version 1, got %d", b.Version)
	}

	got, err := repo.GetBilling(ctx, b.ID)
	if err != nil {
		t.Fatalf("get billing: %v", err)
	}
	if len(got.Items) != 1 || len(got.PaidAmount) != 1 || !got.PendingAmount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("billing did not round-trip: %+v", got)
	}
	if !got.CGST.Equal(decimal.RequireFromString("111.1104")) || !got.NetTotal.Equal(decimal.RequireFromString("1422.2208")) {
		t.Fatalf("tax figures were not stored exactly: c_gst=%s net_total=%s", got.CGST, got.NetTotal)
	}

	paid := *got
	paid.PaidAmount = []domain.PaymentEntry{{Method: "cash", Amount: decimal.NewFromInt(1200)}}
	paid.PendingAmount = decimal.Zero
	paid.Status = domain.BillingPaid
	updated, err := repo.UpdateBilling(ctx, paid, got.Version)
	if err != nil {
		t.Fatalf("update billing: %v", err)
	}
	if updated.Version != got.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
	if _, err := repo.UpdateBilling(ctx, paid, got.Version); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}

	if err := repo.DeleteBilling(ctx, b.ID); err != nil {
		t.Fatalf("delete billing: %v", err)
	}
	if _, err := repo.GetBilling(ctx, b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func txRollback(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	p, err := repo.CreateProduct(ctx, newProduct("TX-"+suffix(), domain.ProductAvailable))
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	boom := errors.New("boom")
	err = repo.RunInTx(ctx, func(ctx context.Context, tx store.Repository) error {
		next := *p
		next.Status = domain.ProductSold
		if _, err := tx.UpdateProduct(ctx, next, domain.ProductAvailable); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := repo.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Status != domain.ProductAvailable {
		t.Fatalf("expected rollback, got %s", got.Status)
	}
}

func counterpartyUnique(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	contact := "98" + suffix()
	cp, err := repo.CreateCounterparty(ctx, domain.Counterparty{
		Name:    "Contract Customer",
		Contact: contact,
		Role:    domain.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("create counterparty: %v", err)
	}
	if _, err := repo.CreateCounterparty(ctx, domain.Counterparty{
		Name:    "Again",
		Contact: contact,
		Role:    domain.RoleCustomer,
	}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := repo.CreateCounterparty(ctx, domain.Counterparty{
		Name:    "Same Contact Supplier",
		Contact: contact,
		Role:    domain.RoleSupplier,
	}); err != nil {
		t.Fatalf("same contact under another role: %v", err)
	}

	found, err := repo.FindCounterpartyByContact(ctx, contact, domain.RoleCustomer)
	if err != nil {
		t.Fatalf("find by contact: %v", err)
	}
	if found.ID != cp.ID {
		t.Fatalf("expected %s, got %s", cp.ID, found.ID)
	}

	next := *found
	next.PayableAmount = decimal.NewFromInt(500)
	next.PendingAmount = decimal.NewFromInt(500)
	if _, err := repo.UpdateCounterparty(ctx, next, found.Version); err != nil {
		t.Fatalf("update counterparty: %v", err)
	}
	if _, err := repo.UpdateCounterparty(ctx, next, found.Version); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}
}

func catalogFindOrCreate(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	name := "Brand " + suffix()
	first, err := repo.FindOrCreateBrand(ctx, name)
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	second, err := repo.FindOrCreateBrand(ctx, "  "+name+"  ")
	if err != nil {
		t.Fatalf("find brand: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one brand, got %s and %s", first.ID, second.ID)
	}

	model, err := repo.FindOrCreateModel(ctx, first.ID, "Model X")
	if err != nil {
		t.Fatalf("create model: %v", err)
	}
	again, err := repo.FindOrCreateModel(ctx, first.ID, "Model X")
	if err != nil {
		t.Fatalf("find model: %v", err)
	}
	if model.ID != again.ID {
		t.Fatalf("expected one model, got %s and %s", model.ID, again.ID)
	}
}

func invoiceNumbersIncrease(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	a, err := repo.NextInvoiceNumber(ctx)
	if err != nil {
		t.Fatalf("next invoice: %v", err)
	}
	b, err := repo.NextInvoiceNumber(ctx)
	if err != nil {
		t.Fatalf("next invoice: %v", err)
	}
	if b <= a {
		t.Fatalf("expected increasing invoice numbers, got %d then %d", a, b)
	}
}
