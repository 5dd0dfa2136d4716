package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store/storetest"
)

func TestMongoRepositoryContract(t *testing.T) {
	uri := os.Getenv("BACKOFFICE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set BACKOFFICE_TEST_MONGO_URI (replica set) to run mongo integration test")
	}

	ctx := context.Background()
	dbName := fmt.Sprintf("backoffice_it_%d", time.Now().UnixNano())
	s, err := New(ctx, uri, Options{Database: dbName, Transactions: true})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	storetest.Run(t, s)
}

func TestProductModelRoundTripKeepsMoneyExact(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := domain.Product{
		ID:               "prd-1",
		Serial:           "IMEI-1",
		Status:           domain.ProductInRepairing,
		PurchasePrice:    decimal.RequireFromString("1234.56"),
		GSTPurchasePrice: decimal.RequireFromString("1734.56"),
		RepairParts: []domain.RepairPart{
			{ShopID: "cp-shop", PartName: "screen", Cost: decimal.RequireFromString("99.99")},
		},
		RepairStartedAt: &started,
	}

	m, err := toProductModel(in)
	if err != nil {
		t.Fatalf("to model: %v", err)
	}
	out, err := fromProductModel(m)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}

	if !out.PurchasePrice.Equal(in.PurchasePrice) || !out.GSTPurchasePrice.Equal(in.GSTPurchasePrice) {
		t.Fatalf("prices changed: %s %s", out.PurchasePrice, out.GSTPurchasePrice)
	}
	if len(out.RepairParts) != 1 || !out.RepairParts[0].Cost.Equal(decimal.RequireFromString("99.99")) {
		t.Fatalf("repair parts changed: %+v", out.RepairParts)
	}
	if out.RepairStartedAt == nil || !out.RepairStartedAt.Equal(started) {
		t.Fatalf("repair start changed: %v", out.RepairStartedAt)
	}
	if !out.SalesPrice.IsZero() {
		t.Fatalf("expected zero sales price, got %s", out.SalesPrice)
	}
}

func TestBillingModelRoundTripKeepsPayments(t *testing.T) {
	in := domain.Billing{
		ID:            "bill-1",
		InvoiceNumber: 7,
		Items: []domain.BillingItem{
			{ProductID: "prd-1", Serial: "IMEI-1", Rate: decimal.NewFromInt(1200)},
		},
		PaidAmount: []domain.PaymentEntry{
			{Method: "cash", Amount: decimal.RequireFromString("200.50")},
			{Method: "advance", Amount: decimal.NewFromInt(100)},
		},
		PendingAmount: decimal.RequireFromString("899.50"),
		Status:        domain.BillingPartiallyPaid,
		Version:       3,
	}

	m, err := toBillingModel(in)
	if err != nil {
		t.Fatalf("to model: %v", err)
	}
	out, err := fromBillingModel(m)
	if err != nil {
		t.Fatalf("from model: %v", err)
	}
	if len(out.PaidAmount) != 2 || out.PaidAmount[1].Method != "advance" {
		t.Fatalf("payments changed: %+v", out.PaidAmount)
	}
	if !out.PendingAmount.Equal(in.PendingAmount) || out.Version != 3 {
		t.Fatalf("billing changed: %+v", out)
	}
}
