package mongo

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"backoffice/backend/internal/domain"
)

// ==================== Product models ====================

type repairPartModel struct {
	ShopID   string          `bson:"shop_id"`
	PartName string          `bson:"part_name"`
	Cost     bson.Decimal128 `bson:"cost"`
}

type productModel struct {
	ID                            string            `bson:"_id"`
	ModelID                       string            `bson:"model_id"`
	ModelName                     string            `bson:"model_name"`
	BrandName                     string            `bson:"brand_name"`
	Serial                        string            `bson:"serial"`
	SalesPrice                    bson.Decimal128   `bson:"sales_price"`
	PurchasePrice                 bson.Decimal128   `bson:"purchase_price"`
	GSTPurchasePrice              bson.Decimal128   `bson:"gst_purchase_price"`
	SoldAtPrice                   bson.Decimal128   `bson:"sold_at_price"`
	Grade                         string            `bson:"grade"`
	EngineerName                  string            `bson:"engineer_name"`
	Accessories                   string            `bson:"accessories"`
	SupplierID                    string            `bson:"supplier_id"`
	Status                        string            `bson:"status"`
	QCRemark                      string            `bson:"qc_remark"`
	BillingID                     string            `bson:"billing_id"`
	IsRepaired                    bool              `bson:"is_repaired"`
	Issue                         string            `bson:"issue"`
	RepairParts                   []repairPartModel `bson:"repair_parts"`
	RepairerCost                  bson.Decimal128   `bson:"repairer_cost"`
	RepairRemark                  string            `bson:"repair_remark"`
	RepairBy                      string            `bson:"repair_by"`
	RepairStartedAt               *time.Time        `bson:"repair_started_at,omitempty"`
	RepairCompletedAt             *time.Time        `bson:"repair_completed_at,omitempty"`
	PurchaseCostIncludingExpenses bson.Decimal128   `bson:"purchase_cost_including_expenses"`
	CreatedBy                     string            `bson:"created_by"`
	CreatedAt                     time.Time         `bson:"created_at"`
	UpdatedAt                     time.Time         `bson:"updated_at"`
}

func toProductModel(p domain.Product) (*productModel, error) {
	var c decConv
	parts := make([]repairPartModel, 0, len(p.RepairParts))
	for _, part := range p.RepairParts {
		parts = append(parts, repairPartModel{ShopID: part.ShopID, PartName: part.PartName, Cost: c.to(part.Cost)})
	}
	m := &productModel{
		ID:                            p.ID,
		ModelID:                       p.ModelID,
		ModelName:                     p.ModelName,
		BrandName:                     p.BrandName,
		Serial:                        p.Serial,
		SalesPrice:                    c.to(p.SalesPrice),
		PurchasePrice:                 c.to(p.PurchasePrice),
		GSTPurchasePrice:              c.to(p.GSTPurchasePrice),
		SoldAtPrice:                   c.to(p.SoldAtPrice),
		Grade:                         p.Grade,
		EngineerName:                  p.EngineerName,
		Accessories:                   p.Accessories,
		SupplierID:                    p.SupplierID,
		Status:                        string(p.Status),
		QCRemark:                      p.QCRemark,
		BillingID:                     p.BillingID,
		IsRepaired:                    p.IsRepaired,
		Issue:                         p.Issue,
		RepairParts:                   parts,
		RepairerCost:                  c.to(p.RepairerCost),
		RepairRemark:                  p.RepairRemark,
		RepairBy:                      p.RepairBy,
		RepairStartedAt:               p.RepairStartedAt,
		RepairCompletedAt:             p.RepairCompletedAt,
		PurchaseCostIncludingExpenses: c.to(p.PurchaseCostIncludingExpenses),
		CreatedBy:                     p.CreatedBy,
		CreatedAt:                     p.CreatedAt,
		UpdatedAt:                     p.UpdatedAt,
	}
	return m, c.err
}

func fromProductModel(m *productModel) (*domain.Product, error) {
	var c decConv
	parts := make([]domain.RepairPart, 0, len(m.RepairParts))
	for _, part := range m.RepairParts {
		parts = append(parts, domain.RepairPart{ShopID: part.ShopID, PartName: part.PartName, Cost: c.from(part.Cost)})
	}
	p := &domain.Product{
		ID:                            m.ID,
		ModelID:                       m.ModelID,
		ModelName:                     m.ModelName,
		BrandName:                     m.BrandName,
		Serial:                        m.Serial,
		SalesPrice:                    c.from(m.SalesPrice),
		PurchasePrice:                 c.from(m.PurchasePrice),
		GSTPurchasePrice:              c.from(m.GSTPurchasePrice),
		SoldAtPrice:                   c.from(m.SoldAtPrice),
		Grade:                         m.Grade,
		EngineerName:                  m.EngineerName,
		Accessories:                   m.Accessories,
		SupplierID:                    m.SupplierID,
		Status:                        domain.ProductStatus(m.Status),
		QCRemark:                      m.QCRemark,
		BillingID:                     m.BillingID,
		IsRepaired:                    m.IsRepaired,
		Issue:                         m.Issue,
		RepairParts:                   parts,
		RepairerCost:                  c.from(m.RepairerCost),
		RepairRemark:                  m.RepairRemark,
		RepairBy:                      m.RepairBy,
		RepairStartedAt:               utcPtr(m.RepairStartedAt),
		RepairCompletedAt:             utcPtr(m.RepairCompletedAt),
		PurchaseCostIncludingExpenses: c.from(m.PurchaseCostIncludingExpenses),
		CreatedBy:                     m.CreatedBy,
		CreatedAt:                     m.CreatedAt.UTC(),
		UpdatedAt:                     m.UpdatedAt.UTC(),
	}
	if c.err != nil {
		return nil, fmt.Errorf("mongo: decode product %s: %w", m.ID, c.err)
	}
	return p, nil
}

// ==================== Billing models ====================

type paymentEntryModel struct {
	Method string          `bson:"method"`
	Amount bson.Decimal128 `bson:"amount"`
}

type billingItemModel struct {
	ProductID        string          `bson:"product_id"`
	Serial           string          `bson:"serial"`
	ModelName        string          `bson:"model_name"`
	Rate             bson.Decimal128 `bson:"rate"`
	SalesPrice       bson.Decimal128 `bson:"sales_price"`
	PurchasePrice    bson.Decimal128 `bson:"purchase_price"`
	GSTPurchasePrice bson.Decimal128 `bson:"gst_purchase_price"`
}

type billingModel struct {
	ID              string              `bson:"_id"`
	InvoiceNumber   int64               `bson:"invoice_number"`
	CustomerID      string              `bson:"customer_id"`
	CustomerName    string              `bson:"customer_name"`
	CustomerContact string              `bson:"customer_contact"`
	Items           []billingItemModel  `bson:"items"`
	PayableAmount   bson.Decimal128     `bson:"payable_amount"`
	PaidAmount      []paymentEntryModel `bson:"paid_amount"`
	PendingAmount   bson.Decimal128     `bson:"pending_amount"`
	NetTotal        bson.Decimal128     `bson:"net_total"`
	CGST            bson.Decimal128     `bson:"c_gst"`
	SGST            bson.Decimal128     `bson:"s_gst"`
	ProfitToShow    bson.Decimal128     `bson:"profit_to_show"`
	ActualProfit    bson.Decimal128     `bson:"actual_profit"`
	Status          string              `bson:"status"`
	Version         int64               `bson:"version"`
	CreatedBy       string              `bson:"created_by"`
	CreatedAt       time.Time           `bson:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at"`
}

func toBillingModel(b domain.Billing) (*billingModel, error) {
	var c decConv
	items := make([]billingItemModel, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, billingItemModel{
			ProductID:        item.ProductID,
			Serial:           item.Serial,
			ModelName:        item.ModelName,
			Rate:             c.to(item.Rate),
			SalesPrice:       c.to(item.SalesPrice),
			PurchasePrice:    c.to(item.PurchasePrice),
			GSTPurchasePrice: c.to(item.GSTPurchasePrice),
		})
	}
	m := &billingModel{
		ID:              b.ID,
		InvoiceNumber:   b.InvoiceNumber,
		CustomerID:      b.CustomerID,
		CustomerName:    b.CustomerName,
		CustomerContact: b.CustomerContact,
		Items:           items,
		PayableAmount:   c.to(b.PayableAmount),
		PaidAmount:      c.toEntries(b.PaidAmount),
		PendingAmount:   c.to(b.PendingAmount),
		NetTotal:        c.to(b.NetTotal),
		CGST:            c.to(b.CGST),
		SGST:            c.to(b.SGST),
		ProfitToShow:    c.to(b.ProfitToShow),
		ActualProfit:    c.to(b.ActualProfit),
		Status:          string(b.Status),
		Version:         b.Version,
		CreatedBy:       b.CreatedBy,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	return m, c.err
}

func fromBillingModel(m *billingModel) (*domain.Billing, error) {
	var c decConv
	items := make([]domain.BillingItem, 0, len(m.Items))
	for _, item := range m.Items {
		items = append(items, domain.BillingItem{
			ProductID:        item.ProductID,
			Serial:           item.Serial,
			ModelName:        item.ModelName,
			Rate:             c.from(item.Rate),
			SalesPrice:       c.from(item.SalesPrice),
			PurchasePrice:    c.from(item.PurchasePrice),
			GSTPurchasePrice: c.from(item.GSTPurchasePrice),
		})
	}
	b := &domain.Billing{
		ID:              m.ID,
		InvoiceNumber:   m.InvoiceNumber,
		CustomerID:      m.CustomerID,
		CustomerName:    m.CustomerName,
		CustomerContact: m.CustomerContact,
		Items:           items,
		PayableAmount:   c.from(m.PayableAmount),
		PaidAmount:      c.fromEntries(m.PaidAmount),
		PendingAmount:   c.from(m.PendingAmount),
		NetTotal:        c.from(m.NetTotal),
		CGST:            c.from(m.CGST),
		SGST:            c.from(m.SGST),
		ProfitToShow:    c.from(m.ProfitToShow),
		ActualProfit:    c.from(m.ActualProfit),
		Status:          domain.BillingStatus(m.Status),
		Version:         m.Version,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	if c.err != nil {
		return nil, fmt.Errorf("mongo: decode billing %s: %w", m.ID, c.err)
	}
	return b, nil
}

// ==================== Counterparty models ====================

type counterpartyModel struct {
	ID            string              `bson:"_id"`
	Name          string              `bson:"name"`
	Contact       string              `bson:"contact"`
	Role          string              `bson:"role"`
	Address       string              `bson:"address"`
	PayableAmount bson.Decimal128     `bson:"payable_amount"`
	PendingAmount bson.Decimal128     `bson:"pending_amount"`
	PaidAmount    []paymentEntryModel `bson:"paid_amount"`
	AdvanceAmount bson.Decimal128     `bson:"advance_amount"`
	Version       int64               `bson:"version"`
	CreatedAt     time.Time           `bson:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at"`
}

func toCounterpartyModel(cp domain.Counterparty) (*counterpartyModel, error) {
	var c decConv
	m := &counterpartyModel{
		ID:            cp.ID,
		Name:          cp.Name,
		Contact:       cp.Contact,
		Role:          string(cp.Role),
		Address:       cp.Address,
		PayableAmount: c.to(cp.PayableAmount),
		PendingAmount: c.to(cp.PendingAmount),
		PaidAmount:    c.toEntries(cp.PaidAmount),
		AdvanceAmount: c.to(cp.AdvanceAmount),
		Version:       cp.Version,
		CreatedAt:     cp.CreatedAt,
		UpdatedAt:     cp.UpdatedAt,
	}
	return m, c.err
}

func fromCounterpartyModel(m *counterpartyModel) (*domain.Counterparty, error) {
	var c decConv
	cp := &domain.Counterparty{
		ID:            m.ID,
		Name:          m.Name,
		Contact:       m.Contact,
		Role:          domain.CounterpartyRole(m.Role),
		Address:       m.Address,
		PayableAmount: c.from(m.PayableAmount),
		PendingAmount: c.from(m.PendingAmount),
		PaidAmount:    c.fromEntries(m.PaidAmount),
		AdvanceAmount: c.from(m.AdvanceAmount),
		Version:       m.Version,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if c.err != nil {
		return nil, fmt.Errorf("mongo: decode counterparty %s: %w", m.ID, c.err)
	}
	return cp, nil
}

// ==================== Catalog, audit and user models ====================

type brandModel struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	NameKey   string    `bson:"name_key"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m *brandModel) toDomain() *domain.Brand {
	return &domain.Brand{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()}
}

type modelModel struct {
	ID        string    `bson:"_id"`
	BrandID   string    `bson:"brand_id"`
	Name      string    `bson:"name"`
	NameKey   string    `bson:"name_key"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m *modelModel) toDomain() *domain.Model {
	return &domain.Model{ID: m.ID, BrandID: m.BrandID, Name: m.Name, CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()}
}

type auditLogModel struct {
	ID            string    `bson:"_id"`
	ActorUsername string    `bson:"actor_username"`
	ActorRole     string    `bson:"actor_role"`
	Action        string    `bson:"action"`
	EntityType    string    `bson:"entity_type"`
	EntityID      string    `bson:"entity_id"`
	Detail        string    `bson:"detail"`
	CreatedAt     time.Time `bson:"created_at"`
}

type userModel struct {
	Username  string    `bson:"_id"`
	Password  string    `bson:"password"`
	Role      string    `bson:"role"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// decConv converts between decimal.Decimal and Decimal128, keeping the first
// failure so a whole document converts with one error check.
type decConv struct {
	err error
}

func (c *decConv) to(d decimal.Decimal) bson.Decimal128 {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil && c.err == nil {
		c.err = err
	}
	return v
}

func (c *decConv) from(v bson.Decimal128) decimal.Decimal {
	s := v.String()
	if s == "" || strings.EqualFold(s, "NaN") {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil && c.err == nil {
		c.err = err
	}
	return d
}

func (c *decConv) toEntries(entries []domain.PaymentEntry) []paymentEntryModel {
	out := make([]paymentEntryModel, 0, len(entries))
	for _, entry := range entries {
		out = append(out, paymentEntryModel{Method: entry.Method, Amount: c.to(entry.Amount)})
	}
	return out
}

func (c *decConv) fromEntries(entries []paymentEntryModel) []domain.PaymentEntry {
	out := make([]domain.PaymentEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, domain.PaymentEntry{Method: entry.Method, Amount: c.from(entry.Amount)})
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
