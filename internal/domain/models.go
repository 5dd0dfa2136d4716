package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Model struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelRef is what intake stamps onto a product.
type ModelRef struct {
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name"`
	BrandID   string `json:"brand_id"`
	BrandName string `json:"brand_name"`
}

type RepairPart struct {
	ShopID   string          `json:"shop_id" validate:"required"`
	PartName string          `json:"part_name" validate:"required"`
	Cost     decimal.Decimal `json:"cost"`
}

type Product struct {
	ID                            string          `json:"id"`
	ModelID                       string          `json:"model_id"`
	ModelName                     string          `json:"model_name"`
	BrandName                     string          `json:"brand_name"`
	Serial                        string          `json:"imei_number"`
	SalesPrice                    decimal.Decimal `json:"sales_price"`
	PurchasePrice                 decimal.Decimal `json:"purchase_price"`
	GSTPurchasePrice              decimal.Decimal `json:"gst_purchase_price"`
	SoldAtPrice                   decimal.Decimal `json:"sold_at_price"`
	Grade                         string          `json:"grade,omitempty"`
	EngineerName                  string          `json:"engineer_name,omitempty"`
	Accessories                   string          `json:"accessories,omitempty"`
	SupplierID                    string          `json:"supplier_id"`
	Status                        ProductStatus   `json:"status"`
	QCRemark                      string          `json:"qc_remark,omitempty"`
	BillingID                     string          `json:"billing_id,omitempty"`
	IsRepaired                    bool            `json:"is_repaired"`
	Issue                         string          `json:"issue,omitempty"`
	RepairParts                   []RepairPart    `json:"repair_parts,omitempty"`
	RepairerCost                  decimal.Decimal `json:"repairer_cost"`
	RepairRemark                  string          `json:"repair_remark,omitempty"`
	RepairBy                      string          `json:"repair_by,omitempty"`
	RepairStartedAt               *time.Time      `json:"repair_started_at,omitempty"`
	RepairCompletedAt             *time.Time      `json:"repair_completed_at,omitempty"`
	PurchaseCostIncludingExpenses decimal.Decimal `json:"purchase_cost_including_expenses"`
	CreatedBy                     string          `json:"created_by,omitempty"`
	CreatedAt                     time.Time       `json:"created_at"`
	UpdatedAt                     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	BrandName       string          `json:"brand_name" validate:"required"`
	ModelName       string          `json:"model_name" validate:"required"`
	Serial          string          `json:"imei_number" validate:"required"`
	SalesPrice      decimal.Decimal `json:"sales_price"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	Grade           string          `json:"grade"`
	EngineerName    string          `json:"engineer_name"`
	Accessories     string          `json:"accessories"`
	SupplierContact string          `json:"supplier_contact" validate:"required"`
	QCRemark        string          `json:"qc_remark"`
	Status          string          `json:"status" validate:"omitempty,oneof=AVAILABLE RETURN available return"`
}

type ProductListResponse struct {
	Products          []Product       `json:"products"`
	PurchaseTotal     decimal.Decimal `json:"purchase_total_of_all_products"`
	RepairerCostTotal decimal.Decimal `json:"repairer_cost_of_all_products"`
	PartCostTotal     decimal.Decimal `json:"part_cost_of_all_products"`
}

type RepairStartRequest struct {
	Issue      string `json:"issue" validate:"required"`
	RepairerID string `json:"repairer_id" validate:"required"`
}

type RepairCompleteRequest struct {
	Parts        []RepairPart    `json:"parts" validate:"dive"`
	RepairerCost decimal.Decimal `json:"repairer_cost"`
	Remark       string          `json:"remark"`
}

// PaymentEntry is one settled line of a paid_amount ledger. A ledger holds at
// most one entry per method.
type PaymentEntry struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// PaymentInput is an incoming payment as received from a caller. Amount is
// nullable so a missing amount can be told apart from zero.
type PaymentInput struct {
	Method string              `json:"method"`
	Amount decimal.NullDecimal `json:"amount"`
}

type BillingItem struct {
	ProductID        string          `json:"product_id"`
	Serial           string          `json:"imei_number"`
	ModelName        string          `json:"model_name,omitempty"`
	Rate             decimal.Decimal `json:"rate"`
	SalesPrice       decimal.Decimal `json:"sales_price"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	GSTPurchasePrice decimal.Decimal `json:"gst_purchase_price"`
}

type Billing struct {
	ID              string          `json:"id"`
	InvoiceNumber   int64           `json:"invoice_number"`
	CustomerID      string          `json:"customer_id,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CustomerContact string          `json:"customer_contact,omitempty"`
	Items           []BillingItem   `json:"products"`
	PayableAmount   decimal.Decimal `json:"payable_amount"`
	PaidAmount      []PaymentEntry  `json:"paid_amount"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	NetTotal        decimal.Decimal `json:"net_total"`
	CGST            decimal.Decimal `json:"c_gst"`
	SGST            decimal.Decimal `json:"s_gst"`
	ProfitToShow    decimal.Decimal `json:"profit_to_show"`
	ActualProfit    decimal.Decimal `json:"actual_profit"`
	Status          BillingStatus   `json:"status"`
	Version         int64           `json:"version"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Serials returns the serials referenced by the bill in item order.
func (b Billing) Serials() []string {
	out := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		out = append(out, item.Serial)
	}
	return out
}

type BillingLineRequest struct {
	Serial string          `json:"imei_number" validate:"required"`
	Rate   decimal.Decimal `json:"rate"`
}

type BillingCreateRequest struct {
	CustomerContact string               `json:"customer_contact"`
	Products        []BillingLineRequest `json:"products" validate:"required,min=1,dive"`
	PayableAmount   decimal.Decimal      `json:"payable_amount"`
	PaidAmount      []PaymentInput       `json:"paid_amount"`
	Draft           bool                 `json:"is_drafted"`
}

type BillingUpdateRequest struct {
	CustomerContact string               `json:"customer_contact"`
	Products        []BillingLineRequest `json:"products" validate:"required,min=1,dive"`
	PayableAmount   decimal.NullDecimal  `json:"payable_amount"`
	PaidAmount      []PaymentInput       `json:"paid_amount"`
	Draft           bool                 `json:"is_drafted"`
}

type PaymentRequest struct {
	PaidAmount []PaymentInput `json:"paid_amount"`
}

type BillingTotals struct {
	TotalSalesPrice       decimal.Decimal `json:"total_sales_price"`
	TotalRate             decimal.Decimal `json:"total_rate"`
	TotalPurchasePrice    decimal.Decimal `json:"total_purchase_price"`
	TotalGSTPurchasePrice decimal.Decimal `json:"total_gst_purchase_price"`
}

type BillingResult struct {
	Billing Billing       `json:"billing"`
	Totals  BillingTotals `json:"totals"`
}

type BillingListResponse struct {
	Billings       []Billing       `json:"billings"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalRemaining decimal.Decimal `json:"total_remaining"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	TotalProducts  int             `json:"total_products"`
}

type BillingDeleteOptions struct {
	Hard bool
}

type ReleasedProduct struct {
	ProductID string        `json:"product_id"`
	Serial    string        `json:"imei_number"`
	Status    ProductStatus `json:"status"`
}

type BillingDeleteResponse struct {
	ID       string            `json:"id"`
	Status   BillingStatus     `json:"status"`
	Deleted  bool              `json:"deleted"`
	Released []ReleasedProduct `json:"released,omitempty"`
}

type CounterpartyRole string

const (
	RoleCustomer CounterpartyRole = "CUSTOMER"
	RoleSupplier CounterpartyRole = "SUPPLIER"
	RoleRepairer CounterpartyRole = "REPAIRER"
	RoleShop     CounterpartyRole = "SHOP"
)

type Counterparty struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Contact       string           `json:"contact"`
	Role          CounterpartyRole `json:"role"`
	Address       string           `json:"address,omitempty"`
	PayableAmount decimal.Decimal  `json:"payable_amount"`
	PendingAmount decimal.Decimal  `json:"pending_amount"`
	PaidAmount    []PaymentEntry   `json:"paid_amount"`
	AdvanceAmount decimal.Decimal  `json:"advance_amount"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// CounterpartyQuery filters the counterparty listing. Name and Contact match
// case-insensitive substrings.
type CounterpartyQuery struct {
	Role    string
	Name    string
	Contact string
}

// CounterpartyListResponse carries the listing with its running totals. Paid
// is payable minus pending, so advances held on account are not counted.
type CounterpartyListResponse struct {
	Counterparties []Counterparty  `json:"counterparties"`
	PartCostTotal  decimal.Decimal `json:"part_cost_of_all_counterparties"`
	PayableTotal   decimal.Decimal `json:"payable_amount_of_all_counterparties"`
	PendingTotal   decimal.Decimal `json:"pending_amount_of_all_counterparties"`
	PaidTotal      decimal.Decimal `json:"paid_amount_of_all_counterparties"`
}

type CounterpartyCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact" validate:"required"`
	Role    string `json:"role" validate:"required,oneof=CUSTOMER SUPPLIER REPAIRER SHOP"`
	Address string `json:"address"`
}

// LedgerDelta is a relative change applied to a counterparty's running totals.
type LedgerDelta struct {
	PayableDelta decimal.Decimal
	PaidEntries  []PaymentEntry
	AdvanceDelta decimal.Decimal
}

func (d LedgerDelta) IsZero() bool {
	if !d.PayableDelta.IsZero() || !d.AdvanceDelta.IsZero() {
		return false
	}
	for _, entry := range d.PaidEntries {
		if !entry.Amount.IsZero() {
			return false
		}
	}
	return true
}

type CounterpartyPaymentRequest struct {
	PayableAmount decimal.Decimal `json:"payable_amount"`
	PaidAmount    []PaymentInput  `json:"paid_amount"`
	AdvanceAmount decimal.Decimal `json:"advance_amount"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
