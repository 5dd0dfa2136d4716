package domain

type ProductStatus string

const (
	ProductAvailable   ProductStatus = "AVAILABLE"
	ProductReturn      ProductStatus = "RETURN"
	ProductSold        ProductStatus = "SOLD"
	ProductInRepairing ProductStatus = "IN_REPAIRING"
	ProductRemoved     ProductStatus = "REMOVED"
)

var productNext = map[ProductStatus]map[ProductStatus]bool{
	ProductAvailable:   {ProductSold: true, ProductInRepairing: true, ProductRemoved: true},
	ProductReturn:      {ProductSold: true, ProductInRepairing: true, ProductRemoved: true},
	ProductSold:        {ProductAvailable: true, ProductReturn: true},
	ProductInRepairing: {ProductAvailable: true, ProductReturn: true, ProductRemoved: true},
	ProductRemoved:     {},
}

// CanTransition reports whether a product may move from s to next.
func (s ProductStatus) CanTransition(next ProductStatus) bool {
	return productNext[s][next]
}

// Reservable reports whether a unit in this status can be placed on a bill.
func (s ProductStatus) Reservable() bool {
	return s == ProductAvailable || s == ProductReturn
}

func (s ProductStatus) Live() bool {
	return s != ProductRemoved && s != ""
}

func (s ProductStatus) Valid() bool {
	_, ok := productNext[s]
	return ok
}

type BillingStatus string

const (
	BillingDrafted         BillingStatus = "DRAFTED"
	BillingUnpaid          BillingStatus = "UNPAID"
	BillingPartiallyPaid   BillingStatus = "PARTIALLY_PAID"
	BillingPaid            BillingStatus = "PAID"
	BillingRemovedDrafted  BillingStatus = "REMOVED_DRAFTED"
	BillingRemovedCheckout BillingStatus = "REMOVED_CHECKOUT"
)

// Finalized reports whether the bill has committed its products as sold.
func (s BillingStatus) Finalized() bool {
	return s == BillingUnpaid || s == BillingPartiallyPaid || s == BillingPaid
}

func (s BillingStatus) Removed() bool {
	return s == BillingRemovedDrafted || s == BillingRemovedCheckout
}

func (s BillingStatus) Valid() bool {
	switch s {
	case BillingDrafted, BillingUnpaid, BillingPartiallyPaid, BillingPaid, BillingRemovedDrafted, BillingRemovedCheckout:
		return true
	}
	return false
}
