// Package finance computes the cost basis, profit and tax figures of a bill.
// Every function is pure.
package finance

import (
	"github.com/shopspring/decimal"
)

var (
	// GSTRate applies separately to the central and state components.
	GSTRate = decimal.RequireFromString("0.09")
	// IntakeGSTMarkup is added to the purchase price at intake to form the
	// GST-inclusive cost basis.
	IntakeGSTMarkup = decimal.NewFromInt(500)
)

type Line struct {
	Rate             decimal.Decimal
	PurchasePrice    decimal.Decimal
	GSTPurchasePrice decimal.Decimal
}

type CostBasis struct {
	TotalSale        decimal.Decimal
	TotalPurchase    decimal.Decimal
	TotalGSTPurchase decimal.Decimal
}

type Tax struct {
	CGST decimal.Decimal
	SGST decimal.Decimal
}

func (t Tax) Total() decimal.Decimal {
	return t.CGST.Add(t.SGST)
}

type Summary struct {
	CostBasis
	ProfitToShow decimal.Decimal
	ActualProfit decimal.Decimal
	Tax          Tax
	NetTotal     decimal.Decimal
}

// ComputeCostBasis sums agreed rates and costs. A line without a recorded GST
// price contributes its raw purchase price instead.
func ComputeCostBasis(lines []Line) CostBasis {
	basis := CostBasis{TotalSale: decimal.Zero, TotalPurchase: decimal.Zero, TotalGSTPurchase: decimal.Zero}
	for _, line := range lines {
		basis.TotalSale = basis.TotalSale.Add(line.Rate)
		basis.TotalPurchase = basis.TotalPurchase.Add(line.PurchasePrice)
		gst := line.GSTPurchasePrice
		if gst.IsZero() {
			gst = line.PurchasePrice
		}
		basis.TotalGSTPurchase = basis.TotalGSTPurchase.Add(gst)
	}
	return basis
}

// Profit may be negative.
func Profit(totalSale decimal.Decimal, cost decimal.Decimal) decimal.Decimal {
	return totalSale.Sub(cost)
}

// ComputeTax charges GSTRate on each side of a positive profit. The product is
// exact; rounding is left to whoever displays it.
func ComputeTax(profitToShow decimal.Decimal) Tax {
	if !profitToShow.IsPositive() {
		return Tax{CGST: decimal.Zero, SGST: decimal.Zero}
	}
	component := profitToShow.Mul(GSTRate)
	return Tax{CGST: component, SGST: component}
}

func NetTotal(payable decimal.Decimal, tax Tax) decimal.Decimal {
	return payable.Add(tax.Total())
}

func Summarize(lines []Line, payable decimal.Decimal) Summary {
	basis := ComputeCostBasis(lines)
	profitToShow := Profit(basis.TotalSale, basis.TotalGSTPurchase)
	tax := ComputeTax(profitToShow)
	return Summary{
		CostBasis:    basis,
		ProfitToShow: profitToShow,
		ActualProfit: Profit(basis.TotalSale, basis.TotalPurchase),
		Tax:          tax,
		NetTotal:     NetTotal(payable, tax),
	}
}

// GSTPurchasePrice is the cost basis recorded for a unit at intake.
func GSTPurchasePrice(purchase decimal.Decimal) decimal.Decimal {
	return purchase.Add(IntakeGSTMarkup)
}
