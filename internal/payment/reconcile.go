// Package payment merges partial payments into per-method ledgers and derives
// the amounts and bill status that follow from them.
package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/store"
)

// MethodAdvance consumes the counterparty's standing advance balance instead
// of bringing in new money.
const MethodAdvance = "advance_amount"

// Normalize validates incoming entries and converts them to ledger entries.
// Methods are trimmed and lower-cased so "Cash" and "cash" share a line.
// Zero amounts are dropped, so a list of only zeros moves nothing.
func Normalize(incoming []domain.PaymentInput) ([]domain.PaymentEntry, error) {
	out := make([]domain.PaymentEntry, 0, len(incoming))
	for i, in := range incoming {
		method := strings.ToLower(strings.TrimSpace(in.Method))
		if method == "" {
			return nil, fmt.Errorf("%w: entry %d has no method", store.ErrInvalidPayment, i)
		}
		if !in.Amount.Valid {
			return nil, fmt.Errorf("%w: entry %d (%s) has no amount", store.ErrInvalidPayment, i, method)
		}
		if in.Amount.Decimal.IsNegative() {
			return nil, fmt.Errorf("%w: entry %d (%s) is negative", store.ErrInvalidPayment, i, method)
		}
		if in.Amount.Decimal.IsZero() {
			continue
		}
		out = append(out, domain.PaymentEntry{Method: method, Amount: in.Amount.Decimal})
	}
	return out, nil
}

// Merge validates incoming and folds it into existing. Known methods
// accumulate, unknown methods are appended in arrival order. existing is not
// modified.
func Merge(existing []domain.PaymentEntry, incoming []domain.PaymentInput) ([]domain.PaymentEntry, error) {
	entries, err := Normalize(incoming)
	if err != nil {
		return nil, err
	}
	return Accumulate(existing, entries), nil
}

// Accumulate folds already-validated entries into existing. Amounts may be
// negative, which is how reversals are expressed.
func Accumulate(existing []domain.PaymentEntry, entries []domain.PaymentEntry) []domain.PaymentEntry {
	merged := make([]domain.PaymentEntry, 0, len(existing)+len(entries))
	index := make(map[string]int, len(existing)+len(entries))
	for _, entry := range existing {
		if i, ok := index[entry.Method]; ok {
			merged[i].Amount = merged[i].Amount.Add(entry.Amount)
			continue
		}
		index[entry.Method] = len(merged)
		merged = append(merged, entry)
	}
	for _, entry := range entries {
		if i, ok := index[entry.Method]; ok {
			merged[i].Amount = merged[i].Amount.Add(entry.Amount)
			continue
		}
		index[entry.Method] = len(merged)
		merged = append(merged, entry)
	}
	return merged
}

// Diff returns per-method after minus before, skipping methods that did not move.
func Diff(before []domain.PaymentEntry, after []domain.PaymentEntry) []domain.PaymentEntry {
	negated := make([]domain.PaymentEntry, 0, len(before))
	for _, entry := range before {
		negated = append(negated, domain.PaymentEntry{Method: entry.Method, Amount: entry.Amount.Neg()})
	}
	combined := Accumulate(after, negated)
	out := combined[:0]
	for _, entry := range combined {
		if !entry.Amount.IsZero() {
			out = append(out, entry)
		}
	}
	return out
}

func Total(entries []domain.PaymentEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.Amount)
	}
	return total
}

// AdvanceTotal is the part of entries paid out of the advance balance.
func AdvanceTotal(entries []domain.PaymentEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		if entry.Method == MethodAdvance {
			total = total.Add(entry.Amount)
		}
	}
	return total
}

// Pending is payable minus everything paid, never below zero.
func Pending(payable decimal.Decimal, entries []domain.PaymentEntry) decimal.Decimal {
	pending := payable.Sub(Total(entries))
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// Status derives a bill status. A draft request short-circuits to DRAFTED.
func Status(payable decimal.Decimal, totalPaid decimal.Decimal, draft bool) domain.BillingStatus {
	if draft {
		return domain.BillingDrafted
	}
	if !totalPaid.IsPositive() {
		return domain.BillingUnpaid
	}
	pending := payable.Sub(totalPaid)
	if pending.IsPositive() {
		return domain.BillingPartiallyPaid
	}
	return domain.BillingPaid
}
