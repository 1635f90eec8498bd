// Package money computes order amounts. Everything here is a pure function of
// its inputs: no clock, no randomness, no I/O.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/kiwari-pos/ordering/internal/enum"
)

// Scale is the number of decimal places kept on stored amounts.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// RoundingMode is the tie-breaking rule used when rounding off to whole units.
type RoundingMode string

const (
	// RoundHalfUp rounds .5 away from zero.
	RoundHalfUp RoundingMode = "half_up"
	// RoundHalfEven rounds .5 to the nearest even unit.
	RoundHalfEven RoundingMode = "half_even"
)

func (m RoundingMode) Valid() bool {
	return m == RoundHalfUp || m == RoundHalfEven
}

// Adjustment is a percentage or fixed reduction.
type Adjustment struct {
	Kind  enum.DiscountKind
	Value decimal.Decimal
}

// Line is a priced line of an order.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int64
	Discount  *Adjustment
}

// TaxRate is a flat named tax.
type TaxRate struct {
	Name        string
	RatePercent decimal.Decimal
}

// Options controls everything beyond the lines and discounts.
type Options struct {
	Taxes         []TaxRate
	RoundOff      bool
	RoundingMode  RoundingMode
	Complimentary bool
}

// LineAmount is the computed breakdown of one line.
type LineAmount struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// TaxAmount is the computed amount of one tax.
type TaxAmount struct {
	Name        string
	RatePercent decimal.Decimal
	Amount      decimal.Decimal
}

// Amounts is the result of ComputeTotals.
//
// FinalAmount == Subtotal - TotalDiscount + TotalTax + RoundOff for every
// non-complimentary computation.
type Amounts struct {
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	Total         decimal.Decimal
	RoundOff      decimal.Decimal
	FinalAmount   decimal.Decimal

	Lines     []LineAmount
	Discounts []decimal.Decimal
	Taxes     []TaxAmount
}

// ComputeTotals prices lines, applies order-level discounts against the
// subtotal, adds taxes on the discounted base and optionally rounds off to
// whole units. Rounding to Scale happens once, after all components are summed.
func ComputeTotals(lines []Line, discounts []Adjustment, opts Options) Amounts {
	var out Amounts

	// --- Lines ---
	subtotal := decimal.Zero
	out.Lines = make([]LineAmount, len(lines))
	for i, l := range lines {
		gross := l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
		if gross.IsNegative() {
			gross = decimal.Zero
		}
		disc := decimal.Zero
		if l.Discount != nil {
			disc = apply(*l.Discount, gross)
		}
		total := gross.Sub(disc)
		subtotal = subtotal.Add(total)
		// Line figures are display snapshots; the subtotal above keeps full precision.
		out.Lines[i] = LineAmount{
			Gross:    round(gross),
			Discount: round(disc),
			Total:    round(total),
		}
	}

	// --- Order discounts ---
	totalDiscount := decimal.Zero
	out.Discounts = make([]decimal.Decimal, len(discounts))
	for i, d := range discounts {
		amt := apply(d, subtotal)
		if remaining := subtotal.Sub(totalDiscount); amt.GreaterThan(remaining) {
			amt = remaining
		}
		totalDiscount = totalDiscount.Add(amt)
		out.Discounts[i] = round(amt)
	}

	// --- Taxes ---
	taxable := subtotal.Sub(totalDiscount)
	totalTax := decimal.Zero
	out.Taxes = make([]TaxAmount, len(opts.Taxes))
	for i, t := range opts.Taxes {
		amt := taxable.Mul(t.RatePercent).Div(hundred)
		if amt.IsNegative() {
			amt = decimal.Zero
		}
		// Per-tax figures are display snapshots; only the sum is rounded.
		totalTax = totalTax.Add(amt)
		out.Taxes[i] = TaxAmount{Name: t.Name, RatePercent: t.RatePercent, Amount: round(amt)}
	}

	out.Subtotal = round(subtotal)

	if opts.Complimentary {
		for i := range out.Discounts {
			out.Discounts[i] = decimal.Zero
		}
		for i := range out.Taxes {
			out.Taxes[i].Amount = decimal.Zero
		}
		out.TotalDiscount = decimal.Zero
		out.TotalTax = decimal.Zero
		out.Total = decimal.Zero
		out.RoundOff = decimal.Zero
		out.FinalAmount = decimal.Zero
		return out
	}

	out.TotalDiscount = round(totalDiscount)
	out.TotalTax = round(totalTax)
	out.Total = out.Subtotal.Sub(out.TotalDiscount).Add(out.TotalTax)
	out.RoundOff = decimal.Zero
	out.FinalAmount = out.Total

	if opts.RoundOff {
		rounded := roundWhole(out.Total, opts.RoundingMode)
		out.RoundOff = rounded.Sub(out.Total)
		out.FinalAmount = rounded
	}
	return out
}

// Balance is what is still owed: max(0, final - paid).
func Balance(final, paid decimal.Decimal) decimal.Decimal {
	b := final.Sub(paid)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// Change is the overpayment to hand back: max(0, paid - final).
func Change(final, paid decimal.Decimal) decimal.Decimal {
	c := paid.Sub(final)
	if c.IsNegative() {
		return decimal.Zero
	}
	return c
}

// ToMinorUnits converts an amount to integer minor units (paise, cents).
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(Scale).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to an amount.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// apply computes a discount against base, clamped to [0, base].
func apply(a Adjustment, base decimal.Decimal) decimal.Decimal {
	var amt decimal.Decimal
	switch a.Kind {
	case enum.DiscountKindPercentage:
		amt = base.Mul(a.Value).Div(hundred)
	case enum.DiscountKindFixed:
		amt = a.Value
	default:
		return decimal.Zero
	}
	if amt.IsNegative() {
		return decimal.Zero
	}
	if amt.GreaterThan(base) {
		return base
	}
	return amt
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

func roundWhole(d decimal.Decimal, mode RoundingMode) decimal.Decimal {
	if mode == RoundHalfEven {
		return d.RoundBank(0)
	}
	return d.Round(0)
}
