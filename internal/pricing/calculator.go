package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/quickcart/quickcart-backend/pkg/config"
)

// currencyPlaces is the number of minor-unit digits totals are rounded to.
const currencyPlaces = 2

var (
	DefaultTaxRate               = decimal.RequireFromString("0.08")
	DefaultFreeShippingThreshold = decimal.RequireFromString("100.00")
	DefaultFlatShippingFee       = decimal.RequireFromString("10.00")
)

// Line is one priced quantity.
type Line struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total is quantity x unit price, unrounded.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals holds the derived amounts of an order. Total always equals
// Subtotal + Tax + Shipping - Discount exactly.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Calculator derives order totals from line items.
type Calculator struct {
	taxRate               decimal.Decimal
	freeShippingThreshold decimal.Decimal
	flatShippingFee       decimal.Decimal
}

// NewCalculator builds a calculator from pricing config; zero values fall back
// to the storefront defaults.
func NewCalculator(cfg config.PricingConfig) Calculator {
	c := Calculator{
		taxRate:               cfg.TaxRate,
		freeShippingThreshold: cfg.FreeShippingThreshold,
		flatShippingFee:       cfg.FlatShippingFee,
	}
	if c.taxRate.IsZero() && c.freeShippingThreshold.IsZero() && c.flatShippingFee.IsZero() {
		return DefaultCalculator()
	}
	return c
}

// DefaultCalculator uses an 8% tax rate and a 10.00 flat fee waived above 100.00.
func DefaultCalculator() Calculator {
	return Calculator{
		taxRate:               DefaultTaxRate,
		freeShippingThreshold: DefaultFreeShippingThreshold,
		flatShippingFee:       DefaultFlatShippingFee,
	}
}

// Calculate prices the lines. Line totals are summed exactly; rounding to the
// minor unit happens once, on the derived tax.
func (c Calculator) Calculate(lines []Line) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Total())
	}
	subtotal = subtotal.Round(currencyPlaces)

	tax := subtotal.Mul(c.taxRate).Round(currencyPlaces)
	shipping := c.Shipping(subtotal)
	discount := decimal.Zero

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal.Add(tax).Add(shipping).Sub(discount),
	}
}

// Shipping is free only when subtotal is strictly above the threshold.
func (c Calculator) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(c.freeShippingThreshold) {
		return decimal.Zero
	}
	return c.flatShippingFee.Round(currencyPlaces)
}
