package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidItems = errors.New("invalid order items")

type Bill struct {
	Subtotal    float64
	TaxRate     float64
	TaxAmount   float64
	TotalAmount float64
}

// ValidateItems enforces quantity >= 1 and unit price >= 0 on a non-empty list.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidItems)
	}
	for i, item := range items {
		if item.Name == "" {
			return fmt.Errorf("%w: item %d: name is empty", ErrInvalidItems, i+1)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d: quantity %d must be at least 1", ErrInvalidItems, i+1, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d: unit price %v cannot be negative", ErrInvalidItems, i+1, item.UnitPrice)
		}
	}
	return nil
}

// ComputeBill derives subtotal, tax and total from the items. Tax is rounded
// half away from zero to whole currency units: 12.5 becomes 13.
func ComputeBill(items []Item, taxRate float64) Bill {
	subtotal := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}
	rate := decimal.NewFromFloat(taxRate)
	tax := subtotal.Mul(rate).Round(0)

	return Bill{
		Subtotal:    subtotal.InexactFloat64(),
		TaxRate:     taxRate,
		TaxAmount:   tax.InexactFloat64(),
		TotalAmount: subtotal.Add(tax).InexactFloat64(),
	}
}
