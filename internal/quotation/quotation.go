// Package quotation prices service proposals: services x quantity x unit
// price, plus an admin fee expressed in basis points of the subtotal.
package quotation

import (
	"errors"
	"fmt"
	"strings"

	"rentdesk/internal/models"
	"rentdesk/internal/money"
)

var (
	ErrNoItems     = errors.New("quotation requires at least one item")
	ErrInvalidItem = errors.New("invalid quotation item")
)

type Totals struct {
	Items    []models.QuotationItem
	Subtotal int64
	AdminFee int64
	Total    int64
}

func Compute(items []models.QuotationItem, adminFeeBP int) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrNoItems
	}
	if err := money.ValidateBP(adminFeeBP); err != nil {
		return Totals{}, err
	}
	priced := make([]models.QuotationItem, 0, len(items))
	var subtotal int64
	for i, item := range items {
		item.Service = strings.TrimSpace(item.Service)
		if item.Service == "" {
			return Totals{}, fmt.Errorf("%w: item %d has no service", ErrInvalidItem, i)
		}
		if item.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidItem, i)
		}
		if item.UnitPrice < 0 {
			return Totals{}, fmt.Errorf("%w: item %d unit price must not be negative", ErrInvalidItem, i)
		}
		line, err := money.MulQuantity(item.UnitPrice, item.Quantity)
		if err != nil {
			return Totals{}, fmt.Errorf("item %d: %w", i, err)
		}
		item.LineTotal = line
		if subtotal, err = money.Add(subtotal, line); err != nil {
			return Totals{}, err
		}
		priced = append(priced, item)
	}
	fee, err := money.ApplyBP(subtotal, adminFeeBP)
	if err != nil {
		return Totals{}, err
	}
	total, err := money.Add(subtotal, fee)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Items: priced, Subtotal: subtotal, AdminFee: fee, Total: total}, nil
}

// Apply prices q in place.
func Apply(q *models.Quotation) error {
	totals, err := Compute(q.Items, q.AdminFeeBP)
	if err != nil {
		return err
	}
	q.Items = totals.Items
	q.Subtotal = totals.Subtotal
	q.AdminFee = totals.AdminFee
	q.Total = totals.Total
	return nil
}

// Number formats the agency-scoped sequence as Q-YYYY-000123.
func Number(year int, seq int64) string {
	return fmt.Sprintf("Q-%04d-%06d", year, seq)
}
