// Package catalog manages the master data invoice lines and stock movements
// reference: products and customers.
package catalog

import (
	"strings"
	"time"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// Product represents a sellable item. StockQty is a projection owned by the
// stock ledger; catalog never writes it.
type Product struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	UnitPrice float64   `json:"unit_price"`
	TaxRate   float64   `json:"tax_rate"`
	StockQty  int64     `json:"stock_qty"`
	MinStock  int64     `json:"min_stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Customer represents a billing counterparty.
type Customer struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductInput carries create/update fields for a product.
type ProductInput struct {
	OrgID     int64   `json:"org_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	TaxRate   float64 `json:"tax_rate" validate:"gte=0"`
	MinStock  int64   `json:"min_stock" validate:"gte=0"`
}

// Validate normalises and checks the input.
func (in *ProductInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.OrgID == 0 {
		return shared.Validationf("catalog: organization required")
	}
	if in.Name == "" {
		return shared.Validationf("catalog: product name required")
	}
	if in.UnitPrice < 0 {
		return shared.Validationf("catalog: unit price must be >= 0")
	}
	if in.TaxRate < 0 {
		return shared.Validationf("catalog: tax rate must be >= 0")
	}
	if in.MinStock < 0 {
		return shared.Validationf("catalog: minimum stock must be >= 0")
	}
	return nil
}

// CustomerInput carries create fields for a customer.
type CustomerInput struct {
	OrgID   int64  `json:"org_id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
}

// Validate normalises and checks the input.
func (in *CustomerInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.OrgID == 0 {
		return shared.Validationf("catalog: organization required")
	}
	if in.Name == "" {
		return shared.Validationf("catalog: customer name required")
	}
	return nil
}
