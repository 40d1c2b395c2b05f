// Package invoicing implements fiscal document numbering and the
// DRAFT → ISSUED → {CANCELLED, VOIDED} state machine.
package invoicing

import (
	"fmt"
	"time"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
)

// DocumentType enumerates fiscal document families. Each type owns its own
// numbering series per organization.
type DocumentType string

const (
	TypeInvoice           DocumentType = "INVOICE"
	TypeInvoiceReceipt    DocumentType = "INVOICE_RECEIPT"
	TypeSimplifiedInvoice DocumentType = "SIMPLIFIED_INVOICE"
	TypeProforma          DocumentType = "PROFORMA"
	TypeCreditNote        DocumentType = "CREDIT_NOTE"
	TypeDebitNote         DocumentType = "DEBIT_NOTE"
)

// Valid reports whether the document type is known.
func (t DocumentType) Valid() bool {
	switch t {
	case TypeInvoice, TypeInvoiceReceipt, TypeSimplifiedInvoice, TypeProforma, TypeCreditNote, TypeDebitNote:
		return true
	}
	return false
}

// Code returns the short series prefix used in human-readable numbers.
func (t DocumentType) Code() string {
	switch t {
	case TypeInvoice:
		return "FT"
	case TypeInvoiceReceipt:
		return "FR"
	case TypeSimplifiedInvoice:
		return "FS"
	case TypeProforma:
		return "PP"
	case TypeCreditNote:
		return "NC"
	case TypeDebitNote:
		return "ND"
	}
	return ""
}

// MovesStock reports whether issuing this document consumes stock.
func (t DocumentType) MovesStock() bool {
	switch t {
	case TypeInvoice, TypeInvoiceReceipt, TypeSimplifiedInvoice:
		return true
	}
	return false
}

// Fiscal reports whether the document counts toward tax reporting.
func (t DocumentType) Fiscal() bool {
	return t != TypeProforma
}

// Status enumerates document lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusIssued    Status = "ISSUED"
	StatusCancelled Status = "CANCELLED"
	StatusVoided    Status = "VOIDED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusVoided
}

// Invoice is a fiscal document. Once the status leaves DRAFT the number is
// permanently assigned and lines are frozen.
type Invoice struct {
	ID            int64        `json:"id"`
	OrgID         int64        `json:"org_id"`
	DocType       DocumentType `json:"doc_type"`
	Status        Status       `json:"status"`
	Number        *int64       `json:"number,omitempty"`
	DocNumber     string       `json:"doc_number,omitempty"`
	CustomerID    *int64       `json:"customer_id,omitempty"`
	CustomerName  string       `json:"customer_name"`
	CustomerTaxID string       `json:"customer_tax_id"`
	Subtotal      float64      `json:"subtotal"`
	TaxTotal      float64      `json:"tax_total"`
	Total         float64      `json:"total"`
	Fiscal        bool         `json:"fiscal"`
	StatusReason  string       `json:"status_reason,omitempty"`
	IssuedAt      *time.Time   `json:"issued_at,omitempty"`
	CreatedBy     int64        `json:"created_by"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Lines         []Line       `json:"lines"`
}

// Line carries the product snapshot taken at issue time. It is never
// re-resolved from the live product afterwards.
type Line struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoice_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
	Qty         int64   `json:"qty"`
	DiscountPct float64 `json:"discount_pct"`
	LineTotal   float64 `json:"line_total"`
}

// LineInput describes one draft line.
type LineInput struct {
	ProductID   int64   `json:"product_id" validate:"required"`
	Quantity    int64   `json:"quantity" validate:"gt=0"`
	DiscountPct float64 `json:"discount_pct" validate:"gte=0,lte=100"`
}

// DraftInput describes a new draft document.
type DraftInput struct {
	OrgID      int64        `json:"org_id" validate:"required"`
	DocType    DocumentType `json:"doc_type" validate:"required"`
	CustomerID *int64       `json:"customer_id,omitempty"`
	CreatedBy  int64        `json:"created_by"`
	Lines      []LineInput  `json:"lines"`
}

// ListFilter selects documents for listing and export reads.
type ListFilter struct {
	OrgID   int64
	DocType DocumentType
	Status  Status
	From    time.Time
	To      time.Time
	Limit   int
}

var (
	// ErrEmptyInvoice indicates an issue attempt on a draft with no lines.
	ErrEmptyInvoice = fmt.Errorf("%w: invoice has no lines", shared.ErrValidation)
	// ErrReasonRequired indicates a cancel/void without a reason.
	ErrReasonRequired = fmt.Errorf("%w: a reason is required", shared.ErrValidation)
)

// FormatDocNumber renders the human-readable number for a series position.
func FormatDocNumber(t DocumentType, n int64) string {
	return fmt.Sprintf("%s %d", t.Code(), n)
}

func (in DraftInput) validate() error {
	if in.OrgID == 0 {
		return shared.Validationf("invoicing: organization required")
	}
	if !in.DocType.Valid() {
		return shared.Validationf("invoicing: unknown document type %q", in.DocType)
	}
	for i, line := range in.Lines {
		if line.ProductID == 0 {
			return shared.Validationf("invoicing: line %d: product required", i+1)
		}
		if line.Quantity <= 0 {
			return shared.Validationf("invoicing: line %d: quantity must be positive", i+1)
		}
		if line.DiscountPct < 0 || line.DiscountPct > 100 {
			return shared.Validationf("invoicing: line %d: discount must be between 0 and 100", i+1)
		}
	}
	return nil
}
