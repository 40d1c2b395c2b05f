package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/catalog"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/shared"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/stock"
)

// TxRepository exposes the transactional operations the lifecycle needs.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	ReplaceLines(ctx context.Context, invoiceID int64, lines []Line) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateDraftTotals(ctx context.Context, id int64, subtotal, taxTotal, total float64) error
	NextNumber(ctx context.Context, orgID int64, docType DocumentType) (int64, error)
	MarkIssued(ctx context.Context, inv Invoice) error
	MarkTerminal(ctx context.Context, id int64, status Status, reason string) error
	ProductByID(ctx context.Context, id int64) (catalog.Product, error)
	CustomerByID(ctx context.Context, id int64) (catalog.Customer, error)
	// Stock returns ledger operations bound to this same transaction, so a
	// sale and its stock effect commit or roll back together.
	Stock() stock.TxRepository
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the document lifecycle.
type Service struct {
	repo   RepositoryPort
	stock  *stock.Service
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. Audit is optional.
func NewService(repo RepositoryPort, stockSvc *stock.Service, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stockSvc, audit: audit, logger: logger}
}

// CreateDraft stores a new mutable document with no number assigned. Line
// snapshots are provisional until issue.
func (s *Service) CreateDraft(ctx context.Context, input DraftInput) (Invoice, error) {
	if err := input.validate(); err != nil {
		return Invoice{}, err
	}

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv := Invoice{
			OrgID:     input.OrgID,
			DocType:   input.DocType,
			Status:    StatusDraft,
			Fiscal:    input.DocType.Fiscal(),
			CreatedBy: input.CreatedBy,
		}
		if input.CustomerID != nil {
			customer, err := tx.CustomerByID(ctx, *input.CustomerID)
			if err != nil {
				return fmt.Errorf("invoicing: resolve customer: %w", err)
			}
			inv.CustomerID = &customer.ID
			inv.CustomerName = customer.Name
			inv.CustomerTaxID = customer.TaxID
		}

		lines, totals, err := s.buildLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		inv.Subtotal, inv.TaxTotal, inv.Total = totals.subtotal, totals.taxTotal, totals.total

		inv, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, inv.ID, lines); err != nil {
			return err
		}
		inv.Lines = lines
		created = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// UpdateDraftLines replaces the lines of a draft. Issued documents are frozen.
func (s *Service) UpdateDraftLines(ctx context.Context, id int64, lines []LineInput) (Invoice, error) {
	check := DraftInput{OrgID: 1, DocType: TypeInvoice, Lines: lines}
	if err := check.validate(); err != nil {
		return Invoice{}, err
	}

	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.InvalidStatef("invoicing: document %s is %s, only drafts are mutable", inv.DocNumber, inv.Status)
		}

		built, totals, err := s.buildLines(ctx, tx, lines)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, inv.ID, built); err != nil {
			return err
		}
		inv.Subtotal, inv.TaxTotal, inv.Total = totals.subtotal, totals.taxTotal, totals.total
		inv.Lines = built
		if err := tx.UpdateDraftTotals(ctx, inv.ID, inv.Subtotal, inv.TaxTotal, inv.Total); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return updated, nil
}

// Issue assigns the next number in the (organization, document type) series,
// freezes line snapshots from current product and customer state, recomputes
// totals, and for stock-moving document types posts one SALE movement per
// line, all in a single transaction.
func (s *Service) Issue(ctx context.Context, id int64, actorID int64) (Invoice, error) {
	var issued Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.InvalidStatef("invoicing: document %d is %s, not a draft", inv.ID, inv.Status)
		}
		if len(inv.Lines) == 0 {
			return ErrEmptyInvoice
		}

		number, err := tx.NextNumber(ctx, inv.OrgID, inv.DocType)
		if err != nil {
			return err
		}

		// Re-snapshot every line from the live product at this instant;
		// after this the snapshot is immutable.
		inputs := make([]LineInput, len(inv.Lines))
		for i, line := range inv.Lines {
			inputs[i] = LineInput{ProductID: line.ProductID, Quantity: line.Qty, DiscountPct: line.DiscountPct}
		}
		lines, totals, err := s.buildLines(ctx, tx, inputs)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, inv.ID, lines); err != nil {
			return err
		}

		if inv.CustomerID != nil {
			customer, err := tx.CustomerByID(ctx, *inv.CustomerID)
			if err != nil {
				return fmt.Errorf("invoicing: resolve customer: %w", err)
			}
			inv.CustomerName = customer.Name
			inv.CustomerTaxID = customer.TaxID
		}

		now := time.Now().UTC()
		inv.Status = StatusIssued
		inv.Number = &number
		inv.DocNumber = FormatDocNumber(inv.DocType, number)
		inv.Subtotal, inv.TaxTotal, inv.Total = totals.subtotal, totals.taxTotal, totals.total
		inv.IssuedAt = &now
		inv.Lines = lines
		if err := tx.MarkIssued(ctx, inv); err != nil {
			return err
		}

		if inv.DocType.MovesStock() {
			ledger := tx.Stock()
			for _, line := range lines {
				_, err := s.stock.RecordMovementTx(ctx, ledger, stock.MovementInput{
					ProductID: line.ProductID,
					Kind:      stock.KindSale,
					Quantity:  line.Qty,
					Note:      inv.DocNumber,
					ActorID:   actorID,
				})
				if err != nil {
					return fmt.Errorf("invoicing: post sale movement: %w", err)
				}
			}
		}

		issued = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "invoicing:issue",
			Entity:   "invoice",
			EntityID: issued.DocNumber,
			Meta:     map[string]any{"org_id": issued.OrgID, "total": issued.Total},
		})
	}
	return issued, nil
}

// Cancel moves an issued document to CANCELLED. The number is never reused
// and stock is not reversed; a reversal is a separate explicit movement.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actorID int64) (Invoice, error) {
	return s.terminate(ctx, id, StatusCancelled, reason, actorID)
}

// Void moves an issued document to VOIDED under the same rules as Cancel.
func (s *Service) Void(ctx context.Context, id int64, reason string, actorID int64) (Invoice, error) {
	return s.terminate(ctx, id, StatusVoided, reason, actorID)
}

func (s *Service) terminate(ctx context.Context, id int64, status Status, reason string, actorID int64) (Invoice, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Invoice{}, ErrReasonRequired
	}

	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusIssued {
			return shared.InvalidStatef("invoicing: document %d is %s, only issued documents can be %s", inv.ID, inv.Status, strings.ToLower(string(status)))
		}
		if err := tx.MarkTerminal(ctx, inv.ID, status, reason); err != nil {
			return err
		}
		inv.Status = status
		inv.StatusReason = reason
		out = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("invoicing:%s", strings.ToLower(string(status))),
			Entity:   "invoice",
			EntityID: out.DocNumber,
			Meta:     map[string]any{"reason": reason},
		})
	}
	return out, nil
}

// Get loads one document with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	return s.repo.List(ctx, filter)
}

type invoiceTotals struct {
	subtotal float64
	taxTotal float64
	total    float64
}

// buildLines resolves products and computes per-line and document totals with
// bankers-rounded decimals.
func (s *Service) buildLines(ctx context.Context, tx TxRepository, inputs []LineInput) ([]Line, invoiceTotals, error) {
	var (
		lines    []Line
		subtotal = decimal.Zero
		taxTotal = decimal.Zero
		total    = decimal.Zero
	)
	for _, in := range inputs {
		product, err := tx.ProductByID(ctx, in.ProductID)
		if err != nil {
			return nil, invoiceTotals{}, fmt.Errorf("invoicing: resolve product %d: %w", in.ProductID, err)
		}

		net, tax, lineTotal := computeLine(in.Quantity, product.UnitPrice, product.TaxRate, in.DiscountPct)
		lines = append(lines, Line{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.UnitPrice,
			TaxRate:     product.TaxRate,
			Qty:         in.Quantity,
			DiscountPct: in.DiscountPct,
			LineTotal:   lineTotal.InexactFloat64(),
		})
		subtotal = subtotal.Add(net)
		taxTotal = taxTotal.Add(tax)
		total = total.Add(lineTotal)
	}
	return lines, invoiceTotals{
		subtotal: subtotal.InexactFloat64(),
		taxTotal: taxTotal.InexactFloat64(),
		total:    total.InexactFloat64(),
	}, nil
}

func computeLine(qty int64, unitPrice, taxRate, discountPct float64) (net, tax, total decimal.Decimal) {
	gross := decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(unitPrice))
	discount := gross.Mul(decimal.NewFromFloat(discountPct)).Div(decimal.NewFromInt(100))
	net = gross.Sub(discount).RoundBank(2)
	tax = net.Mul(decimal.NewFromFloat(taxRate)).Div(decimal.NewFromInt(100)).RoundBank(2)
	total = net.Add(tax)
	return net, tax, total
}
