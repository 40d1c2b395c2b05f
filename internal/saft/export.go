// Package saft renders issued fiscal documents as a SAF-T style audit file.
package saft

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/invoicing"
)

// InvoiceSource is the read contract the exporter consumes.
type InvoiceSource interface {
	List(ctx context.Context, filter invoicing.ListFilter) ([]invoicing.Invoice, error)
}

// CompanyInfo fills the audit file header.
type CompanyInfo struct {
	Name          string
	TaxID         string
	CurrencyCode  string
	SoftwareName  string
	ProductNumber string
}

// Exporter serializes a reporting period. It only reads committed state.
type Exporter struct {
	source  InvoiceSource
	company CompanyInfo
	now     func() time.Time
}

// NewExporter constructs Exporter.
func NewExporter(source InvoiceSource, company CompanyInfo) *Exporter {
	if company.CurrencyCode == "" {
		company.CurrencyCode = "AOA"
	}
	return &Exporter{source: source, company: company, now: time.Now}
}

// AuditFile is the document root.
type AuditFile struct {
	XMLName         xml.Name        `xml:"AuditFile"`
	Header          Header          `xml:"Header"`
	MasterFiles     MasterFiles     `xml:"MasterFiles"`
	SourceDocuments SourceDocuments `xml:"SourceDocuments"`
}

// Header identifies the issuer and the reporting period.
type Header struct {
	AuditFileVersion      string `xml:"AuditFileVersion"`
	CompanyName           string `xml:"CompanyName"`
	TaxRegistrationNumber string `xml:"TaxRegistrationNumber"`
	FiscalYear            int    `xml:"FiscalYear"`
	StartDate             string `xml:"StartDate"`
	EndDate               string `xml:"EndDate"`
	CurrencyCode          string `xml:"CurrencyCode"`
	DateCreated           string `xml:"DateCreated"`
	ProductID             string `xml:"ProductID"`
}

// MasterFiles carries the customers referenced by the period's documents.
type MasterFiles struct {
	Customers []Customer `xml:"Customer"`
}

// Customer is one master file entry.
type Customer struct {
	CustomerID  int64  `xml:"CustomerID"`
	CompanyName string `xml:"CompanyName"`
	CustomerTax string `xml:"CustomerTaxID"`
}

// SourceDocuments wraps the sales section.
type SourceDocuments struct {
	SalesInvoices SalesInvoices `xml:"SalesInvoices"`
}

// SalesInvoices aggregates the period's issued documents.
type SalesInvoices struct {
	NumberOfEntries int     `xml:"NumberOfEntries"`
	TotalCredit     string  `xml:"TotalCredit"`
	Invoices        []Entry `xml:"Invoice"`
}

// Entry is one issued document.
type Entry struct {
	InvoiceNo      string         `xml:"InvoiceNo"`
	InvoiceType    string         `xml:"InvoiceType"`
	InvoiceDate    string         `xml:"InvoiceDate"`
	InvoiceStatus  string         `xml:"InvoiceStatus"`
	CustomerID     *int64         `xml:"CustomerID,omitempty"`
	Lines          []EntryLine    `xml:"Line"`
	DocumentTotals DocumentTotals `xml:"DocumentTotals"`
}

// EntryLine is one document line with its issue-time snapshot.
type EntryLine struct {
	LineNumber  int    `xml:"LineNumber"`
	ProductCode int64  `xml:"ProductCode"`
	Description string `xml:"ProductDescription"`
	Quantity    int64  `xml:"Quantity"`
	UnitPrice   string `xml:"UnitPrice"`
	TaxRate     string `xml:"TaxPercentage"`
	CreditAmt   string `xml:"CreditAmount"`
}

// DocumentTotals carries the money summary.
type DocumentTotals struct {
	TaxPayable string `xml:"TaxPayable"`
	NetTotal   string `xml:"NetTotal"`
	GrossTotal string `xml:"GrossTotal"`
}

// Export writes the period's audit file, Windows-1252 encoded.
func (e *Exporter) Export(ctx context.Context, w io.Writer, orgID int64, from, to time.Time) error {
	if !from.Before(to) {
		return fmt.Errorf("saft: export period is empty")
	}

	invoices, err := e.source.List(ctx, invoicing.ListFilter{OrgID: orgID, From: from, To: to})
	if err != nil {
		return fmt.Errorf("saft: load documents: %w", err)
	}

	file := e.build(invoices, from, to)

	enc := transform.NewWriter(w, charmap.Windows1252.NewEncoder())
	if _, err := io.WriteString(enc, `<?xml version="1.0" encoding="WINDOWS-1252"?>`+"\n"); err != nil {
		return fmt.Errorf("saft: write declaration: %w", err)
	}
	xmlEnc := xml.NewEncoder(enc)
	xmlEnc.Indent("", "  ")
	if err := xmlEnc.Encode(file); err != nil {
		return fmt.Errorf("saft: encode: %w", err)
	}
	if err := xmlEnc.Close(); err != nil {
		return fmt.Errorf("saft: encode: %w", err)
	}
	return enc.Close()
}

func (e *Exporter) build(invoices []invoicing.Invoice, from, to time.Time) AuditFile {
	file := AuditFile{
		Header: Header{
			AuditFileVersion:      "1.01_01",
			CompanyName:           e.company.Name,
			TaxRegistrationNumber: e.company.TaxID,
			FiscalYear:            from.Year(),
			StartDate:             from.Format("2006-01-02"),
			EndDate:               to.Format("2006-01-02"),
			CurrencyCode:          e.company.CurrencyCode,
			DateCreated:           e.now().UTC().Format("2006-01-02"),
			ProductID:             fmt.Sprintf("%s/%s", e.company.SoftwareName, e.company.ProductNumber),
		},
	}

	seenCustomers := make(map[int64]bool)
	totalCredit := decimal.Zero
	for _, inv := range invoices {
		if !e.reportable(inv) {
			continue
		}

		if inv.CustomerID != nil && !seenCustomers[*inv.CustomerID] {
			seenCustomers[*inv.CustomerID] = true
			file.MasterFiles.Customers = append(file.MasterFiles.Customers, Customer{
				CustomerID:  *inv.CustomerID,
				CompanyName: inv.CustomerName,
				CustomerTax: inv.CustomerTaxID,
			})
		}

		entry := Entry{
			InvoiceNo:     inv.DocNumber,
			InvoiceType:   inv.DocType.Code(),
			InvoiceDate:   inv.IssuedAt.Format("2006-01-02"),
			InvoiceStatus: statusCode(inv.Status),
			CustomerID:    inv.CustomerID,
			DocumentTotals: DocumentTotals{
				TaxPayable: money(inv.TaxTotal),
				NetTotal:   money(inv.Subtotal),
				GrossTotal: money(inv.Total),
			},
		}
		for i, line := range inv.Lines {
			entry.Lines = append(entry.Lines, EntryLine{
				LineNumber:  i + 1,
				ProductCode: line.ProductID,
				Description: line.ProductName,
				Quantity:    line.Qty,
				UnitPrice:   money(line.UnitPrice),
				TaxRate:     money(line.TaxRate),
				CreditAmt:   money(line.LineTotal),
			})
		}
		file.SourceDocuments.SalesInvoices.Invoices = append(file.SourceDocuments.SalesInvoices.Invoices, entry)
		totalCredit = totalCredit.Add(decimal.NewFromFloat(inv.Total))
	}

	file.SourceDocuments.SalesInvoices.NumberOfEntries = len(file.SourceDocuments.SalesInvoices.Invoices)
	file.SourceDocuments.SalesInvoices.TotalCredit = totalCredit.StringFixed(2)
	return file
}

// reportable keeps fiscal documents that reached issue. Cancelled and voided
// ones stay in the file with their status code; drafts and proformas do not
// appear at all.
func (e *Exporter) reportable(inv invoicing.Invoice) bool {
	return inv.Fiscal && inv.IssuedAt != nil && inv.Number != nil
}

func statusCode(s invoicing.Status) string {
	switch s {
	case invoicing.StatusCancelled, invoicing.StatusVoided:
		return "A"
	default:
		return "N"
	}
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
