package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/signintech/gopdf"
)

var ErrInvoicePDFDisabled = errors.New("invoice PDF rendering is not configured")

const (
	pdfMarginX  = 40.0
	pdfPageEndY = 790.0
	pdfLineH    = 16.0
)

// ExportInvoicePDF writes the printable reimbursement statement of an invoice.
func (s *Service) ExportInvoicePDF(ctx context.Context, reference string, w io.Writer) error {
	if s.Options.InvoiceFont == "" {
		return ErrInvoicePDFDisabled
	}
	inv, err := s.Store.GetInvoiceByReference(ctx, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}
	details, err := s.Store.ListInvoiceDetails(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to list invoice details: %w", err)
	}
	return renderInvoicePDF(w, s.Options.InvoiceFont, inv, details)
}

type invoicePDF struct {
	pdf *gopdf.GoPdf
}

func renderInvoicePDF(w io.Writer, fontPath string, inv *models.Invoice, details []InvoiceDetail) error {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("body", fontPath); err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("body", "", 14); err != nil {
		return fmt.Errorf("failed to set font: %w", err)
	}

	p := &invoicePDF{pdf: pdf}
	pdf.SetXY(pdfMarginX, 40)
	p.text(fmt.Sprintf("Justificatif de remboursement %s", inv.Reference))

	if err := pdf.SetFont("body", "", 10); err != nil {
		return fmt.Errorf("failed to set font: %w", err)
	}
	p.text(fmt.Sprintf("Date : %s", inv.Date.In(utils.Paris()).Format("02/01/2006")))
	if len(details) > 0 {
		p.text(fmt.Sprintf("Compte bancaire : %s (%s)", details[0].BankAccountLabel, details[0].Iban))
	}
	p.text(fmt.Sprintf("Montant remboursé : %s €", euros(inv.Amount)))
	pdf.Br(pdfLineH)

	p.text("Barème            Taux     Montant des réservations     Montant remboursé")
	for _, l := range inv.Lines {
		p.text(fmt.Sprintf("%-17s %-8s %-28s %s",
			l.Label,
			l.Rate.Shift(2).StringFixed(2)+" %",
			euros(l.ContributionAmount+l.ReimbursedAmount)+" €",
			euros(l.ReimbursedAmount)+" €",
		))
	}
	pdf.Br(pdfLineH)

	p.text("Détail des réservations")
	for _, d := range details {
		token := d.Token
		if d.IsCollective {
			token = "EAC"
		}
		p.text(fmt.Sprintf("%s | %s | %s | %d x %s € | %s €",
			d.VenueName, d.OfferName, token, d.Quantity, euros(d.UnitAmount), euros(-d.PricingAmount)))
	}

	if err := pdf.Write(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// text writes one line and breaks to a new page at the bottom margin.
func (p *invoicePDF) text(s string) {
	if p.pdf.GetY() > pdfPageEndY {
		p.pdf.AddPage()
		p.pdf.SetY(40)
	}
	p.pdf.SetX(pdfMarginX)
	_ = p.pdf.Cell(nil, s)
	p.pdf.Br(pdfLineH)
}
