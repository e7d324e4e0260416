package finance

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"pcapi/internal/models"
	"pcapi/internal/utils"

	"github.com/shopspring/decimal"
)

// GenerateInvoices creates one invoice per bank account of the batch from
// its PENDING cashflows. Each bank account is invoiced in its own
// transaction so that one failure does not hold back the others.
func (s *Service) GenerateInvoices(ctx context.Context, batchID int64) ([]*models.Invoice, error) {
	if _, err := s.Store.GetBatch(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}

	cashflows, err := s.Store.ListBatchCashflows(ctx, batchID, models.CashflowPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list cashflows: %w", err)
	}

	var order []int64
	byAccount := map[int64][]*models.Cashflow{}
	for _, c := range cashflows {
		if _, ok := byAccount[c.BankAccountID]; !ok {
			order = append(order, c.BankAccountID)
		}
		byAccount[c.BankAccountID] = append(byAccount[c.BankAccountID], c)
	}

	var invoices []*models.Invoice
	for _, accountID := range order {
		inv, err := s.invoiceBankAccount(ctx, accountID, byAccount[accountID])
		if err != nil {
			s.Logger.Error("FINANCE", fmt.Sprintf("Failed to invoice bank account %d: %v", accountID, err))
			continue
		}
		invoices = append(invoices, inv)

		if s.Options.InvoiceDir != "" {
			if err := s.writeInvoiceFile(ctx, inv); err != nil {
				s.Logger.Error("FINANCE", fmt.Sprintf("Failed to write invoice %s: %v", inv.Reference, err))
			}
		}
	}

	s.Logger.LogFinance("INVOICE", fmt.Sprintf("batch %d: %d invoices for %d bank accounts", batchID, len(invoices), len(order)))
	return invoices, nil
}

func (s *Service) invoiceBankAccount(ctx context.Context, bankAccountID int64, cashflows []*models.Cashflow) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		ids := make([]int64, 0, len(cashflows))
		var amount int64
		for _, c := range cashflows {
			ids = append(ids, c.ID)
			amount += c.Amount
		}
		if _, err := tx.SetCashflowStatus(ctx, ids, models.CashflowUnderReview); err != nil {
			return fmt.Errorf("failed to review cashflows: %w", err)
		}

		pricings, err := tx.ListCashflowPricings(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to list pricings: %w", err)
		}

		count, err := tx.CountInvoices(ctx)
		if err != nil {
			return err
		}
		now := s.Now()
		inv = &models.Invoice{
			Date:          now,
			Reference:     utils.GenerateInvoiceReference(now, count+1),
			BankAccountID: bankAccountID,
			Amount:        amount,
			Lines:         invoiceLines(pricings),
		}
		if err := tx.CreateInvoice(ctx, inv, ids); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		pricingIDs := make([]int64, 0, len(pricings))
		for _, p := range pricings {
			pricingIDs = append(pricingIDs, p.ID)
		}
		if err := tx.SetPricingStatus(ctx, pricingIDs, models.PricingInvoiced); err != nil {
			return fmt.Errorf("failed to invoice pricings: %w", err)
		}
		return tx.MarkBookingsReimbursed(ctx, pricingIDs, now)
	})
	return inv, err
}

type lineKey struct {
	group string
	label string
	rate  string
}

// invoiceLines sums pricings per (rule group, rule label, rate). Custom rules
// show the effective rate of each pricing.
func invoiceLines(pricings []*models.Pricing) []*models.InvoiceLine {
	lines := map[lineKey]*models.InvoiceLine{}
	var keys []lineKey
	for _, p := range pricings {
		total := -revenueLine(p)
		reimbursed := -p.Amount

		group, label := GroupCustom, customRuleLabel
		rate := EffectiveRate(total, reimbursed)
		if rule, ok := StandardRuleByName(p.StandardRule); ok {
			group, label, rate = rule.Group, rule.Description, rule.Rate
		}

		k := lineKey{group: group, label: label, rate: rate.StringFixed(rateDecimalPlaces)}
		l, ok := lines[k]
		if !ok {
			l = &models.InvoiceLine{Label: label, RuleGroup: group, Rate: rate}
			lines[k] = l
			keys = append(keys, k)
		}
		l.ContributionAmount += total - reimbursed
		l.ReimbursedAmount += reimbursed
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].group != keys[j].group {
			return keys[i].group < keys[j].group
		}
		return keys[i].rate > keys[j].rate
	})
	out := make([]*models.InvoiceLine, 0, len(keys))
	for _, k := range keys {
		out = append(out, lines[k])
	}
	return out
}

var invoiceCSVHeader = []string{
	"Référence facture",
	"Libellé compte bancaire",
	"IBAN",
	"Lieu",
	"Offre",
	"Contremarque",
	"Date de validation",
	"Quantité",
	"Prix unitaire",
	"Montant remboursé",
	"Type",
}

// ExportInvoiceCSV writes the reimbursement details of an invoice, one row per booking.
func (s *Service) ExportInvoiceCSV(ctx context.Context, reference string, w io.Writer) error {
	inv, err := s.Store.GetInvoiceByReference(ctx, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}
	return s.writeInvoiceCSV(ctx, inv, w)
}

func (s *Service) writeInvoiceCSV(ctx context.Context, inv *models.Invoice, w io.Writer) error {
	details, err := s.Store.ListInvoiceDetails(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to list invoice details: %w", err)
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(invoiceCSVHeader); err != nil {
		return err
	}
	for _, d := range details {
		dateUsed := ""
		if d.DateUsed != nil {
			dateUsed = d.DateUsed.In(utils.Paris()).Format("2006-01-02 15:04:05")
		}
		kind := "PR18+"
		if d.IsCollective {
			kind = "EACC"
		}
		row := []string{
			inv.Reference,
			d.BankAccountLabel,
			d.Iban,
			d.VenueName,
			d.OfferName,
			d.Token,
			dateUsed,
			strconv.Itoa(d.Quantity),
			euros(d.UnitAmount),
			euros(-d.PricingAmount),
			kind,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) writeInvoiceFile(ctx context.Context, inv *models.Invoice) error {
	if err := os.MkdirAll(s.Options.InvoiceDir, 0755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(s.Options.InvoiceDir, inv.Reference+".csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return s.writeInvoiceCSV(ctx, inv, f)
}

// euros formats cents as "12.34".
func euros(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
