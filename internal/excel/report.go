// Package excel renders period reports as XLSX workbooks for owners who do
// their bookkeeping in a spreadsheet.
package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"ledgerdesk/backend/internal/domain"
)

const (
	summarySheet = "Summary"
	salesSheet   = "Sales"
)

// RenderPeriodReport builds a two-sheet workbook: a summary sheet with the
// period totals and a sales sheet with one row per ledger entry, reversed
// rows included so the export matches the on-screen report.
func RenderPeriodReport(report domain.PeriodReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}

	summary := [][]any{
		{"From", report.From},
		{"To", report.To},
		{"Sales", report.SalesCount},
		{"Reversed", report.ReversedCount},
		{"Revenue (cents)", report.RevenueCents},
		{"Cost (cents)", report.CostCents},
		{"Expenses (cents)", report.ExpensesCents},
		{"Credit sales (cents)", report.CreditSalesCents},
		{"Credit outstanding (cents)", report.CreditOutstandingCents},
		{"Profit (cents)", report.ProfitCents},
	}
	for i, row := range summary {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}

	if _, err := f.NewSheet(salesSheet); err != nil {
		return nil, fmt.Errorf("create sales sheet: %w", err)
	}
	header := []any{"Sale ID", "Product", "Amount (cents)", "Quantity", "Payment", "Customer", "Date", "Reversed", "Outstanding credit (cents)"}
	if err := f.SetSheetRow(salesSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write sales header: %w", err)
	}
	for i, sale := range report.Rows {
		row := []any{
			sale.ID,
			sale.ProductName,
			sale.EffectiveAmountCents,
			sale.EffectiveQuantity,
			sale.PaymentMethod,
			sale.CustomerPhone,
			sale.PurchaseDate.Format("2006-01-02 15:04"),
			sale.IsReversed,
			sale.OutstandingCreditCents,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(salesSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write sales row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
