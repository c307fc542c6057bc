package payroll

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// RenderPayslip writes a one-page PDF for rec to w.
func RenderPayslip(w io.Writer, emp Employee, rec SalaryRecord) error {
	rec.Recompute()
	label := rec.PeriodLabel
	if label == "" {
		label = rec.Month
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s (%s)", emp.Name, emp.Identity))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Email: %s", emp.Contact.Email))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s", label))
	pdf.Ln(7)
	if !rec.WindowStart.IsZero() {
		pdf.Cell(0, 8, fmt.Sprintf("Window: %s to %s", rec.WindowStart.Format(dayLayout), rec.WindowEnd.Format(dayLayout)))
		pdf.Ln(7)
	}
	pdf.Ln(3)

	lines := []struct {
		name   string
		amount float64
	}{
		{"Basic salary", rec.BasicSalary},
		{"Allowances", rec.Allowances},
		{"Bonus", rec.Bonus},
		{"Overtime", rec.Overtime},
		{"Deductions", -rec.Deductions},
	}
	for _, line := range lines {
		pdf.CellFormat(80, 8, line.name, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", line.amount), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(80, 8, "Total", "T", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, fmt.Sprintf("%.2f", rec.TotalSalary), "T", 1, "R", false, 0, "")
	pdf.Ln(5)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s (%s)", rec.PaymentStatus, rec.PaymentMethod))
	if rec.PaymentDate != nil {
		pdf.Ln(7)
		pdf.Cell(0, 8, fmt.Sprintf("Paid on: %s", rec.PaymentDate.Format(dayLayout)))
	}

	return pdf.Output(w)
}
