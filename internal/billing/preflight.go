package billing

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of invoice and due dates.
const DateLayout = "2006-01-02"

// Fields are the operator-entered invoice form fields shared by every
// invoice of a batch.
type Fields struct {
	InvoiceDate string `json:"invoiceDate" yaml:"invoiceDate"`
	DueDate     string `json:"dueDate" yaml:"dueDate"`
	Reference   string `json:"reference" yaml:"reference"`
	Notes       string `json:"notes" yaml:"notes"`
}

// Violation is one preflight problem.
type Violation struct {
	RecordID string
	Field    string
	Reason   string
}

func (v Violation) String() string {
	if v.RecordID != "" {
		return fmt.Sprintf("record %s: %s %s", v.RecordID, v.Field, v.Reason)
	}
	return fmt.Sprintf("%s %s", v.Field, v.Reason)
}

// PreflightError lists every problem found before submission.
type PreflightError struct {
	Violations []Violation
}

func (e *PreflightError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "preflight failed: " + strings.Join(parts, "; ")
}

// Preflight validates a selection and the form fields. It collects every
// violation rather than stopping at the first.
func Preflight(records []Record, fields Fields) error {
	var vs []Violation

	if len(records) == 0 {
		vs = append(vs, Violation{Field: "selection", Reason: "is empty"})
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			vs = append(vs, Violation{Field: "id", Reason: "is required"})
			continue
		}
		if _, dup := seen[id]; dup {
			vs = append(vs, Violation{RecordID: id, Field: "id", Reason: "is selected more than once"})
			continue
		}
		seen[id] = struct{}{}

		if !r.Status.Invoiceable() {
			vs = append(vs, Violation{RecordID: id, Field: "status", Reason: fmt.Sprintf("%q is not invoiceable", r.Status)})
		}
		side, party := r.Recipient()
		if strings.TrimSpace(party.Email) == "" {
			vs = append(vs, Violation{RecordID: id, Field: string(side) + ".email", Reason: "is required"})
		}
	}

	vs = append(vs, fields.violations()...)

	if len(vs) > 0 {
		return &PreflightError{Violations: vs}
	}
	return nil
}

func (f Fields) violations() []Violation {
	var vs []Violation
	invoice, errInvoice := time.Parse(DateLayout, f.InvoiceDate)
	if errInvoice != nil {
		vs = append(vs, Violation{Field: "invoiceDate", Reason: "must be YYYY-MM-DD"})
	}
	due, errDue := time.Parse(DateLayout, f.DueDate)
	if errDue != nil {
		vs = append(vs, Violation{Field: "dueDate", Reason: "must be YYYY-MM-DD"})
	}
	if errInvoice == nil && errDue == nil && due.Before(invoice) {
		vs = append(vs, Violation{Field: "dueDate", Reason: "is before invoiceDate"})
	}
	return vs
}
