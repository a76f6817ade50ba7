package service

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ar-invoicing/internal/classifier"
	"github.com/pesio-ai/be-ar-invoicing/internal/grouping"
)

// InvoiceOutcome is a group whose invoice was written.
type InvoiceOutcome struct {
	Key           grouping.Key `json:"key"`
	RecordIDs     []string     `json:"recordIds"`
	InvoiceID     string       `json:"invoiceId"`
	InvoiceNumber string       `json:"invoiceNumber"`
	IsUpdate      bool         `json:"isUpdate"`
	Retried       bool         `json:"retried,omitempty"`
	Warning       string       `json:"warning,omitempty"`
}

// GroupFailure is a group whose invoice could not be written.
type GroupFailure struct {
	Key            grouping.Key              `json:"key"`
	RecordIDs      []string                  `json:"recordIds"`
	Classification classifier.Classification `json:"classification"`
	Retried        bool                      `json:"retried,omitempty"`
}

// BatchResult is the outcome of one CreateInvoices call. Groups appear in
// key order.
type BatchResult struct {
	BatchID  string           `json:"batchId"`
	Created  int              `json:"created"`
	Updated  int              `json:"updated"`
	Failed   []GroupFailure   `json:"failed"`
	Invoices []InvoiceOutcome `json:"invoices"`
	// Reauthorized is set when the connection expired mid-batch and was
	// re-established.
	Reauthorized bool `json:"reauthorized"`
	// AuthError is set when no group was submitted because the initial
	// authorization failed.
	AuthError *classifier.Classification `json:"authError,omitempty"`
}

func (r *BatchResult) add(run *groupRun) {
	if run.failure != nil {
		r.Failed = append(r.Failed, GroupFailure{
			Key:            run.req.Key,
			RecordIDs:      run.req.RecordIDs,
			Classification: *run.failure,
			Retried:        run.retried,
		})
		return
	}
	if run.resp.IsUpdate {
		r.Updated++
	} else {
		r.Created++
	}
	r.Invoices = append(r.Invoices, InvoiceOutcome{
		Key:           run.req.Key,
		RecordIDs:     run.req.RecordIDs,
		InvoiceID:     run.resp.InvoiceID,
		InvoiceNumber: run.resp.InvoiceNumber,
		IsUpdate:      run.resp.IsUpdate,
		Retried:       run.retried,
		Warning:       run.resp.Warning,
	})
}

// Succeeded reports whether every group was written.
func (r *BatchResult) Succeeded() bool {
	return len(r.Failed) == 0 && r.AuthError == nil
}

// Summary is a one-paragraph human description of the batch.
func (r *BatchResult) Summary() string {
	if r.AuthError != nil {
		return fmt.Sprintf("Xero is not connected (%s): %s. No invoices were submitted.",
			strings.ReplaceAll(string(r.AuthError.Kind), "_", " "), r.AuthError.Message)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s created, %s updated, %d failed.",
		plural(r.Created, "invoice"), plural(r.Updated, "invoice"), len(r.Failed))

	if r.Reauthorized {
		if r.expiredAfterRetry() {
			b.WriteString(" Xero was reconnected during the batch; please retry the failed invoices.")
		} else {
			b.WriteString(" Xero was reconnected during the batch and the affected invoices were retried.")
		}
	}
	return b.String()
}

func (r *BatchResult) expiredAfterRetry() bool {
	for _, f := range r.Failed {
		if f.Classification.Kind == classifier.KindExpiredAuth {
			return true
		}
	}
	return false
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
