package service

import (
	"fmt"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/classifier"
	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/grouping"
)

// groupState is where one group's submission stands.
type groupState int

const (
	statePending groupState = iota
	stateSubmitting
	stateExpiredDetected
	stateReauthorizing
	stateRetryingOnce
	stateDone
)

func (s groupState) String() string {
	return [...]string{"pending", "submitting", "expired_detected", "reauthorizing", "retrying_once", "done"}[s]
}

// transitions lists the legal next states. RetryingOnce is reachable only
// through ExpiredDetected, and never leads back to it, so a group is
// retried at most once.
var transitions = map[groupState][]groupState{
	statePending:         {stateSubmitting, stateDone},
	stateSubmitting:      {stateExpiredDetected, stateDone},
	stateExpiredDetected: {stateReauthorizing},
	stateReauthorizing:   {stateRetryingOnce, stateDone},
	stateRetryingOnce:    {stateDone},
}

// InvoiceRequest is the invoice to be written for one recipient group.
type InvoiceRequest struct {
	Key         grouping.Key
	Recipient   billing.Party
	RecordIDs   []string
	InvoiceDate string
	DueDate     string
	Reference   string
	Notes       string
}

func newInvoiceRequest(g *grouping.Group, f billing.Fields) InvoiceRequest {
	return InvoiceRequest{
		Key:         g.Key,
		Recipient:   g.Recipient,
		RecordIDs:   g.RecordIDs(),
		InvoiceDate: f.InvoiceDate,
		DueDate:     f.DueDate,
		Reference:   f.Reference,
		Notes:       f.Notes,
	}
}

func (r InvoiceRequest) wire() client.CreateInvoiceRequest {
	return client.CreateInvoiceRequest{
		ContractIDs: append([]string(nil), r.RecordIDs...),
		InvoiceDate: r.InvoiceDate,
		DueDate:     r.DueDate,
		Reference:   r.Reference,
		Notes:       r.Notes,
	}
}

// groupRun tracks one group through submission. Each run is owned by a
// single goroutine.
type groupRun struct {
	req     InvoiceRequest
	state   groupState
	retried bool

	resp    *client.CreateInvoiceResponse
	failure *classifier.Classification
}

func newGroupRun(req InvoiceRequest) *groupRun {
	return &groupRun{req: req, state: statePending}
}

func (r *groupRun) to(next groupState) {
	for _, allowed := range transitions[r.state] {
		if allowed == next {
			if next == stateRetryingOnce {
				r.retried = true
			}
			r.state = next
			return
		}
	}
	panic(fmt.Sprintf("invoice group %s: illegal transition %s -> %s", r.req.Key, r.state, next))
}

func (r *groupRun) succeed(resp *client.CreateInvoiceResponse) {
	r.to(stateDone)
	r.resp = resp
}

func (r *groupRun) fail(c classifier.Classification) {
	r.to(stateDone)
	r.failure = &c
}
