package xero

// Connection is an organisation the app has been granted access to.
type Connection struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
	TenantName string `json:"tenantName"`
}

// Contact is a Xero contact.
type Contact struct {
	ContactID    string `json:"ContactID,omitempty"`
	Name         string `json:"Name,omitempty"`
	EmailAddress string `json:"EmailAddress,omitempty"`
}

// LineItem is one invoice line. Amounts are in major currency units.
type LineItem struct {
	Description string  `json:"Description"`
	Quantity    float64 `json:"Quantity"`
	UnitAmount  float64 `json:"UnitAmount"`
	AccountCode string  `json:"AccountCode,omitempty"`
}

// Invoice types and statuses.
const (
	InvoiceTypeReceivable = "ACCREC"
	StatusDraft           = "DRAFT"
	LineAmountsExclusive  = "Exclusive"
)

// Invoice is a Xero invoice.
type Invoice struct {
	InvoiceID       string     `json:"InvoiceID,omitempty"`
	InvoiceNumber   string     `json:"InvoiceNumber,omitempty"`
	Type            string     `json:"Type"`
	Contact         Contact    `json:"Contact"`
	Date            string     `json:"Date"`
	DueDate         string     `json:"DueDate"`
	Reference       string     `json:"Reference,omitempty"`
	Status          string     `json:"Status,omitempty"`
	CurrencyCode    string     `json:"CurrencyCode,omitempty"`
	LineAmountTypes string     `json:"LineAmountTypes,omitempty"`
	LineItems       []LineItem `json:"LineItems"`
	Total           float64    `json:"Total,omitempty"`
}

type contactsEnvelope struct {
	Contacts []Contact `json:"Contacts"`
}

type invoicesEnvelope struct {
	Invoices []Invoice `json:"Invoices"`
}

type historyRecord struct {
	Details string `json:"Details"`
}

type historyEnvelope struct {
	HistoryRecords []historyRecord `json:"HistoryRecords"`
}
