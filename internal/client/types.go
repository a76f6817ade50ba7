package client

// ConnectionStatus is the state of the stored Xero connection.
type ConnectionStatus struct {
	Connected  bool   `json:"connected"`
	TenantName string `json:"tenantName"`
}

// CreateInvoiceRequest creates or updates one invoice covering the given
// contracts. Every contract must resolve to the same recipient.
type CreateInvoiceRequest struct {
	ContractIDs []string `json:"contractIds"`
	InvoiceDate string   `json:"invoiceDate"`
	DueDate     string   `json:"dueDate"`
	Reference   string   `json:"reference,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// CreateInvoiceResponse describes the invoice that was written.
type CreateInvoiceResponse struct {
	InvoiceID     string   `json:"invoiceId"`
	InvoiceNumber string   `json:"invoiceNumber"`
	ContractIDs   []string `json:"contractIds"`
	// IsUpdate is set when an existing invoice was amended instead of created.
	IsUpdate bool `json:"isUpdate"`
	// Warning is set when the invoice was written but a follow-up step failed.
	Warning string `json:"warning,omitempty"`
}
