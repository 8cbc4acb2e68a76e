package models

import "time"

// Invoice represents a logistics invoice. Only the fields relevant to
// outbound document delivery are modeled here; business content (line
// items, route pricing) lives in the wider invoicing tables.
type Invoice struct {
	ID         string  `json:"id"`
	ClientName string  `json:"client_name"`
	RouteCode  string  `json:"route_code"`
	Amount     float64 `json:"amount"`

	// Generated XML document, if any
	DocumentPath        string     `json:"document_path,omitempty"`
	DocumentGeneratedAt *time.Time `json:"document_generated_at,omitempty"`

	// Delivery status fields, written only by the SAP delivery subsystem
	SentToSap   bool       `json:"sent_to_sap"`
	SentToSapAt *time.Time `json:"sent_to_sap_at,omitempty"`
	SapFileName string     `json:"sap_file_name,omitempty"`
	SapProtocol string     `json:"sap_protocol,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasDocument reports whether a generated XML document exists for this
// invoice. Transmission is refused until this is true.
func (i *Invoice) HasDocument() bool {
	return i.DocumentPath != ""
}

// DeliveryStamp carries the outcome of a completed transfer, to be
// persisted onto the invoice's delivery status fields.
type DeliveryStamp struct {
	Protocol string    `json:"protocol"`
	FileName string    `json:"file_name"`
	SentAt   time.Time `json:"sent_at"`
}
