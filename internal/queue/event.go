// Package queue defines message payloads exchanged over the message broker.
package queue

// SaleCompletedEvent is published when a checkout is successfully finalized.
// It contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type SaleCompletedEvent struct {
	SaleID      uint64     `json:"sale_id"`
	SaleRef     string     `json:"sale_ref"`
	ClientID    uint64     `json:"client_id"`
	PaymentRef  string     `json:"payment_ref"`
	TotalUnits  uint32     `json:"total_units"`
	Lines       []SaleLine `json:"lines"`
	CompletedAt string     `json:"completed_at"`
}

// SaleLine is one purchased group within a sale. UnitIndices is only set
// for enumerated sectors where the buyer holds concrete seats.
type SaleLine struct {
	LineNo      uint32   `json:"line_no"`
	EventTitle  string   `json:"event_title"`
	VenueName   string   `json:"venue_name"`
	SectorName  string   `json:"sector_name"`
	Quantity    uint32   `json:"quantity"`
	UnitIndices []uint32 `json:"unit_indices,omitempty"`
}
