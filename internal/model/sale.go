package model

import "time"

// Sale is a confirmed purchase.  It is created exactly once, when a
// payment is confirmed, and owns its line items and transitively the
// units they mark sold.  SaleRef is an opaque reference suited for
// receipts and QR codes.
//
// Fields:
//  ID        – primary key identifier.
//  ClientID  – buyer account.
//  SaleRef   – opaque external reference (UUID).
//  CreatedAt – confirmation timestamp.
type Sale struct {
	ID        uint64    // sales.id
	ClientID  uint64    // sales.client_id
	SaleRef   string    // sales.sale_ref
	CreatedAt time.Time // sales.created_at
}
