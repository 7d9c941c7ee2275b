package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a bill.
//
// The upstream POS writes arbitrary status strings; the only value this
// system acts on is "done". Anything else counts as active and stays on
// the board.
type Status string

const (
	// StatusActive is the status a bill carries while it is being served.
	StatusActive Status = "active"

	// StatusDone marks a settled bill. The transition to done is one-way
	// and idempotent; done bills are dropped from the active view but are
	// never deleted from the store.
	StatusDone Status = "done"
)

// Done reports whether the bill has been retired.
func (s Status) Done() bool {
	return s == StatusDone
}

// LineItem is a single item on a bill, in serving order.
type LineItem struct {
	// ID is unique within the bill.
	ID string

	// Name is the menu item name (e.g., "Paneer Tikka").
	Name string

	// Quantity is always finite and non-negative after normalization.
	Quantity int64

	// Price is the unit price. Always finite and non-negative after
	// normalization; malformed source values coerce to zero.
	Price decimal.Decimal

	// CustomizationNotes is free-form kitchen text, passed through as-is.
	CustomizationNotes string
}

// Total is the line total (quantity x unit price).
func (i LineItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Bill is a normalized bill record, ready to render.
//
// Bills are created upstream when an order is placed; this system only
// observes them. The totals arrive pre-computed from the POS, so
// GrandTotal is not re-derived from Subtotal+GSTAmount here.
type Bill struct {
	// ID is the store-assigned record identifier. Identity is
	// authoritative: an id embedded in the record payload is ignored.
	ID string

	// TableNumber is the table the bill belongs to.
	TableNumber string

	// Items preserves the serving order from the source record.
	Items []LineItem

	Subtotal   decimal.Decimal
	GSTAmount  decimal.Decimal
	GrandTotal decimal.Decimal

	// Timestamp is when the order was placed. Nil when the source record
	// carried no usable timestamp.
	Timestamp *time.Time

	Status Status
}

// Active reports whether the bill belongs in the active view.
func (b *Bill) Active() bool {
	return !b.Status.Done()
}

// Clone returns a deep copy of the bill. The print workflow operates on
// clones so a bill changing mid-print is never observed.
func (b *Bill) Clone() Bill {
	out := *b
	if b.Items != nil {
		out.Items = make([]LineItem, len(b.Items))
		copy(out.Items, b.Items)
	}
	if b.Timestamp != nil {
		ts := *b.Timestamp
		out.Timestamp = &ts
	}
	return out
}
