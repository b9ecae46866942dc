// Package transform maps raw payment rows into the wire shape expected by
// the billing endpoint.
//
// Transform is a pure function: deterministic given the same inputs, no
// side effects beyond the terminal lookup. Monetary values are carried as
// decimals so minor-unit division never loses cents to float rounding.
package transform

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parkops/billsync/internal/source"
)

// TerminalLookup resolves a terminal to its facility association.
// Implemented by checkpoint.Store; a miss returns ok=false.
type TerminalLookup interface {
	Resolve(terminalID int64) (description string, parking string, ok bool)
}

// Money is a two-place decimal amount. Marshals as a plain JSON number
// with exactly two fractional digits ("145.00", never 144.99999...).
type Money struct {
	decimal.Decimal
}

// MarshalJSON renders the amount with fixed two-place precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.StringFixed(2)), nil
}

// MinorUnits builds a Money value from integer minor-currency units.
func MinorUnits(v int64) Money {
	return Money{decimal.NewFromInt(v).Div(decimal.NewFromInt(100))}
}

// Item is one receipt line item.
type Item struct {
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Payment is one entry of the receipt payment breakdown.
type Payment struct {
	Type  string `json:"type"` // "CASH" | "CARD"
	Value Money  `json:"value"`
}

// Document is the wire body POSTed to the billing endpoint. It carries no
// local identifiers; those live on Record and are stripped before send.
type Document struct {
	DatePayment string    `json:"date_payment"`
	Description string    `json:"description"`
	DocumentID  string    `json:"document_id"`
	Discount    Money     `json:"discount"`
	Items       []Item    `json:"items"`
	Number      string    `json:"number"`
	Payments    []Payment `json:"payments"`
}

// Record is a transformed, delivery-ready payment. Constructed fresh each
// cycle and never persisted independently of the delivery outcome.
type Record struct {
	// SourceID and OperationID identify the upstream row. Local-only:
	// stripped from the request, reattached on confirmation.
	SourceID    int64
	OperationID int64

	// Facility is the parking-zone code resolved from the terminal
	// association. Keys the per-facility credential table. Empty when the
	// terminal is unknown.
	Facility string

	Body Document
}

// Transform builds the delivery representation of one payment row.
//
// An unknown terminal degrades to empty facility fields; the record is
// still produced and the delivery layer decides whether the remote accepts
// it.
func Transform(rec source.Record, lookup TerminalLookup) Record {
	description, parking, _ := lookup.Resolve(rec.TerminalID)

	documentID := fmt.Sprintf("%d_%d", rec.ID, rec.OperationID)
	paid := MinorUnits(rec.Amount - rec.Discount)

	body := Document{
		DatePayment: formatDateTime(rec.PaymentTime),
		Description: fmt.Sprintf("бокс: %s, час перебування: %s, час вїзду: %s, час оплати: %s ",
			description,
			FormatDuration(rec.PaymentTime-rec.EntryTime),
			formatDateTime(rec.EntryTime),
			formatDateTime(rec.PaymentTime),
		),
		DocumentID: documentID,
		Discount:   MinorUnits(rec.Discount),
		Items: []Item{
			{Name: "Оплата парковки", Price: paid, Quantity: 1},
		},
		Number: documentID,
		Payments: []Payment{
			{Type: PaymentKind(rec.PayCode), Value: paid},
		},
	}

	return Record{
		SourceID:    rec.ID,
		OperationID: rec.OperationID,
		Facility:    parking,
		Body:        body,
	}
}

// FormatDuration renders a stay duration in seconds as "{h}г {m}хв",
// dropping the zero component. Seconds are floored to whole minutes.
func FormatDuration(seconds int64) string {
	minutes := seconds / 60
	hours := minutes / 60
	remaining := minutes % 60

	switch {
	case hours > 0 && remaining > 0:
		return fmt.Sprintf("%dг %dхв", hours, remaining)
	case hours > 0:
		return fmt.Sprintf("%dг", hours)
	default:
		return fmt.Sprintf("%dхв", remaining)
	}
}

func formatDateTime(epoch int64) string {
	return time.Unix(epoch, 0).Format("2006-01-02 15:04:05")
}
