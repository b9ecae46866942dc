package source

// Record is one payment row from the upstream transactional store.
//
// Rows are immutable once read; the upstream system owns them. Monetary
// fields are integer minor-currency units (kopecks), timestamps are epoch
// seconds.
type Record struct {
	// ID is the unique, monotonically increasing row identifier. The sync
	// checkpoint is a cursor over this column.
	ID int64

	// OperationID is a secondary correlation identifier assigned by the
	// payment terminal.
	OperationID int64

	// TerminalID references the physical payment terminal that produced
	// the row. Resolved to a facility via the association table.
	TerminalID int64

	// EntryTime and PaymentTime are epoch seconds.
	EntryTime   int64
	PaymentTime int64

	// Amount and Discount are minor currency units.
	Amount   int64
	Discount int64

	// PayCode is the raw payment-method code (operator/parkometer/app).
	PayCode int
}
