package models

import "math"

// Row is a raw transaction record as delivered by an upload or a live feed,
// before any normalization. All fields are strings; amount and timestamp are
// parsed later and may be malformed without invalidating the row.
type Row struct {
	TransactionID string `json:"transaction_id"`
	SenderID      string `json:"sender_id"`
	ReceiverID    string `json:"receiver_id"`
	Amount        string `json:"amount"`
	Timestamp     string `json:"timestamp"`
}

// Transaction is an accepted, normalized transfer. Immutable once parsed.
//
// TimestampMS is unix milliseconds; NaN means the timestamp was missing or
// unparseable, in which case the transfer is excluded from time-window and
// first/last-activity calculations but still contributes to the graph.
type Transaction struct {
	ID           string  `json:"id"`
	SenderID     string  `json:"senderId"`
	ReceiverID   string  `json:"receiverId"`
	Amount       float64 `json:"amount"`
	TimestampMS  float64 `json:"timestampMs"`
	RawAmount    string  `json:"-"`
	RawTimestamp string  `json:"-"`
}

// HasTimestamp reports whether the transaction carries a usable instant.
func (t Transaction) HasTimestamp() bool {
	return !math.IsNaN(t.TimestampMS)
}

// IngestMode selects how an incoming row set combines with accumulated rows.
type IngestMode string

const (
	ModeReplace IngestMode = "replace"
	ModeAppend  IngestMode = "append"
)
