package shared

import (
	"time"
)

// EntrySignal represents a confirmed entry signal for a position.
type EntrySignal struct {
	Market    string
	Direction Direction
	// Price is the raw signal price, before any slippage is applied.
	Price     float64
	Reasons   []Reason
	Index     int
	CreatedOn time.Time
}

// NewEntrySignal initializes a new entry signal.
func NewEntrySignal(market string, direction Direction, price float64, reasons []Reason,
	index int, created time.Time) EntrySignal {
	return EntrySignal{
		Market:    market,
		Direction: direction,
		Price:     price,
		Reasons:   reasons,
		Index:     index,
		CreatedOn: created,
	}
}

// AlertKind represents the kind of an inbound alert.
type AlertKind int

const (
	Buy AlertKind = iota
	Sell
)

// String stringifies the provided alert kind.
func (k AlertKind) String() string {
	switch k {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "unknown"
	}
}

// Direction returns the position direction of the alert kind.
func (k AlertKind) Direction() Direction {
	if k == Sell {
		return Short
	}
	return Long
}

// Alert represents an inbound third-party trade alert.
type Alert struct {
	Kind       AlertKind
	Market     string
	Price      float64
	ReceivedOn time.Time
}
