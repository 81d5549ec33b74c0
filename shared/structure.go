package shared

import "time"

// StructureKind represents the type of market structure event.
type StructureKind int

const (
	BreakOfStructure StructureKind = iota
	ChangeOfCharacter
)

// String stringifies the provided structure kind.
func (k StructureKind) String() string {
	switch k {
	case BreakOfStructure:
		return "BOS"
	case ChangeOfCharacter:
		return "CHOCH"
	default:
		return "unknown"
	}
}

// StructureEvent represents a market structure event. Breaks of structure carry a
// bullish or bearish sentiment, changes of character are always neutral.
type StructureEvent struct {
	Kind      StructureKind
	Sentiment Sentiment
	Level     float64
	Index     int
	Date      time.Time
}

// LiquiditySweep represents a wick that pierces a prior extreme while the close
// reverts back inside it.
type LiquiditySweep struct {
	Sentiment  Sentiment
	Level      float64
	EntryPrice float64
	Index      int
	Date       time.Time
}
