package shared

// Reason represents an entry or exit reason.
type Reason int

const (
	TargetHit Reason = iota
	StopLossHit
	TimedOut
	BreakOfStructureConfirmed
	ImbalanceConfirmed
	LiquiditySweepConfirmed
	MomentumConfirmed
	TrendingMarket
	AlertReceived
	EndOfData
)

// String stringifies the provided reason.
func (r Reason) String() string {
	switch r {
	case TargetHit:
		return "target hit"
	case StopLossHit:
		return "stop loss hit"
	case TimedOut:
		return "timed out"
	case BreakOfStructureConfirmed:
		return "break of structure"
	case ImbalanceConfirmed:
		return "fair value gap"
	case LiquiditySweepConfirmed:
		return "liquidity sweep"
	case MomentumConfirmed:
		return "momentum"
	case TrendingMarket:
		return "trending market"
	case AlertReceived:
		return "alert received"
	case EndOfData:
		return "end of data"
	default:
		return "unknown"
	}
}

// Direction represents market direction.
type Direction int

const (
	Long Direction = iota
	Short
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}
