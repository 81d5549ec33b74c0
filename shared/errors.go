package shared

import "errors"

var (
	// ErrInsufficientData is returned when there are fewer candles than an
	// indicator window requires.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateSignal is returned when a signal cannot be sized, e.g. a zero
	// stop distance.
	ErrDegenerateSignal = errors.New("degenerate signal")
	// ErrInsufficientBalance is returned when the balance cannot cover a trade's
	// risk or entry fee.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
