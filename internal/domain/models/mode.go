package models

// Mode is the exclusive operating state gating which services run and
// which state mutations are applied.
type Mode int

const (
	ModeIdle Mode = iota
	ModeLive
	ModeBacktest
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeLive:
		return "live"
	case ModeBacktest:
		return "backtest"
	default:
		return "unknown"
	}
}
