package strategy

import (
	"fmt"

	"hl-signal-bot/internal/exchange"
)

// ShortMode decides what a "short" signal means for the account.
type ShortMode string

const (
	// ShortCloses treats short as "flatten the long": reduce-only sell of the whole position.
	ShortCloses ShortMode = "close"
	// ShortOpens treats short as opening (or adding to) a short position.
	ShortOpens ShortMode = "open_short"
)

func ParseShortMode(s string) (ShortMode, error) {
	switch ShortMode(s) {
	case ShortCloses, ShortOpens:
		return ShortMode(s), nil
	}
	return "", fmt.Errorf("unknown short mode %q", s)
}

// Intent is what the account should do in response to a signal.
type Intent int

const (
	OpenLong Intent = iota
	OpenShort
	Close
)

func (i Intent) String() string {
	switch i {
	case OpenLong:
		return "open_long"
	case OpenShort:
		return "open_short"
	case Close:
		return "close"
	}
	return "unknown"
}

// IsBuy is the order direction the intent trades in.
func (i Intent) IsBuy() bool { return i == OpenLong }

// Opens reports whether the intent may increase exposure.
func (i Intent) Opens() bool { return i != Close }

// SignalPolicy maps inbound signals to intents.
type SignalPolicy struct {
	Short ShortMode
}

func (p SignalPolicy) Intent(side exchange.Side) Intent {
	if side == exchange.Long {
		return OpenLong
	}
	if p.Short == ShortOpens {
		return OpenShort
	}
	return Close
}

// SkipReason returns a non-empty reason when the intent would be a duplicate
// open or a no-op close against the given position state.
func SkipReason(intent Intent, st exchange.AccountState) string {
	pos, ok := st.OpenPosition.Get()
	open := ok && pos.IsOpen()
	switch intent {
	case OpenLong:
		if open && pos.IsLong() {
			return "already_in_position"
		}
	case OpenShort:
		if open && pos.IsShort() {
			return "already_in_position"
		}
	case Close:
		if !open {
			return "no_position"
		}
	}
	return ""
}
