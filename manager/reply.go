package manager

import (
	"fmt"
	"strconv"

	"github.com/rustyeddy/trademanager/broker"
)

type ReplyKind int

const (
	ReplyOpened ReplyKind = iota
	ReplyLocked
	ReplyUnknownStrategy
	ReplyDisabled
	ReplyNoData
	ReplyFailed
	ReplyInvalid
	ReplyInternalError
)

// Reply is the outcome of one signal. String renders the text sent back to
// the strategy.
type Reply struct {
	Kind   ReplyKind
	Side   broker.Side
	Ticket int64
	Volume float64
	// Reason carries the broker's rejection text or the validation detail.
	Reason string
}

func (r Reply) String() string {
	switch r.Kind {
	case ReplyOpened:
		return fmt.Sprintf("Manager: OPENED %s (Ticket: %d) | Vol: %s",
			r.Side, r.Ticket, strconv.FormatFloat(r.Volume, 'f', -1, 64))
	case ReplyLocked:
		return "Manager: REJECTED (System Locked)"
	case ReplyUnknownStrategy:
		return "Manager: Unknown Strategy"
	case ReplyDisabled:
		return "Manager: Strategy Disabled"
	case ReplyNoData:
		return "Manager: No Data"
	case ReplyFailed:
		return fmt.Sprintf("Manager: Failed (%s)", r.Reason)
	case ReplyInvalid:
		return fmt.Sprintf("Manager: Invalid Signal (%s)", r.Reason)
	default:
		return "Manager: Internal Error"
	}
}

func (k ReplyKind) String() string {
	switch k {
	case ReplyOpened:
		return "opened"
	case ReplyLocked:
		return "locked"
	case ReplyUnknownStrategy:
		return "unknown_strategy"
	case ReplyDisabled:
		return "disabled"
	case ReplyNoData:
		return "no_data"
	case ReplyFailed:
		return "failed"
	case ReplyInvalid:
		return "invalid"
	default:
		return "internal_error"
	}
}
