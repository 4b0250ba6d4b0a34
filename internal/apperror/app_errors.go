package apperror

import "errors"

var (
	ErrIllegalMove          = errors.New("illegal move")
	ErrNotInMatch           = errors.New("player is not in this match")
	ErrNotYourTurn          = errors.New("it's not your turn")
	ErrGameNotInProgress    = errors.New("game is not in progress")
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchFull            = errors.New("match is already full")
	ErrMatchAlreadyStarted  = errors.New("match has already started")
	ErrSlotNotReconnectable = errors.New("slot is not reconnectable")

	ErrRecordNotFound = errors.New("match record not found")
)

const KindInternal = "Internal"

// Kind maps a coordinator error to the wire-level error kind reported to clients.
// Unknown errors map to KindInternal so internals never leak onto the wire.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrIllegalMove):
		return "IllegalMove"
	case errors.Is(err, ErrNotInMatch):
		return "NotInMatch"
	case errors.Is(err, ErrNotYourTurn):
		return "NotYourTurn"
	case errors.Is(err, ErrGameNotInProgress):
		return "GameNotInProgress"
	case errors.Is(err, ErrMatchNotFound):
		return "MatchNotFound"
	case errors.Is(err, ErrMatchFull):
		return "MatchFull"
	case errors.Is(err, ErrMatchAlreadyStarted):
		return "MatchAlreadyStarted"
	case errors.Is(err, ErrSlotNotReconnectable):
		return "SlotNotReconnectable"
	default:
		return KindInternal
	}
}
