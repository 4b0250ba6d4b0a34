package websocket

import "encoding/json"

// Message is the wire envelope. Payload shape depends on the action.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound actions.
const (
	ActionCreateMatch = "match:create"
	ActionJoinMatch   = "match:join"
	ActionMakeMove    = "game:move"
	ActionReconnect   = "match:reconnect"
	ActionLeaveMatch  = "match:leave"
)

// Outbound actions.
const (
	ActionMatchCreated         = "match:created"
	ActionMatchJoined          = "match:joined"
	ActionOpponentJoined       = "opponent:joined"
	ActionMoveApplied          = "game:move_applied"
	ActionMatchCompleted       = "match:completed"
	ActionOpponentDisconnected = "opponent:disconnected"
	ActionOpponentReconnected  = "opponent:reconnected"
	ActionError                = "error"
)

type CreateMatchPayload struct {
	PlayerName string `json:"player_name"`
}

type JoinMatchPayload struct {
	MatchID    string `json:"match_id"`
	PlayerName string `json:"player_name"`
}

type MakeMovePayload struct {
	Cell *int `json:"cell"`
}

type ReconnectPayload struct {
	MatchID        string `json:"match_id"`
	ReconnectToken string `json:"reconnect_token"`
}

type MatchCreatedPayload struct {
	MatchID        string `json:"match_id"`
	Mark           string `json:"mark"`
	ReconnectToken string `json:"reconnect_token"`
}

// MatchJoinedPayload is the joiner's (and reconnector's) own view of the
// match: its mark and token plus the current game snapshot.
type MatchJoinedPayload struct {
	MatchID        string   `json:"match_id"`
	Mark           string   `json:"mark"`
	ReconnectToken string   `json:"reconnect_token"`
	OpponentName   string   `json:"opponent_name,omitempty"`
	Board          []string `json:"board"`
	Turn           string   `json:"turn"`
}

type OpponentJoinedPayload struct {
	OpponentName string   `json:"opponent_name"`
	Board        []string `json:"board"`
	Turn         string   `json:"turn"`
}

type MoveAppliedPayload struct {
	Board []string `json:"board"`
	Turn  string   `json:"turn"`
}

type MatchCompletedPayload struct {
	Result string   `json:"result"`
	Winner string   `json:"winner,omitempty"`
	Board  []string `json:"board"`
}

type OpponentDisconnectedPayload struct {
	GraceSeconds int `json:"grace_seconds"`
}

type OpponentReconnectedPayload struct{}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
