package ws

import (
	"encoding/json"

	"pingpong-elo-server/ledger"
	"pingpong-elo-server/session"
)

// --- Client-to-Server messages ---

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw payload alongside the routing type.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// AuthMsg is sent by the client as its first message with a session token
// obtained from POST /api/login.
type AuthMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// RefreshMsg asks the server to resend the current dashboard snapshot.
type RefreshMsg struct {
	Type string `json:"type"`
}

// --- Server-to-Client messages ---

// StateMsg is the full dashboard snapshot: leaderboard, match history
// (most recent first), known player names, and the session's K-factor.
// It is sent after auth and again whenever the session's ledger changes.
type StateMsg struct {
	Type        string               `json:"type"`
	Leaderboard []ledger.Row         `json:"leaderboard"`
	Matches     []ledger.MatchRecord `json:"matches"`
	Players     []string             `json:"players"`
	KFactor     int                  `json:"k_factor"`
}

// ErrorMsg reports a problem to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewStateMsg builds the snapshot for one session.
func NewStateMsg(s *session.Session) StateMsg {
	msg := StateMsg{Type: "state", KFactor: s.DefaultK()}
	s.Do(func(l *ledger.Ledger) {
		msg.Leaderboard = l.Rows()
		msg.Matches = l.Matches()
		msg.Players = l.Names()
	})
	return msg
}
