package gateway

import (
	"encoding/json"
	"time"
)

// ClientEnvelope is the JSON frame a client sends: a method name, a
// correlation id for request/response pairing, and the method's arguments.
type ClientEnvelope struct {
	Method        string          `json:"method"`
	CorrelationID string          `json:"correlationId"`
	Args          json.RawMessage `json:"args"`
}

// ServerEnvelope is the JSON frame sent back: either a response to a
// specific CorrelationID, or an unsolicited group broadcast (CorrelationID
// empty).
type ServerEnvelope struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	Payload       any    `json:"payload,omitempty"`
	Error         *WireError `json:"error,omitempty"`
}

// WireError carries a protocol-layer or orchestrator error back to the
// invoking client.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createGameArgs struct {
	Mode       string `json:"mode"`
	MaxPlayers int    `json:"maxPlayers"`
	MaxRounds  int    `json:"maxRounds"`
}

type gameCreatedResp struct {
	GameID     string `json:"gameId"`
	Mode       string `json:"mode"`
	MaxPlayers int    `json:"maxPlayers"`
	MaxRounds  int    `json:"maxRounds"`
}

type joinGameArgs struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type startGameArgs struct {
	GameID string `json:"gameId"`
}

type clickSymbolArgs struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	SymbolID int    `json:"symbolId"`
}

type roundStartEvent struct {
	GameID            string         `json:"gameId"`
	RoundNumber       int            `json:"roundNumber"`
	SharedCardIndex   int            `json:"sharedCardIndex"`
	PlayerCardIndexes map[string]int `json:"playerCardIndexes"`
	StartedAtUtc      time.Time      `json:"startedAtUtc"`
}

type roundResultEvent struct {
	GameID                   string         `json:"gameId"`
	RoundResolved            bool           `json:"roundResolved"`
	AttemptAccepted          bool           `json:"attemptAccepted"`
	ResolvingPlayerID        string         `json:"resolvingPlayerId,omitempty"`
	ResolvingPlayerCardIndex *int           `json:"resolvingPlayerCardIndex,omitempty"`
	MatchingSymbolID         *int           `json:"matchingSymbolId,omitempty"`
	RoundNumber              *int           `json:"roundNumber,omitempty"`
	ProcessedAtUtc           time.Time      `json:"processedAtUtc"`
	ResolutionDurationMs     *int64         `json:"resolutionDurationMs,omitempty"`
	Scores                   map[string]int `json:"scores,omitempty"`
	GameCompleted            bool           `json:"gameCompleted"`
}

type gameOverEvent struct {
	GameID         string         `json:"gameId"`
	FinalScores    map[string]int `json:"finalScores"`
	CompletedAtUtc time.Time      `json:"completedAtUtc"`
}
