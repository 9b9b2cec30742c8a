package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"towerplane/apps/server/internal/auth"
	"towerplane/apps/server/internal/registry"
	"towerplane/apps/server/internal/store"
	"towerplane/deck"
	"towerplane/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.MemoryValidator, *store.Bundle) {
	t.Helper()
	design, err := deck.Create(3)
	if err != nil {
		t.Fatalf("deck.Create: %v", err)
	}
	bundle := store.NewMemoryBundle()
	reg := registry.New(registry.DefaultConfig(), bundle, design)
	validator := auth.NewMemoryValidator()
	gw := New(validator, reg, 64*1024)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, validator, bundle
}

func dialAs(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendAndAwait(t *testing.T, conn *websocket.Conn, method, correlationID string, args any) ServerEnvelope {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	req := ClientEnvelope{Method: method, CorrelationID: correlationID, Args: rawArgs}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var resp ServerEnvelope
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if resp.CorrelationID == correlationID {
			return resp
		}
	}
}

func TestGatewayRejectsUnauthenticatedUpgrade(t *testing.T) {
	srv, _, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for an invalid token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestGatewayCreateJoinStartClickOverWebsocket(t *testing.T) {
	srv, validator, bundle := newTestServer(t)
	ctx := context.Background()

	p1Token, err := validator.IssueToken(ctx, "p1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken p1: %v", err)
	}
	p2Token, err := validator.IssueToken(ctx, "p2", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken p2: %v", err)
	}
	for _, id := range []session.PlayerID{"p1", "p2"} {
		if err := bundle.Players.Add(ctx, &store.Player{ID: id, DisplayName: string(id), CreatedAtUtc: time.Now().UTC()}); err != nil {
			t.Fatalf("Players.Add(%s): %v", id, err)
		}
	}

	conn1 := dialAs(t, srv, p1Token)
	conn2 := dialAs(t, srv, p2Token)

	created := sendAndAwait(t, conn1, "CreateGame", "c1", createGameArgs{Mode: "tower", MaxPlayers: 2, MaxRounds: 5})
	if created.Type != "GameCreated" {
		t.Fatalf("got type %q, want GameCreated (error: %+v)", created.Type, created.Error)
	}
	var gameCreated gameCreatedResp
	mustDecodePayload(t, created.Payload, &gameCreated)

	join1 := sendAndAwait(t, conn1, "JoinGame", "j1", joinGameArgs{GameID: gameCreated.GameID, PlayerID: "p1"})
	if join1.Type != "JoinGameAck" {
		t.Fatalf("got type %q, want JoinGameAck (error: %+v)", join1.Type, join1.Error)
	}
	join2 := sendAndAwait(t, conn2, "JoinGame", "j2", joinGameArgs{GameID: gameCreated.GameID, PlayerID: "p2"})
	if join2.Type != "JoinGameAck" {
		t.Fatalf("got type %q, want JoinGameAck (error: %+v)", join2.Type, join2.Error)
	}

	started := sendAndAwait(t, conn1, "StartGame", "s1", startGameArgs{GameID: gameCreated.GameID})
	if started.Type != "RoundStart" {
		t.Fatalf("got type %q, want RoundStart (error: %+v)", started.Type, started.Error)
	}
	var round roundStartEvent
	mustDecodePayload(t, started.Payload, &round)

	design, err := deck.Create(3)
	if err != nil {
		t.Fatalf("deck.Create: %v", err)
	}
	symbol, err := design.FindCommonSymbol(round.PlayerCardIndexes["p1"], round.SharedCardIndex)
	if err != nil {
		t.Fatalf("FindCommonSymbol: %v", err)
	}

	clicked := sendAndAwait(t, conn1, "ClickSymbol", "k1", clickSymbolArgs{GameID: gameCreated.GameID, PlayerID: "p1", SymbolID: symbol})
	if clicked.Type != "RoundResult" {
		t.Fatalf("got type %q, want RoundResult (error: %+v)", clicked.Type, clicked.Error)
	}
	var result roundResultEvent
	mustDecodePayload(t, clicked.Payload, &result)
	if !result.RoundResolved || !result.AttemptAccepted {
		t.Fatalf("expected resolved+accepted attempt, got %+v", result)
	}
	if result.Scores["p1"] != 1 {
		t.Fatalf("got p1 score %d, want 1", result.Scores["p1"])
	}
}

func TestGatewayRejectsCrossPrincipalRequests(t *testing.T) {
	srv, validator, bundle := newTestServer(t)
	ctx := context.Background()

	p1Token, err := validator.IssueToken(ctx, "p1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken p1: %v", err)
	}
	p2Token, err := validator.IssueToken(ctx, "p2", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken p2: %v", err)
	}
	for _, id := range []session.PlayerID{"p1", "p2"} {
		if err := bundle.Players.Add(ctx, &store.Player{ID: id, DisplayName: string(id), CreatedAtUtc: time.Now().UTC()}); err != nil {
			t.Fatalf("Players.Add(%s): %v", id, err)
		}
	}

	conn1 := dialAs(t, srv, p1Token)
	conn2 := dialAs(t, srv, p2Token)

	created := sendAndAwait(t, conn1, "CreateGame", "c1", createGameArgs{Mode: "tower", MaxPlayers: 2, MaxRounds: 5})
	if created.Type != "GameCreated" {
		t.Fatalf("got type %q, want GameCreated (error: %+v)", created.Type, created.Error)
	}
	var gameCreated gameCreatedResp
	mustDecodePayload(t, created.Payload, &gameCreated)

	// conn2 authenticated as p2, but claims to join as p1.
	join := sendAndAwait(t, conn2, "JoinGame", "j1", joinGameArgs{GameID: gameCreated.GameID, PlayerID: "p1"})
	if join.Type != "Error" || join.Error == nil || join.Error.Code != "Unauthorized" {
		t.Fatalf("got %+v, want Unauthorized error", join)
	}

	join1 := sendAndAwait(t, conn1, "JoinGame", "j2", joinGameArgs{GameID: gameCreated.GameID, PlayerID: "p1"})
	if join1.Type != "JoinGameAck" {
		t.Fatalf("got type %q, want JoinGameAck (error: %+v)", join1.Type, join1.Error)
	}
	join2 := sendAndAwait(t, conn2, "JoinGame", "j3", joinGameArgs{GameID: gameCreated.GameID, PlayerID: "p2"})
	if join2.Type != "JoinGameAck" {
		t.Fatalf("got type %q, want JoinGameAck (error: %+v)", join2.Type, join2.Error)
	}

	started := sendAndAwait(t, conn1, "StartGame", "s1", startGameArgs{GameID: gameCreated.GameID})
	if started.Type != "RoundStart" {
		t.Fatalf("got type %q, want RoundStart (error: %+v)", started.Type, started.Error)
	}

	// conn2 authenticated as p2, but claims to click as p1.
	clicked := sendAndAwait(t, conn2, "ClickSymbol", "k1", clickSymbolArgs{GameID: gameCreated.GameID, PlayerID: "p1", SymbolID: 0})
	if clicked.Type != "Error" || clicked.Error == nil || clicked.Error.Code != "Unauthorized" {
		t.Fatalf("got %+v, want Unauthorized error", clicked)
	}
}

func mustDecodePayload(t *testing.T, payload any, out any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}
