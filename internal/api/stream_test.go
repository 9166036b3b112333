package api_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func dialStream(t *testing.T, httpURL, userID string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/v1/users/" + userID + "/verify/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestVerifyStream(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	conn := dialStream(t, ts.URL, "alice")
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Two interim transcripts: the server answers each with live progress
	// and mutates nothing.
	type progress struct {
		Type     string `json:"type"`
		Detected int    `json:"detected"`
		Required int    `json:"required"`
	}

	steps := []struct {
		transcript   string
		wantDetected int
	}{
		{"subhanallah", 1},
		{"subhanallah subhanallah", 2},
	}
	for _, step := range steps {
		if err := wsjson.Write(ctx, conn, map[string]any{
			"transcript": step.transcript, "final": false,
		}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		var p progress
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if p.Type != "progress" || p.Detected != step.wantDetected || p.Required != 3 {
			t.Fatalf("progress = %+v, want %d/3", p, step.wantDetected)
		}
	}

	// The final transcript commits the attempt and closes the stream.
	if err := wsjson.Write(ctx, conn, map[string]any{
		"transcript": "subhanallah subhanallah subhanallah", "final": true,
	}); err != nil {
		t.Fatalf("Write final: %v", err)
	}

	var result struct {
		Type    string `json:"type"`
		Granted bool   `json:"granted"`
		Verdict struct {
			Outcome string `json:"outcome"`
		} `json:"verdict"`
		Status struct {
			UnlocksUsedToday int `json:"unlocks_used_today"`
		} `json:"status"`
	}
	if err := wsjson.Read(ctx, conn, &result); err != nil {
		t.Fatalf("Read result: %v", err)
	}
	if result.Type != "result" || result.Verdict.Outcome != "success" || !result.Granted {
		t.Errorf("result = %+v, want granted success", result)
	}
	if result.Status.UnlocksUsedToday != 1 {
		t.Errorf("UnlocksUsedToday = %d, want 1", result.Status.UnlocksUsedToday)
	}

	// Server closes with a normal closure after the result.
	var extra map[string]any
	err := wsjson.Read(ctx, conn, &extra)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("post-result read error = %v, want normal closure", err)
	}
}

func TestVerifyStream_ClientClose(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	conn := dialStream(t, ts.URL, "bob")

	if err := conn.Close(websocket.StatusNormalClosure, "done"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A closed stream must leave the ledger untouched.
	st, err := http.Get(ts.URL + "/v1/users/bob/gate")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Body.Close()
	if st.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", st.StatusCode)
	}
}
