package tournament

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestReportDeliversResult(t *testing.T) {
	var received Result
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"reference": "ack-1"})
	}))
	defer server.Close()

	bridge, err := NewBridge(server.URL, server.Client(), nil)
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	result := Result{TournamentID: 7, MatchID: 21, Players: []int64{1, 2}, Ranks: []int{1, 2}}
	if err := bridge.Report(context.Background(), result); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if received.MatchID != 21 || len(received.Players) != 2 || received.Ranks[0] != 1 {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestReportRetriesOnceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bridge, _ := NewBridge(server.URL, server.Client(), nil)
	result := Result{TournamentID: 1, MatchID: 2, Players: []int64{1, 2}, Ranks: []int{2, 1}}
	if err := bridge.Report(context.Background(), result); err != nil {
		t.Fatalf("Report after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls.Load())
	}
}

func TestReportGivesUpAfterSecondFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	bridge, _ := NewBridge(server.URL, server.Client(), nil)
	result := Result{Players: []int64{1, 2}, Ranks: []int{1, 2}}
	if err := bridge.Report(context.Background(), result); err == nil {
		t.Fatalf("expected delivery failure to surface")
	}
	//1.- Best effort means one retry, never an unbounded loop.
	if calls.Load() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls.Load())
	}
}

func TestReportValidatesAlignment(t *testing.T) {
	bridge, _ := NewBridge("http://localhost:0", nil, nil)
	result := Result{Players: []int64{1, 2}, Ranks: []int{1}}
	if err := bridge.Report(context.Background(), result); err == nil {
		t.Fatalf("expected misaligned ranks to fail fast")
	}
}

func TestNewBridgeRequiresEndpoint(t *testing.T) {
	if _, err := NewBridge("", nil, nil); err == nil {
		t.Fatalf("expected empty endpoint to fail")
	}
}
