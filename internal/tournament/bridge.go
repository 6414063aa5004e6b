package tournament

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calvinhon/ft-transcendence-sub004/internal/logging"
)

// Result carries a finished match outcome to the tournament service. Ranks are
// 1 for the winner and 2 for the loser, index-aligned with Players.
type Result struct {
	TournamentID int64   `json:"tournamentId"`
	MatchID      int64   `json:"matchId"`
	Players      []int64 `json:"players"`
	Ranks        []int   `json:"ranks"`
}

// Bridge reports tournament match results over HTTP. Reporting is best effort:
// a failed delivery is retried once and then logged and dropped so a dead
// tournament service can never wedge match teardown.
type Bridge struct {
	client   *http.Client
	endpoint string
	logger   *logging.Logger
}

// NewBridge wires an HTTP client to the tournament service endpoint.
func NewBridge(endpoint string, client *http.Client, logger *logging.Logger) (*Bridge, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint must not be empty")
	}
	//1.- Reuse the provided client when available so callers can inject transport tweaks.
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Bridge{endpoint: endpoint, client: client, logger: logger}, nil
}

// Report delivers one match result, retrying a single time on failure. The
// returned error is informational; callers treat delivery as fire-and-forget.
func (b *Bridge) Report(ctx context.Context, result Result) error {
	if b == nil {
		return errors.New("bridge is nil")
	}
	if len(result.Players) != len(result.Ranks) {
		return fmt.Errorf("players and ranks must align: %d vs %d", len(result.Players), len(result.Ranks))
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		//1.- Rebuild the request each attempt so the body reader starts fresh.
		ack, err := b.post(ctx, body)
		if err == nil {
			b.logger.Info("tournament result delivered",
				logging.Int64("tournament_id", result.TournamentID),
				logging.Int64("match_id", result.MatchID),
				logging.String("ack", ack),
				logging.Int("attempt", attempt+1))
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	b.logger.Warn("tournament result dropped",
		logging.Int64("tournament_id", result.TournamentID),
		logging.Int64("match_id", result.MatchID),
		logging.Error(lastErr))
	return lastErr
}

func (b *Bridge) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tournament service responded with status %s", resp.Status)
	}
	var decoded struct {
		Reference string `json:"reference"`
	}
	//1.- The acknowledgement reference is optional; an empty body still counts.
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", nil
	}
	return decoded.Reference, nil
}
