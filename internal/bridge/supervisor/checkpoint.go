package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Checkpointer is notified when a turn ends with a non-empty modified-file
// set (spec §4.3 "Write-tracking"). The default implementation posts to an
// optional downstream host URL (spec §6 "Configuration"); no HTTP client
// library appears anywhere in the retrieval pack for this one-shot POST, so
// net/http is used directly rather than wiring in a dependency for it (see
// DESIGN.md).
type Checkpointer interface {
	Notify(ctx context.Context, turnID int64, sessionID string, files []string) error
}

// HTTPCheckpointer posts a checkpoint notification to HostURL.
type HTTPCheckpointer struct {
	HostURL      string
	SessionID    string
	SharedSecret string
	Client       *http.Client
}

type checkpointPayload struct {
	TurnID        int64    `json:"turnId"`
	SessionID     string   `json:"sessionId"`
	ModifiedFiles []string `json:"modifiedFiles"`
}

// Notify implements Checkpointer.
func (h *HTTPCheckpointer) Notify(ctx context.Context, turnID int64, sessionID string, files []string) error {
	if h.HostURL == "" {
		return nil
	}
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	body, err := json.Marshal(checkpointPayload{TurnID: turnID, SessionID: sessionID, ModifiedFiles: files})
	if err != nil {
		return fmt.Errorf("checkpoint: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.HostURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("checkpoint: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.SharedSecret != "" {
		req.Header.Set("Authorization", "Bearer "+h.SharedSecret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("checkpoint: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("checkpoint: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NoopCheckpointer discards notifications; used when no downstream host is
// configured.
type NoopCheckpointer struct{}

// Notify implements Checkpointer.
func (NoopCheckpointer) Notify(context.Context, int64, string, []string) error { return nil }
