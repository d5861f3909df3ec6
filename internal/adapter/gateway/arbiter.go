package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/agent-telemetry/internal/domain"
)

const defaultTimeout = 10 * time.Second

// ArbiterGateway is the thin pass-through to the external task/arbiter
// service. This subsystem only calls these endpoints, it never implements
// them.
type ArbiterGateway struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a gateway for the given base URL. A zero timeout selects
// the default.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *ArbiterGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ArbiterGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "arbiter_gateway"),
	}
}

// EnsureRunning asks the arbiter to start if it is not already running.
func (g *ArbiterGateway) EnsureRunning(ctx context.Context) error {
	return g.post(ctx, "/control/start", nil, nil)
}

// RequestStop asks the arbiter to stop accepting new work.
func (g *ArbiterGateway) RequestStop(ctx context.Context) error {
	return g.post(ctx, "/control/stop", nil, nil)
}

// SubmitTask forwards a task payload and returns the assigned task id.
func (g *ArbiterGateway) SubmitTask(ctx context.Context, payload json.RawMessage) (domain.TaskSubmission, error) {
	var sub domain.TaskSubmission
	if err := g.post(ctx, "/tasks", payload, &sub); err != nil {
		return domain.TaskSubmission{}, err
	}
	return sub, nil
}

// ExecuteCommand forwards an operator command and reports whether the
// arbiter acknowledged it.
func (g *ArbiterGateway) ExecuteCommand(ctx context.Context, command string) (bool, error) {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return false, err
	}

	var resp struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := g.post(ctx, "/commands", body, &resp); err != nil {
		return false, err
	}
	return resp.Acknowledged, nil
}

// GetTask fetches a task snapshot. Unknown ids map to ErrTaskNotFound.
func (g *ArbiterGateway) GetTask(ctx context.Context, taskID string) (*domain.TaskSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arbiter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrTaskNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("arbiter returned status %d for task %s", resp.StatusCode, taskID)
	}

	var snapshot domain.TaskSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode task snapshot: %w", err)
	}
	return &snapshot, nil
}

func (g *ArbiterGateway) post(ctx context.Context, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("arbiter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("arbiter returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode arbiter response for %s: %w", path, err)
		}
	}
	return nil
}
