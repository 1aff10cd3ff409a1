// Package activation drives workflow activation for agentic sessions:
// selection handling, queue-when-not-ready, and the bounded retry loop
// that applies a workflow to a running session.
package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/logger"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

// Error is a structured activation failure. Retryable failures are
// retried by the orchestrator up to its attempt budget; everything
// else is terminal.
type Error struct {
	Message    string
	Retryable  bool
	StatusCode int
}

func (e *Error) Error() string {
	return e.Message
}

// Client performs the remote call that instructs a session to apply a
// workflow.
type Client interface {
	ApplyWorkflow(ctx context.Context, ref v1.SessionRef, sel v1.WorkflowSelection) error
}

// HTTPClient applies workflows over the session workflow endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the given endpoint base URL.
func NewHTTPClient(baseURL string, httpClient *http.Client, log *logger.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     log.WithFields(zap.String("component", "activation-client")),
	}
}

// ApplyWorkflow POSTs the workflow selection to the session's workflow
// endpoint. Any 2xx response is success. Non-2xx responses are decoded
// into an *Error carrying the server's message and retryable flag;
// transport and decode failures are terminal.
func (c *HTTPClient) ApplyWorkflow(ctx context.Context, ref v1.SessionRef, sel v1.WorkflowSelection) error {
	body, err := json.Marshal(sel)
	if err != nil {
		return &Error{Message: fmt.Sprintf("failed to encode workflow selection: %v", err)}
	}

	url := fmt.Sprintf("%s/api/v1/projects/%s/sessions/%s/workflow", c.baseURL, ref.Project, ref.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Message: fmt.Sprintf("failed to build activation request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Message: fmt.Sprintf("activation request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var failure struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if readErr == nil {
		_ = json.Unmarshal(raw, &failure)
	}
	if failure.Error == "" {
		failure.Error = fmt.Sprintf("workflow activation failed with status %d", resp.StatusCode)
	}

	c.logger.Warn("workflow activation call failed",
		zap.String("session", ref.String()),
		zap.Int("status", resp.StatusCode),
		zap.Bool("retryable", failure.Retryable))

	return &Error{
		Message:    failure.Error,
		Retryable:  failure.Retryable,
		StatusCode: resp.StatusCode,
	}
}
