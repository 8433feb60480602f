// Package collaborators provides the HTTP client used to ask external systems
// whether a penalty condition holds for a document.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
)

// DefaultTimeout caps a single collaborator call. Callers usually pass a
// shorter per-rule deadline through the context.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of an error response is kept.
const maxErrorBody = 512

// CheckRequest is the payload sent to a condition collaborator.
type CheckRequest struct {
	DocumentID     int64           `json:"document_id"`
	DocumentTitle  string          `json:"document_title"`
	DocumentStatus string          `json:"document_status"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	RuleID         int64           `json:"rule_id"`
	RuleName       string          `json:"rule_name"`
	ConditionType  string          `json:"condition_type"`
	Params         json.RawMessage `json:"params"`
}

// CheckResponse is the collaborator verdict.
type CheckResponse struct {
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason"`
}

// StatusError is returned when a collaborator answers with a non-2xx status.
// 5xx and 429 responses are transient.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collaborator returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable satisfies retry.RetryableError.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Client calls condition collaborators over HTTP JSON.
type Client struct {
	httpClient *http.Client
	token      string
	logger     *zap.Logger
}

// NewClient creates a collaborator client. An empty token sends no
// Authorization header.
func NewClient(token string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		token:  token,
		logger: logger.Named("collaborators"),
	}
}

// Check posts req to endpoint and decodes the verdict.
func (c *Client) Check(ctx context.Context, endpoint string, req *CheckRequest) (*CheckResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("Checking condition",
		zap.String("url", logging.SanitizeURL(endpoint)),
		zap.String("condition_type", req.ConditionType),
		zap.Int64("document_id", req.DocumentID),
		zap.Int64("rule_id", req.RuleID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call collaborator: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Body:       logging.TruncateString(string(body), maxErrorBody),
		}
		c.logger.Warn("Collaborator returned error",
			zap.String("url", logging.SanitizeURL(endpoint)),
			zap.Int("status", resp.StatusCode),
			zap.Bool("retryable", statusErr.IsRetryable()))
		return nil, statusErr
	}

	var result CheckResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}
