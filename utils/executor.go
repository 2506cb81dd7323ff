package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"terracrm/models"
	"terracrm/pipeline"
)

// HTTPAutomationExecutor invokes external automation functions by POSTing
// the execution context to the configured executor endpoint. It implements
// pipeline.Executor.
type HTTPAutomationExecutor struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPAutomationExecutor(baseURL string) *HTTPAutomationExecutor {
	return &HTTPAutomationExecutor{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *HTTPAutomationExecutor) Invoke(ctx context.Context, rule models.AutomationRule, execCtx pipeline.ExecutionContext) error {
	if e.BaseURL == "" {
		// No executor configured; rule invocation is a no-op.
		return nil
	}

	payload := map[string]any{
		"rule_id":  rule.ID,
		"function": rule.TargetFunction,
		"trigger":  rule.Trigger,
		"context":  execCtx,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/functions/%s", e.BaseURL, rule.TargetFunction)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("automation executor error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
