package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Abort marker variables recognized by the external CI pipeline definition
const (
	varAbortPipeline = "ABORT_PIPELINE"
	varAbortRunID    = "ABORT_PIPELINE_ID"
)

// TriggerRequest carries everything needed for one outbound trigger call
type TriggerRequest struct {
	BaseURL   string
	ProjectID int
	Token     string
	Ref       string
	Variables map[string]string
}

// Client issues trigger and abort calls against the external CI system
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type triggerResponse struct {
	ID int `json:"id"`
}

// Trigger starts a pipeline on the external CI project and returns the
// external run id. Any non-success response is an error.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (int, error) {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%d/trigger/pipeline",
		strings.TrimRight(req.BaseURL, "/"), req.ProjectID)

	form := url.Values{}
	form.Set("token", req.Token)
	form.Set("ref", req.Ref)
	for key, value := range req.Variables {
		form.Set("variables["+key+"]", value)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("failed to build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("trigger call failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("trigger call returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed triggerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse trigger response: %w", err)
	}
	return parsed.ID, nil
}

// Abort signals the external CI project to abort a run. Same endpoint as
// Trigger, distinguished by the abort marker variables.
func (c *Client) Abort(ctx context.Context, req TriggerRequest, runID int) error {
	abortReq := req
	abortReq.Variables = map[string]string{
		varAbortPipeline: "true",
		varAbortRunID:    strconv.Itoa(runID),
	}
	for key, value := range req.Variables {
		if _, reserved := abortReq.Variables[key]; !reserved {
			abortReq.Variables[key] = value
		}
	}

	if _, err := c.Trigger(ctx, abortReq); err != nil {
		return fmt.Errorf("abort call failed: %w", err)
	}
	return nil
}
