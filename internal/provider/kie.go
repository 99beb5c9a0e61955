package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// KieClient speaks the task-based generation API wire protocol:
// POST createTask {model, input} -> {code, data:{taskId}}, then
// GET recordInfo?taskId= -> {code, data:{state, resultJson, failMsg}}.
type KieClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

var _ Provider = (*KieClient)(nil)

func NewKieClient(baseURL, apiKey string, httpc *http.Client) *KieClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &KieClient{baseURL: baseURL, apiKey: apiKey, httpc: httpc}
}

type kieEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type kieCreateData struct {
	TaskID string `json:"taskId"`
}

type kieStatusData struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailMsg    string `json:"failMsg"`
}

type kieResult struct {
	ResultURLs []string `json:"resultUrls"`
}

type kieTaskInput struct {
	Prompt      string `json:"prompt"`
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

func (c *KieClient) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": req.Model,
		"input": kieTaskInput{
			Prompt:      req.Prompt,
			ImageBase64: req.ImageBase64,
			ImageURL:    req.ImageURL,
			AspectRatio: req.AspectRatio,
		},
	})
	if err != nil {
		return "", err
	}

	env, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/jobs/createTask", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var data kieCreateData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
		return "", fmt.Errorf("%w: create response missing task id", ErrUnavailable)
	}
	return data.TaskID, nil
}

func (c *KieClient) PollForCompletion(ctx context.Context, taskID string, timeout, interval time.Duration) (*TaskResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		status, err := c.taskStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch TaskState(status.State) {
		case StateCreated, StateRunning:
			// keep polling
		case StateSuccess:
			return parseResult(taskID, status.ResultJSON)
		case StateFail:
			return nil, &FailedError{Message: status.FailMsg}
		default:
			return nil, fmt.Errorf("%w: unknown task state %q", ErrUnavailable, status.State)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: task %s still %s after %s", ErrTimeout, taskID, status.State, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *KieClient) taskStatus(ctx context.Context, taskID string) (*kieStatusData, error) {
	u := c.baseURL + "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)
	env, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var data kieStatusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: unparsable status body", ErrUnavailable)
	}
	return &data, nil
}

func (c *KieClient) do(ctx context.Context, method, url string, body io.Reader) (*kieEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var env kieEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: unparsable body", ErrUnavailable)
	}
	if env.Code != 200 {
		return nil, fmt.Errorf("%w: remote code %d", ErrUnavailable, env.Code)
	}
	return &env, nil
}

func parseResult(taskID, resultJSON string) (*TaskResult, error) {
	var res kieResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil || len(res.ResultURLs) == 0 {
		return nil, fmt.Errorf("%w: success state with no result urls", ErrUnavailable)
	}
	return &TaskResult{TaskID: taskID, ResultURLs: res.ResultURLs}, nil
}
