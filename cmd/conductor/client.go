package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/server"
)

type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Runs can take minutes; the server enforces its own time limit.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// apiStatusError is a non-2xx reply from the server.
type apiStatusError struct {
	Status int
	Detail string
}

func (e *apiStatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeStatusError(resp)
	}
	return resp, nil
}

func decodeStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == "" {
		body.Detail = strings.TrimSpace(string(data))
	}
	return &apiStatusError{Status: resp.StatusCode, Detail: body.Detail}
}

// Run sends one message and waits for the final response.
func (c *apiClient) Run(ctx context.Context, req server.RunRequest) (*agent.Response, error) {
	resp, err := c.post(ctx, "/agent/run", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out agent.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Stream sends one message and calls fn for each progress event. It returns
// the response carried by the done event.
func (c *apiClient) Stream(ctx context.Context, req server.RunRequest, fn func(agent.Event)) (*agent.Response, error) {
	resp, err := c.post(ctx, "/agent/run/stream", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev agent.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		if fn != nil {
			fn(ev)
		}
		if ev.Type == agent.EventDone {
			if ev.Response == nil {
				return nil, errors.New("done event without response")
			}
			return ev.Response, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended without a done event")
}
