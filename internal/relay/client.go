// Package relay implements the upload variant: keypoints are extracted
// locally and classified by a remote model service.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client posts keypoint vectors to a remote model endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for url. A zero timeout means 30 seconds.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	PredictedSign json.RawMessage `json:"predicted_sign"`
}

// Predict sends {"features": [...]} and returns the predicted_sign field,
// which the remote service may encode as a string or a number. A response
// without the field yields "Unknown".
func (c *Client) Predict(ctx context.Context, features []float64) (string, error) {
	if c.url == "" {
		return "", errors.New("remote model URL not configured")
	}

	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model error: status %d, response: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}

	var pr predictResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return signString(pr.PredictedSign), nil
}

func signString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "Unknown"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
