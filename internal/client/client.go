// Package client talks to a running paramem server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lazypower/paramem/internal/engine"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// Client talks to the paramem server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to PARA_URL
// and then to http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("PARA_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "encode %s body", path)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, r)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read response %s", path)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return errors.Newf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return errors.Newf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decode response %s", path)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

// Context fetches the hot-fact digest for session injection.
func (c *Client) Context(ctx context.Context) (string, error) {
	var resp struct {
		Context string `json:"context"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/context", nil, &resp); err != nil {
		return "", err
	}
	return resp.Context, nil
}

// Checkpoint asks the server to run a checkpoint in the background. With a
// transcript path the server reads that JSONL transcript instead of the
// workspace session.
func (c *Client) Checkpoint(ctx context.Context, reason, transcriptPath string) error {
	body := map[string]string{"reason": reason}
	if transcriptPath != "" {
		body["transcript_path"] = transcriptPath
	}
	return c.do(ctx, http.MethodPost, "/api/checkpoint", body, nil)
}

// Decay runs a decay cycle on the server and returns its stats.
func (c *Client) Decay(ctx context.Context, mode engine.Mode) (*engine.CycleStats, error) {
	var stats engine.CycleStats
	path := "/api/decay?" + url.Values{"mode": {string(mode)}}.Encode()
	if err := c.do(ctx, http.MethodPost, path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
