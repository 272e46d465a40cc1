package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/rowbench/pkg/procedure"
)

const defaultClientTimeout = 30 * time.Second

// ClientConfig configures a Client
type ClientConfig struct {
	Servers []string // host:port or full URLs; calls rotate across them
	APIKey  string
	Timeout time.Duration
}

// Client is a procedure.Session backed by one or more rowbench servers
type Client struct {
	bases  []string
	apiKey string
	http   *http.Client
	next   atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

var _ procedure.Session = (*Client)(nil)

// NewClient creates a client for the given servers
func NewClient(config ClientConfig) (*Client, error) {
	if len(config.Servers) == 0 {
		return nil, fmt.Errorf("at least one server is required")
	}
	bases := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		base, err := normalizeServer(s)
		if err != nil {
			return nil, err
		}
		bases = append(bases, base)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		bases:  bases,
		apiKey: config.APIKey,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

func normalizeServer(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty server address")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", s, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", s)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Call runs a single-partition procedure on the next server in rotation
func (c *Client) Call(ctx context.Context, name string, args ...interface{}) (*procedure.Response, error) {
	var out callResponse
	if err := c.post(ctx, "/api/v1/procedures/"+url.PathEscape(name), args, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("call %s: %s", name, out.Error)
	}
	if out.Data == nil {
		return nil, fmt.Errorf("call %s: empty response", name)
	}
	return out.Data, nil
}

// CallAllPartitions runs a partitioned procedure on every partition of the next server
func (c *Client) CallAllPartitions(ctx context.Context, name string, args ...interface{}) ([]procedure.PartitionResponse, error) {
	var out scatterResponse
	if err := c.post(ctx, "/api/v1/procedures/"+url.PathEscape(name)+"/all-partitions", args, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("call %s on all partitions: %s", name, out.Error)
	}
	return out.Data, nil
}

// Close marks the client closed and releases idle connections
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path string, args []interface{}, out interface{}) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return procedure.ErrSessionClosed
	}

	params, err := procedure.ToParams(args...)
	if err != nil {
		return err
	}
	body, err := json.Marshal(CallRequest{Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	base := c.bases[(c.next.Add(1)-1)%uint64(len(c.bases))]
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, ksuid.New().String())
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", base, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unexpected response from %s (HTTP %d): %w", base, resp.StatusCode, err)
	}
	return nil
}
