// Package toolclient invokes tools on remote tool servers with a JSON-RPC tools/call request.
package toolclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultTimeout applies to invocations that do not carry their own timeout.
const DefaultTimeout = 30 * time.Second

const (
	jsonRPCVersion = "2.0"
	methodToolCall = "tools/call"
	acceptHeader   = "application/json, text/event-stream"
	maxSSELineSize = 4 << 20
)

// Invocation is one remote tool call.
type Invocation struct {
	ServerURL string
	Tool      string
	Params    map[string]any
	AuthToken string
	Timeout   time.Duration
}

// Invoker is implemented by Client; executors depend on it.
type Invoker interface {
	Invoke(ctx context.Context, invocation Invocation) (any, error)
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
	ID      int64         `json:"id"`
}

type requestParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Client sends tool invocations. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
	lastID     atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for call tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// nextID returns a wall-clock derived id that is strictly greater than every id
// this client returned before.
func (c *Client) nextID() int64 {
	for {
		last := c.lastID.Load()

		next := c.now().UnixMilli()
		if next <= last {
			next = last + 1
		}

		if c.lastID.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Invoke performs one blocking tools/call round trip. It never retries.
func (c *Client) Invoke(ctx context.Context, invocation Invocation) (any, error) {
	timeout := invocation.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	arguments := invocation.Params
	if arguments == nil {
		arguments = map[string]any{}
	}

	id := c.nextID()

	body, err := json.Marshal(request{
		JSONRPC: jsonRPCVersion,
		Method:  methodToolCall,
		Params:  requestParams{Name: invocation.Tool, Arguments: arguments},
		ID:      id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tools/call request for %s: %w", invocation.Tool, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, invocation.ServerURL, bytes.NewReader(body))
	if err != nil {
		return nil, invocationError(invocation, 0, "", ErrUpstream, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)

	if invocation.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+invocation.AuthToken)
	}

	logger := c.logger.With("tool", invocation.Tool, "server_url", invocation.ServerURL, "request_id", id)
	logger.DebugContext(ctx, "invoking tool")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WarnContext(ctx, "tool invocation failed", "error", err)

		return nil, invocationError(invocation, 0, "", ErrUpstream, err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, invocationError(invocation, resp.StatusCode, "", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WarnContext(ctx, "tool server returned an error status", "status", resp.StatusCode)

		return nil, invocationError(invocation, resp.StatusCode, string(respBody), classify(resp.StatusCode), nil)
	}

	return decodeResult(resp.Header.Get("Content-Type"), respBody), nil
}

func invocationError(invocation Invocation, status int, body string, sentinel, cause error) *Error {
	return &Error{
		Tool:       invocation.Tool,
		ServerURL:  invocation.ServerURL,
		StatusCode: status,
		Body:       body,
		Err:        sentinel,
		Cause:      cause,
	}
}

// decodeResult turns a 2xx body into the invocation result: the `result` member of a
// JSON object when present, the decoded body otherwise.
func decodeResult(contentType string, body []byte) any {
	payload := body
	if strings.HasPrefix(contentType, "text/event-stream") || looksLikeEventStream(body) {
		if data, ok := firstEventData(body); ok {
			payload = data
		}
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return string(payload)
	}

	if object, ok := decoded.(map[string]any); ok {
		if result, ok := object["result"]; ok {
			return result
		}
	}

	return decoded
}

func looksLikeEventStream(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \r\n")

	return bytes.HasPrefix(trimmed, []byte("data:")) || bytes.HasPrefix(trimmed, []byte("event:"))
}

// firstEventData returns the data of the first event in an SSE body.
// Multi-line data fields are joined with a newline.
func firstEventData(body []byte) ([]byte, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	var lines []string

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if len(lines) > 0 {
				break
			}

			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			lines = append(lines, strings.TrimPrefix(data, " "))
		}
	}

	if len(lines) == 0 {
		return nil, false
	}

	return []byte(strings.Join(lines, "\n")), true
}
