package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/bitfsorg/ledgerfs-go/logging"
)

// maxResponseSize bounds a single RPC response body.
const maxResponseSize = 32 << 20

// Bounds of the wait between retries of an unreachable node.
const (
	retryMin = 200 * time.Millisecond
	retryMax = 5 * time.Second
)

// RPCClient is a JSON-RPC 1.0 client for communicating with BSV nodes.
// It handles request serialization, authentication, and response parsing.
// All high-level blockchain methods are built on top of the Call method.
type RPCClient struct {
	url     string
	user    string
	pass    string
	rescan  bool
	retries int
	client  *http.Client
	log     log.FieldLogger
	nextID  atomic.Int64
}

// rpcRequest represents a JSON-RPC 1.0 request payload.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse represents a JSON-RPC 1.0 response payload.
type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Option configures an RPCClient.
type Option func(*RPCClient)

// WithLogger sets the logger used for retries and failed calls.
func WithLogger(l log.FieldLogger) Option {
	return func(c *RPCClient) { c.log = logging.OrDiscard(l) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RPCClient) { c.client = hc }
}

// NewRPCClient creates a JSON-RPC client for the node at cfg.URL. Basic Auth
// is sent when User is non-empty. Calls that fail to reach the node are
// retried cfg.Retries times with exponential backoff.
func NewRPCClient(cfg RPCConfig, opts ...Option) *RPCClient {
	c := &RPCClient{
		url:     cfg.URL,
		user:    cfg.User,
		pass:    cfg.Password,
		rescan:  cfg.Rescan,
		retries: cfg.Retries,
		log:     logging.Discard(),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes a JSON-RPC method on the BSV node. It serializes the request,
// sends it with optional Basic Auth, and deserializes the response into result.
//
// If params is nil, an empty params array is sent. If result is nil, the
// response result is discarded (useful for fire-and-forget calls like sendrawtransaction).
//
// Call returns ErrConnectionFailed if the HTTP request fails, and ErrInvalidResponse
// if the response cannot be decoded. RPC-level errors are returned as *RPCError;
// -5 "No such mempool or blockchain transaction" matches ErrTxNotFound.
//
// Only ErrConnectionFailed is retried. Rebroadcasting a transaction the node
// already accepted yields ErrAlreadyKnown, so retries are safe for every method.
func (c *RPCClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	b := &backoff.Backoff{Min: retryMin, Max: retryMax, Factor: 2, Jitter: true}
	for attempt := 0; ; attempt++ {
		err := c.call(ctx, method, params, result)
		if err == nil || !errors.Is(err, ErrConnectionFailed) || attempt >= c.retries || ctx.Err() != nil {
			if err != nil {
				c.log.WithError(err).WithFields(log.Fields{"method": method, "attempts": attempt + 1}).Debug("rpc call failed")
			}
			return err
		}
		d := b.Duration()
		c.log.WithError(err).WithFields(log.Fields{"method": method, "attempt": attempt + 1, "wait": d}).Warn("node unreachable, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	reqBody := rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("network: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("network: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d", ErrAuthFailed, resp.StatusCode)
	}

	// Nodes answer RPC errors with HTTP 500 and a JSON body, so only give up
	// on the status code when the body is not a JSON-RPC response.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrConnectionFailed, err)
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: HTTP %d: %s", ErrConnectionFailed, resp.StatusCode, truncate(respBody, 256))
		}
		return fmt.Errorf("%w: decode response: %w", ErrInvalidResponse, err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if rpcResp.ID != reqBody.ID {
		return fmt.Errorf("%w: response ID mismatch: expected %d, got %d",
			ErrInvalidResponse, reqBody.ID, rpcResp.ID)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%w: unmarshal result: %w", ErrInvalidResponse, err)
		}
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
