package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inferload/pkg/circuitbreaker"
)

// Client posts encoded request batches to a single inference listener and
// returns the raw response bytes. Each worker owns its own Client so the
// underlying connection pool is never shared across workers.
type Client struct {
	address string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func New(address string) *Client {
	return &Client{
		address: address,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithBreaker wraps sends in a circuit breaker: once the target has
// failed breaker-threshold times in a row, sends fast-fail for the cooldown
// instead of waiting out the full connection timeout each iteration.
func NewWithBreaker(address string, breaker *circuitbreaker.CircuitBreaker) *Client {
	c := New(address)
	c.breaker = breaker
	return c
}

func (c *Client) Address() string {
	return c.address
}

// Send issues one blocking POST. Any failure, including a non-200 status or
// an open breaker, comes back as a *SendError so callers can count it as a
// transport failure and move on.
func (c *Client) Send(body []byte) ([]byte, error) {
	if c.breaker == nil {
		return c.post(body)
	}
	var out []byte
	err := c.breaker.Call(func() error {
		var inner error
		out, inner = c.post(body)
		return inner
	})
	if err == circuitbreaker.ErrCircuitOpen {
		return nil, &SendError{Message: "circuit open", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(body []byte) ([]byte, error) {
	resp, err := c.client.Post(c.address, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, &SendError{Message: "post failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SendError{Message: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SendError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return data, nil
}

type SendError struct {
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return "transport: " + e.Message + ": " + e.Err.Error()
	}
	return "transport: " + e.Message
}

func (e *SendError) Unwrap() error {
	return e.Err
}
