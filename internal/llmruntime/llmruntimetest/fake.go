// Package llmruntimetest provides a scriptable llmruntime.Client double,
// the Go analogue of the AsyncMock(spec=ClaudeSDKClient) fixtures in
// backend/tests/unit/test_client_pool.py, for exercising internal/pool
// and internal/tape without a live runtime.
package llmruntimetest

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/goclaw-tape/internal/llmruntime"
)

// Client is a fake llmruntime.Client. Script a Query's response by
// pushing events onto Queued before calling Query, or by sending directly
// on the channel returned by Events.
type Client struct {
	opts llmruntime.Options

	mu              sync.Mutex
	connected       bool
	connectErr      error
	queryErr        error
	connectCalls    int
	disconnectCalls int
	interruptCalls  int
	queries         []string
	closeAfterQuery bool

	events chan llmruntime.Event

	// Queued events are pushed onto the event channel, in order, the
	// next time Query is called.
	Queued []llmruntime.Event
}

// New creates a fake client bound to opts with a buffered event channel.
func New(opts llmruntime.Options) *Client {
	return &Client{
		opts:   opts,
		events: make(chan llmruntime.Event, 64),
	}
}

// WithConnectErr makes Connect fail with err.
func (c *Client) WithConnectErr(err error) *Client {
	c.connectErr = err
	return c
}

// WithQueryErr makes Query fail with err.
func (c *Client) WithQueryErr(err error) *Client {
	c.queryErr = err
	return c
}

// WithCloseAfterQuery makes Query close the event channel immediately
// after draining Queued, simulating a runtime that ends the session
// right after the one turn it was scripted for.
func (c *Client) WithCloseAfterQuery() *Client {
	c.closeAfterQuery = true
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCalls++
	c.connected = false
	return nil
}

func (c *Client) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interruptCalls++
	return nil
}

func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Query(ctx context.Context, prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, prompt)
	if c.queryErr != nil {
		return c.queryErr
	}
	for _, evt := range c.Queued {
		c.events <- evt
	}
	c.Queued = nil
	if c.closeAfterQuery {
		close(c.events)
	}
	return nil
}

func (c *Client) Events() <-chan llmruntime.Event { return c.events }

func (c *Client) Options() llmruntime.Options { return c.opts }

// Push sends an event directly, for tests that want to drip-feed events
// asynchronously rather than pre-queue them.
func (c *Client) Push(evt llmruntime.Event) { c.events <- evt }

// Close closes the event channel, simulating the runtime ending the session.
func (c *Client) Close() { close(c.events) }

// ConnectCalls reports how many times Connect was invoked.
func (c *Client) ConnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

// DisconnectCalls reports how many times Disconnect was invoked.
func (c *Client) DisconnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectCalls
}

// InterruptCalls reports how many times Interrupt was invoked.
func (c *Client) InterruptCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interruptCalls
}

// Queries returns the prompts passed to Query, in call order.
func (c *Client) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}
