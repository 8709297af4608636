package llmruntime

import "context"

// Client is one connected runtime session. Implementations are opaque to
// the rest of this module: a subprocess-backed SDK, an HTTP/SSE API,
// whatever. The tape scheduler and Client Pool only ever see this
// interface.
type Client interface {
	// Connect establishes the session using the Options it was built
	// with. Implementations that resume a prior session do so here.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Safe to call on an already
	// disconnected client.
	Disconnect(ctx context.Context) error

	// Interrupt asks the runtime to stop generating the in-flight turn
	// as soon as it safely can. It does not close the session.
	Interrupt(ctx context.Context) error

	// IsReady reports whether the client is connected and able to accept
	// a Query call.
	IsReady() bool

	// Query submits a new user turn. Events produced in response are
	// delivered through the channel returned by Events; Query itself
	// only enqueues the turn and returns once the runtime has accepted
	// it.
	Query(ctx context.Context, prompt string) error

	// Events returns the channel of events for this session. The channel
	// is closed when the session ends (after Disconnect, or when the
	// runtime itself terminates it).
	Events() <-chan Event

	// Options returns the Options this client was constructed with, used
	// by the Client Pool to compare configurations across calls.
	Options() Options
}
