// Package transport delivers encoded commands to a listener with
// fire-and-forget semantics: connect, write, close. Responses are never read.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a send when the caller gives no timeout.
const DefaultTimeout = 3 * time.Second

// ErrPartialWrite is returned when the connection accepted fewer bytes than
// the payload holds.
var ErrPartialWrite = errors.New("partial write")

// Policy decides what Send does with a delivery failure.
type Policy string

const (
	// PolicyPropagate returns delivery failures to the caller.
	PolicyPropagate Policy = "propagate"
	// PolicySwallow logs delivery failures and returns nil.
	PolicySwallow Policy = "swallow"
)

// ParsePolicy converts a name to a Policy. An empty name selects PolicyPropagate.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyPropagate:
		return PolicyPropagate, nil
	case PolicySwallow:
		return PolicySwallow, nil
	default:
		return "", fmt.Errorf("unknown policy %q (valid: propagate, swallow)", name)
	}
}

// SendError describes a failed delivery.
type SendError struct {
	Addr Address
	Op   string // dial, write
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Config holds client defaults. Zero values select DefaultTimeout and
// PolicyPropagate.
type Config struct {
	Timeout time.Duration
	Policy  Policy
	Logger  *zap.Logger
}

// Client sends payloads. It holds no connection state between sends and is
// safe for concurrent use.
type Client struct {
	timeout time.Duration
	policy  Policy
	logger  *zap.Logger
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewClient creates a client with the given defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyPropagate
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	var d net.Dialer
	return &Client{
		timeout: cfg.Timeout,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		dial:    d.DialContext,
	}
}

// Options is the effective configuration of one send.
type Options struct {
	Timeout time.Duration
	Policy  Policy
}

// Option overrides a client default for one send.
type Option func(*Options)

// ApplyOptions returns defaults with opts applied in order.
func ApplyOptions(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// WithTimeout bounds the send. Non-positive values keep the client default.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithPolicy selects the failure policy for the send.
func WithPolicy(p Policy) Option {
	return func(o *Options) {
		if p != "" {
			o.Policy = p
		}
	}
}

// Send connects to addr, writes payload, and closes the connection.
// Under PolicySwallow every failure is logged and nil is returned.
func (c *Client) Send(ctx context.Context, addr Address, payload []byte, opts ...Option) error {
	o := ApplyOptions(Options{Timeout: c.timeout, Policy: c.policy}, opts...)

	err := addr.Validate()
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, o.Timeout)
		err = c.send(sendCtx, addr, payload)
		cancel()
	} else {
		err = &SendError{Addr: addr, Op: "dial", Err: err}
	}

	if err == nil {
		c.logger.Debug("command sent",
			zap.Stringer("addr", addr),
			zap.Int("bytes", len(payload)))
		return nil
	}

	if o.Policy == PolicySwallow {
		c.logger.Warn("command not delivered",
			zap.Stringer("addr", addr),
			zap.Error(err))
		return nil
	}
	return err
}

func (c *Client) send(ctx context.Context, addr Address, payload []byte) error {
	if addr.network() == NetworkWS {
		return c.sendWebSocket(ctx, addr, payload)
	}

	conn, err := c.dialStream(ctx, addr)
	if err != nil {
		return &SendError{Addr: addr, Op: "dial", Err: err}
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	n, err := conn.Write(payload)
	if err != nil {
		return &SendError{Addr: addr, Op: "write", Err: err}
	}
	if n < len(payload) {
		return &SendError{
			Addr: addr,
			Op:   "write",
			Err:  fmt.Errorf("%w: wrote %d of %d bytes", ErrPartialWrite, n, len(payload)),
		}
	}
	return nil
}

func (c *Client) dialStream(ctx context.Context, addr Address) (net.Conn, error) {
	if addr.network() == NetworkUnix {
		return c.dial(ctx, "unix", addr.Path)
	}
	return c.dial(ctx, "tcp", addr.String())
}

// sendWebSocket delivers the payload as a single text message.
func (c *Client) sendWebSocket(ctx context.Context, addr Address, payload []byte) error {
	conn, _, err := websocket.Dial(ctx, addr.URL, nil)
	if err != nil {
		return &SendError{Addr: addr, Op: "dial", Err: err}
	}

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		_ = conn.CloseNow()
		return &SendError{Addr: addr, Op: "write", Err: err}
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

// Probe checks that addr accepts connections. Nothing is written.
func (c *Client) Probe(ctx context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if addr.network() == NetworkWS {
		conn, _, err := websocket.Dial(ctx, addr.URL, nil)
		if err != nil {
			return &SendError{Addr: addr, Op: "dial", Err: err}
		}
		_ = conn.CloseNow()
		return nil
	}

	conn, err := c.dialStream(ctx, addr)
	if err != nil {
		return &SendError{Addr: addr, Op: "dial", Err: err}
	}
	return conn.Close()
}
