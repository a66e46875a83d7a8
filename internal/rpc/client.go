package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"code.dogecoin.org/gossip/dnet"

	"code.dogecoin.org/kadchain/internal/msg"
	"code.dogecoin.org/kadchain/internal/spec"
)

// ErrUnreachable means connect or send failed; callers move on.
var ErrUnreachable = errors.New("peer unreachable")

// ErrNoResponse means the peer closed the connection without answering,
// which is how handlers abort.
var ErrNoResponse = errors.New("no response")

const DialTimeout = 5 * time.Second
const ExchangeTimeout = 30 * time.Second

// Local is the calling node: it signs requests and pins peer keys.
type Local interface {
	msg.Signer
	ID() spec.NodeID
	CheckKey(id spec.NodeID, pub []byte) error
}

// Client issues one request per connection. It holds no handler state,
// so handlers may call out while serving.
type Client struct {
	local           Local
	DialTimeout     time.Duration
	ExchangeTimeout time.Duration
}

func New(local Local) *Client {
	return &Client{local: local, DialTimeout: DialTimeout, ExchangeTimeout: ExchangeTimeout}
}

// Ping opens and closes a connection.
func (c *Client) Ping(ctx context.Context, to dnet.Address) bool {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", to.String())
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// exchange sends one frame and reads the reply payload.
func (c *Client) exchange(ctx context.Context, to dnet.Address, tag dnet.Tag4CC, payload []byte) ([]byte, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", to.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer conn.Close()
	deadline := time.Now().Add(c.ExchangeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)
	// unblock reads when ctx is cancelled
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := msg.WriteMessage(conn, tag, payload); err != nil {
		return nil, fmt.Errorf("%w: send %s: %v", ErrUnreachable, tag.String(), err)
	}
	rtag, reply, err := msg.ReadMessage(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s from %v: %v", ErrNoResponse, tag.String(), to, err)
	}
	if rtag == msg.TagReject {
		rej, err := msg.DecodeReject(reply)
		if err != nil {
			return nil, err
		}
		return nil, rej
	}
	if rtag != tag {
		return nil, fmt.Errorf("expected %s reply, got %s", tag.String(), rtag.String())
	}
	return reply, nil
}

// authenticate checks a reply against the pinned key of its source
// (if known) and its signature.
func (c *Client) authenticate(source spec.NodeID, content string, env msg.Envelope) error {
	if source != "" {
		if err := c.local.CheckKey(source, env.PublicKey); err != nil {
			return err
		}
	}
	return env.Verify(content)
}

func (c *Client) seal(content string) (msg.Envelope, error) {
	return msg.Seal(c.local, content)
}
