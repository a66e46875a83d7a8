package netsvc

import (
	"context"
	"fmt"
	"net"
)

// Listen binds a TCP listener with address and port reuse, so several
// nodes can share a host and a restarted node can rebind its port.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		KeepAlive: -1, // one request per exchange
		Control:   reuseControl,
	}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on `%v`: %w", addr, err)
	}
	return listener, nil
}
