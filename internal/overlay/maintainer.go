package overlay

import (
	"context"
	"log"
	"time"

	"code.dogecoin.org/gossip/dnet"
	"code.dogecoin.org/governor"

	"code.dogecoin.org/kadchain/internal/node"
	"code.dogecoin.org/kadchain/internal/rpc"
)

// JoinRetry is the wait between join attempts.
const JoinRetry = 2 * time.Second

// Maintainer joins the overlay, then (on bootstraps) refreshes contacts
// every period.
type Maintainer struct {
	governor.ServiceCtx
	node       *node.Node
	client     *rpc.Client
	bootstraps []dnet.Address
	period     time.Duration
	joined     chan struct{}
	who        string
}

func NewMaintainer(n *node.Node, client *rpc.Client, bootstraps []dnet.Address, period time.Duration) *Maintainer {
	return &Maintainer{
		node:       n,
		client:     client,
		bootstraps: bootstraps,
		period:     period,
		joined:     make(chan struct{}),
		who:        "maintain " + string(n.ID()),
	}
}

// Joined is closed once the node has joined.
func (m *Maintainer) Joined() <-chan struct{} {
	return m.joined
}

// goroutine
func (m *Maintainer) Run() {
	m.Loop(m.Context)
}

func (m *Maintainer) Loop(ctx context.Context) {
	for {
		seeds, err := Join(ctx, m.node, m.client, m.bootstraps)
		if err == nil {
			log.Printf("[%s] joined with %d seeds", m.who, len(seeds))
			close(m.joined)
			break
		}
		log.Printf("[%s] join failed: %v", m.who, err)
		if !sleep(ctx, JoinRetry) {
			return
		}
	}
	if !m.node.Info().Bootstrap {
		<-ctx.Done()
		return
	}
	for sleep(ctx, m.period) {
		active, err := Refresh(ctx, m.node, m.client)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[%s] refresh: %v", m.who, err)
			}
			continue
		}
		log.Printf("[%s] active neighbours: %d, buckets: %v", m.who, active, m.node.Quantities())
	}
}

// sleep returns false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
