package kadchain

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"code.dogecoin.org/gossip/dnet"
	"github.com/davecgh/go-spew/spew"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/spec"
)

const testRefresh = 300 * time.Millisecond

func freePort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return uint16(l.Addr().(*net.TCPAddr).Port)
}

func startPeer(t *testing.T, cfg KadChainConfig) *Peer {
	t.Helper()
	cfg.IP = "127.0.0.1"
	if cfg.RefreshPeriod == 0 {
		cfg.RefreshPeriod = testRefresh
	}
	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	p.Start(context.Background())
	t.Cleanup(p.Close)
	return p
}

func waitJoined(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case <-p.Joined():
	case <-time.After(20 * time.Second):
		t.Fatalf("%s did not join", p.Info().ID)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func hasContact(p *Peer, id spec.NodeID) bool {
	_, ok := p.Node().Neighbour(id)
	return ok
}

func TestSoloBootstrap(t *testing.T) {
	b := startPeer(t, KadChainConfig{Bootstrap: true})
	waitJoined(t, b)
	if n := b.Neighbours(); len(n) != 0 {
		t.Fatalf("expected no neighbours:\n%s", spew.Sdump(n))
	}
	nbrs, err := b.Client().GetNeighbours(context.Background(), b.Info().Address())
	if err != nil || len(nbrs) != 0 {
		t.Fatalf("GetNeighbours: %v %v", nbrs, err)
	}
	if c := b.Chain(); len(c) != 1 || c[0] != chain.Genesis() {
		t.Fatalf("expected the genesis chain:\n%s", spew.Sdump(c))
	}
}

func TestThreeBootstrapJoin(t *testing.T) {
	var addrs []dnet.Address
	for i := 0; i < 3; i++ {
		addrs = append(addrs, dnet.Address{Host: net.ParseIP("127.0.0.1"), Port: freePort(t)})
	}
	var boots []*Peer
	for _, a := range addrs {
		b := startPeer(t, KadChainConfig{Port: a.Port, Bootstrap: true, Bootstraps: addrs})
		waitJoined(t, b)
		boots = append(boots, b)
	}
	c := startPeer(t, KadChainConfig{Bootstraps: addrs})
	waitJoined(t, c)
	for _, b := range boots {
		if !hasContact(c, b.Info().ID) {
			t.Fatalf("client is missing bootstrap %s:\n%s", b.Info().ID, spew.Sdump(c.Neighbours()))
		}
		if !hasContact(b, c.Info().ID) {
			t.Fatalf("bootstrap %s does not know the client", b.Info().ID)
		}
	}
	if len(c.Node().Bootstraps()) != 3 {
		t.Fatalf("bootstrap index: %v", c.Node().Bootstraps())
	}
}

func TestFindNodeTwoHops(t *testing.T) {
	a := startPeer(t, KadChainConfig{Bootstrap: true, ID: "0000000001"})
	b := startPeer(t, KadChainConfig{Bootstrap: true, ID: "0000000002"})
	c := startPeer(t, KadChainConfig{Bootstrap: true, ID: "00000000f0"})
	a.Node().AddContacts([]spec.NodeInfo{b.Info()})
	b.Node().AddContacts([]spec.NodeInfo{c.Info()})
	if hasContact(a, c.Info().ID) {
		t.Fatal("A must not know C")
	}
	found, err := a.FindNode(context.Background(), c.Info().ID)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != c.Info().ID || found.Port != c.Info().Port {
		t.Fatalf("FindNode: %s", spew.Sdump(found))
	}
}

func TestRefreshEviction(t *testing.T) {
	b := startPeer(t, KadChainConfig{Bootstrap: true})
	waitJoined(t, b)
	boot := []dnet.Address{b.Info().Address()}
	c, err := New(context.Background(), KadChainConfig{IP: "127.0.0.1", Bootstraps: boot})
	if err != nil {
		t.Fatal(err)
	}
	c.Start(context.Background())
	waitJoined(t, c)
	id := c.Info().ID
	waitUntil(t, 5*time.Second, "contact", func() bool { return hasContact(b, id) })

	c.Close()
	start := time.Now()
	waitUntil(t, 2*testRefresh+2*time.Second, "eviction", func() bool { return !hasContact(b, id) })
	t.Logf("evicted after %v", time.Since(start))
}

func TestTransactionsToBlock(t *testing.T) {
	m := startPeer(t, KadChainConfig{Bootstrap: true, Miner: true, Batch: spec.TransactionNumber})
	waitJoined(t, m)
	s := startPeer(t, KadChainConfig{Bootstraps: []dnet.Address{m.Info().Address()}})
	waitJoined(t, s)
	tip := m.Node().Tip()

	ctx := context.Background()
	var records []string
	for i := 1; i <= spec.TransactionNumber+1; i++ {
		if _, err := s.Client().Transaction(ctx, m.Info().Address(), s.Info().ID, int64(i), m.Info().ID); err != nil {
			t.Fatalf("transaction %d: %v", i, err)
		}
		records = append(records, fmt.Sprintf("%s->%d->%s", s.Info().ID, i, m.Info().ID))
	}

	c := m.Chain()
	if len(c) != 2 {
		t.Fatalf("expected exactly one block:\n%s", spew.Sdump(c))
	}
	block := c[1]
	if block.MerkleRoot != chain.Merkle(records[:spec.TransactionNumber]) {
		t.Fatalf("merkle root is not over the first batch")
	}
	if block.PrevHash != chain.Digest(tip) {
		t.Fatalf("prev hash %s, want %s", block.PrevHash, chain.Digest(tip))
	}
	if !strings.HasPrefix(chain.Digest(block), "00") {
		t.Fatalf("digest %s lacks the difficulty prefix", chain.Digest(block))
	}
	// the bootstrap miner floods the block to its neighbours
	waitUntil(t, 5*time.Second, "block flood", func() bool { return len(s.Chain()) == 2 })

	received, err := m.ReceivedTransactions(ctx)
	if err != nil || len(received) != spec.TransactionNumber+1 {
		t.Fatalf("received: %v %v", received, err)
	}
}

func TestMinedBlockFloodsThroughBootstrap(t *testing.T) {
	b := startPeer(t, KadChainConfig{Bootstrap: true})
	waitJoined(t, b)
	boot := []dnet.Address{b.Info().Address()}
	m := startPeer(t, KadChainConfig{Miner: true, Batch: 2, Bootstraps: boot})
	waitJoined(t, m)
	s := startPeer(t, KadChainConfig{Bootstraps: boot})
	waitJoined(t, s)
	if len(m.Node().Bootstraps()) != 1 {
		t.Fatalf("miner does not know its bootstrap: %v", m.Node().Bootstraps())
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if _, err := s.Client().Transaction(ctx, m.Info().Address(), s.Info().ID, int64(i), m.Info().ID); err != nil {
			t.Fatalf("transaction %d: %v", i, err)
		}
	}
	if c := m.Chain(); len(c) != 2 {
		t.Fatalf("miner did not commit its block:\n%s", spew.Sdump(c))
	}
	mined := m.Chain()[1]
	waitUntil(t, 5*time.Second, "bootstrap to accept the block", func() bool { return len(b.Chain()) == 2 })
	waitUntil(t, 5*time.Second, "block flood to the client", func() bool { return len(s.Chain()) == 2 })
	if b.Chain()[1] != mined || s.Chain()[1] != mined {
		t.Fatalf("peers hold different blocks:\n%s", spew.Sdump(mined, b.Chain(), s.Chain()))
	}
}
