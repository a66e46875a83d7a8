package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/spec"
	"code.dogecoin.org/kadchain/internal/store"
	"github.com/davecgh/go-spew/spew"
)

func info(v uint64, bootstrap bool) spec.NodeInfo {
	return spec.NodeInfo{
		ID:        spec.NodeID(fmt.Sprintf("%010x", v)),
		IP:        "127.0.0.1",
		Port:      uint16(20000 + v),
		PublicKey: []byte(fmt.Sprintf("key-%d", v)),
		Bootstrap: bootstrap,
	}
}

func newNode(t *testing.T, bootstrap bool) *Node {
	t.Helper()
	db, err := store.NewSQLiteStore(store.MemoryDSN, context.Background())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(db.Close)
	return New(Config{Info: info(0, bootstrap), Store: db.WithCtx(context.Background())})
}

func TestContactsAndBootstrapIndex(t *testing.T) {
	n := newNode(t, false)
	added := n.AddContacts([]spec.NodeInfo{info(0, false), info(1, false), info(2, true), info(2, true)})
	if added != 2 {
		t.Fatalf("AddContacts: added %d want 2", added)
	}
	if len(n.Bootstraps()) != 1 {
		t.Fatalf("bootstrap index:\n%s", spew.Sdump(n.Bootstraps()))
	}
	if !n.Remove(info(2, true).ID) {
		t.Fatalf("Remove failed")
	}
	if len(n.Bootstraps()) != 0 || len(n.Neighbours()) != 1 {
		t.Fatalf("Remove left state behind")
	}
}

func TestTrustPinning(t *testing.T) {
	n := newNode(t, false)
	c := info(5, false)
	if err := n.CheckKey(c.ID, []byte("anything")); err != nil {
		t.Fatalf("unknown id should be trusted: %v", err)
	}
	n.AddContacts([]spec.NodeInfo{c})
	if err := n.CheckKey(c.ID, c.PublicKey); err != nil {
		t.Fatalf("pinned key rejected: %v", err)
	}
	if err := n.CheckKey(c.ID, []byte("other")); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("mismatched key: got %v", err)
	}
	// a second sighting with a new key does not replace the pin
	forged := c
	forged.PublicKey = []byte("forged")
	n.AddContacts([]spec.NodeInfo{forged})
	if err := n.CheckKey(c.ID, forged.PublicKey); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("pin was replaced")
	}
}

func TestAppendBlock(t *testing.T) {
	n := newNode(t, false)
	if got := n.Chain(); len(got) != 1 || got[0] != chain.Genesis() {
		t.Fatalf("new chain:\n%s", spew.Sdump(got))
	}
	b, err := chain.Mine(context.Background(), n.Tip(), []string{"a->1->b"})
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	height, err := n.AppendBlock(b)
	if err != nil || height != 1 {
		t.Fatalf("AppendBlock: %d %v", height, err)
	}
	if _, err := n.AppendBlock(b); !errors.Is(err, chain.ErrInvalidChain) {
		t.Fatalf("replayed block accepted: %v", err)
	}
	if len(n.Chain()) != 2 {
		t.Fatalf("rejected block changed the chain")
	}
	archived, err := n.Store().Blocks()
	if err != nil || len(archived) != 2 || archived[1] != b {
		t.Fatalf("archive: %v\n%s", err, spew.Sdump(archived))
	}
}

func TestAdoptChain(t *testing.T) {
	a, b := newNode(t, false), newNode(t, false)
	blk, err := chain.Mine(context.Background(), a.Tip(), []string{"x"})
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	a.AppendBlock(blk)
	if !b.AdoptChain(a.Chain()) {
		t.Fatalf("longer valid chain not adopted")
	}
	if b.AdoptChain(a.Chain()) {
		t.Fatalf("equal-length chain adopted")
	}
	bad := a.Chain()
	bad = append(bad, spec.Block{PrevHash: "nope"})
	if b.AdoptChain(bad) {
		t.Fatalf("broken chain adopted")
	}
}

func mineChain(t *testing.T, tag string, length int) []spec.Block {
	t.Helper()
	c := []spec.Block{chain.Genesis()}
	for i := 1; i < length; i++ {
		b, err := chain.Mine(context.Background(), c[i-1], []string{fmt.Sprintf("%s-%d", tag, i)})
		if err != nil {
			t.Fatalf("Mine: %v", err)
		}
		c = append(c, b)
	}
	return c
}

func TestArchiveFollowsConcurrentCommits(t *testing.T) {
	local := mineChain(t, "local", 4)
	remote := mineChain(t, "remote", 5)
	for round := 0; round < 20; round++ {
		n := newNode(t, false)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, b := range local[1:] {
				n.AppendBlock(b)
			}
		}()
		go func() {
			defer wg.Done()
			n.AdoptChain(remote)
		}()
		wg.Wait()
		archived, err := n.Store().Blocks()
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(archived, n.Chain()) {
			t.Fatalf("round %d: archive differs from chain:\n%s", round, spew.Sdump(archived, n.Chain()))
		}
	}
}
