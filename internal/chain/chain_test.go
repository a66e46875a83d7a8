package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"code.dogecoin.org/kadchain/internal/spec"
	"github.com/davecgh/go-spew/spew"
)

func sha(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func txs(n int) []string {
	list := make([]string, n)
	for i := range list {
		list[i] = fmt.Sprintf("aaaaaaaaaa->%d->bbbbbbbbbb", i)
	}
	return list
}

func TestDigest(t *testing.T) {
	b := spec.Block{PrevHash: spec.Genesis, Nonce: 42, MerkleRoot: "root"}
	want := sha(spec.Genesis + "42" + "root")
	if got := Digest(b); got != want {
		t.Fatalf("Digest: got %s want %s", got, want)
	}
}

func TestMerkleReduction(t *testing.T) {
	if got := Merkle(nil); got != "" {
		t.Fatalf("Merkle(nil): got %q", got)
	}
	if got := Merkle([]string{"x"}); got != "x" {
		t.Fatalf("Merkle([x]): got %q want x", got)
	}
	if got := Merkle([]string{"a", "b"}); got != sha("b") {
		t.Fatalf("Merkle([a b]): got %q", got)
	}
	hb := sha("b")
	if got := Merkle([]string{"a", "b", "c"}); got != sha(hb+hb) {
		t.Fatalf("Merkle([a b c]): got %q", got)
	}
	list := txs(10)
	if Merkle(list) != Merkle(append([]string(nil), list...)) {
		t.Fatalf("Merkle is not deterministic")
	}
	if Merkle(list) == Merkle(list[:9]) {
		t.Fatalf("Merkle ignores the last transaction")
	}
}

func TestMineMeetsPrefix(t *testing.T) {
	prev := Genesis()
	b, err := Mine(context.Background(), prev, txs(3))
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if !strings.HasPrefix(Digest(b), "00") {
		t.Fatalf("mined digest %s lacks prefix", Digest(b))
	}
	if b.PrevHash != Digest(prev) || b.MerkleRoot != Merkle(txs(3)) {
		t.Fatalf("mined block not built on prev:\n%s", spew.Sdump(b))
	}
	// the nonce is the first that satisfies the prefix
	for n := uint64(0); n < b.Nonce; n++ {
		c := b
		c.Nonce = n
		if Valid(c) {
			t.Fatalf("nonce %d was already valid, mined %d", n, b.Nonce)
		}
	}
}

func TestMineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := Mine(ctx, Genesis(), txs(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Mine after cancel: got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Mine did not stop promptly")
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	chain := []spec.Block{Genesis()}
	for i := 0; i < 3; i++ {
		b, err := Mine(ctx, chain[len(chain)-1], txs(i+1))
		if err != nil {
			t.Fatalf("Mine: %v", err)
		}
		chain = append(chain, b)
	}
	if err := Verify(chain); err != nil {
		t.Fatalf("Verify of mined chain: %v", err)
	}
	if err := Verify(nil); err != nil {
		t.Fatalf("Verify of empty chain: %v", err)
	}
	bad := append([]spec.Block(nil), chain...)
	bad[2].Nonce++
	if err := Verify(bad); !errors.Is(err, ErrInvalidChain) {
		t.Fatalf("Verify of tampered chain: got %v\n%s", err, spew.Sdump(bad))
	}
}

func TestMinerInfoBatching(t *testing.T) {
	m := NewMinerInfo("127.0.0.1:0", 3)
	list := txs(6)
	for i := 0; i < 3; i++ {
		if state, batch := m.Write(list[i]); state != spec.StateProcessed || batch != nil {
			t.Fatalf("tx %d: got %q %v", i, state, batch)
		}
	}
	if state, _ := m.Write(list[0]); state != "" {
		t.Fatalf("duplicate accepted with state %q", state)
	}
	state, batch := m.Write(list[3])
	if state != spec.StateQueued || len(batch) != 3 || batch[0] != list[0] {
		t.Fatalf("spill: got %q %v", state, batch)
	}
	// a second spill while mining only queues
	if state, batch := m.Write(list[4]); state != spec.StateQueued || batch != nil {
		t.Fatalf("spill while mining: got %q %v", state, batch)
	}
	m.Mined(true)
	active, queued := m.Snapshot()
	if len(active) != 2 || active[0] != list[3] || len(queued) != 0 {
		t.Fatalf("after mining:\n%s", spew.Sdump(active, queued))
	}
}

func TestMinerInfoFailedMine(t *testing.T) {
	m := NewMinerInfo("", 1)
	m.Write("a")
	if _, batch := m.Write("b"); len(batch) != 1 {
		t.Fatalf("expected a batch")
	}
	m.Mined(false)
	active, queued := m.Snapshot()
	if len(active) != 1 || len(queued) != 1 {
		t.Fatalf("failed mine changed the pool:\n%s", spew.Sdump(active, queued))
	}
	if _, batch := m.Write("c"); len(batch) != 1 {
		t.Fatalf("pool not released after failed mine")
	}
}
