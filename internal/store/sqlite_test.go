package store

import (
	"context"
	"testing"

	"code.dogecoin.org/kadchain/internal/spec"
	"github.com/davecgh/go-spew/spew"
)

func newStore(t *testing.T) spec.StoreCtx {
	t.Helper()
	db, err := NewSQLiteStore(MemoryDSN, context.Background())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(db.Close)
	return db.WithCtx(context.Background())
}

func TestReceivedTransactions(t *testing.T) {
	s := newStore(t)
	list, err := s.Transactions()
	if err != nil || len(list) != 0 {
		t.Fatalf("empty store: %v %v", list, err)
	}
	want := []string{"a->1->b", "c->2->d", "a->1->b"}
	for _, tx := range want {
		if err := s.AddTransaction(tx); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}
	list, err = s.Transactions()
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(list) != len(want) {
		t.Fatalf("Transactions:\n%s", spew.Sdump(list))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("order lost:\n%s", spew.Sdump(list))
		}
	}
}

func TestBlockArchive(t *testing.T) {
	s := newStore(t)
	b0 := spec.Block{PrevHash: spec.Genesis}
	b1 := spec.Block{PrevHash: "p1", Nonce: 77, MerkleRoot: "m1"}
	if err := s.ArchiveBlock(0, "d0", b0); err != nil {
		t.Fatalf("ArchiveBlock: %v", err)
	}
	if err := s.ArchiveBlock(1, "d1", b1); err != nil {
		t.Fatalf("ArchiveBlock: %v", err)
	}
	blocks, err := s.Blocks()
	if err != nil || len(blocks) != 2 || blocks[1] != b1 {
		t.Fatalf("Blocks: %v\n%s", err, spew.Sdump(blocks))
	}
	got, height, err := s.BlockByDigest("d1")
	if err != nil || height != 1 || got != b1 {
		t.Fatalf("BlockByDigest: %v %d %s", err, height, spew.Sdump(got))
	}
	if _, _, err := s.BlockByDigest("nope"); !spec.IsNotFoundError(err) {
		t.Fatalf("BlockByDigest(missing): got %v", err)
	}
	// a replaced height keeps one row
	b1b := spec.Block{PrevHash: "p1", Nonce: 78, MerkleRoot: "m1"}
	if err := s.ArchiveBlock(1, "d1b", b1b); err != nil {
		t.Fatalf("ArchiveBlock(replace): %v", err)
	}
	blocks, _ = s.Blocks()
	if len(blocks) != 2 || blocks[1] != b1b {
		t.Fatalf("replace:\n%s", spew.Sdump(blocks))
	}
}
