package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/spec"
	"code.dogecoin.org/kadchain/internal/store"
)

type fakeOperator struct {
	self  spec.NodeInfo
	nbrs  []spec.NodeInfo
	sent  []string
	found *spec.NodeInfo
}

func (f *fakeOperator) Info() spec.NodeInfo          { return f.self }
func (f *fakeOperator) Neighbours() []spec.NodeInfo  { return f.nbrs }
func (f *fakeOperator) Quantities() []int            { return make([]int, spec.NBuckets) }
func (f *fakeOperator) Chain() []spec.Block          { return []spec.Block{chain.Genesis()} }
func (f *fakeOperator) FindNode(ctx context.Context, id spec.NodeID) (*spec.NodeInfo, error) {
	return f.found, nil
}
func (f *fakeOperator) SendTransaction(ctx context.Context, value int64, dest spec.NodeID) (int, error) {
	f.sent = append(f.sent, string(dest))
	return len(f.nbrs), nil
}

func newAPI(t *testing.T) (*fakeOperator, spec.StoreCtx, http.Handler) {
	t.Helper()
	db, err := store.NewSQLiteStore(store.MemoryDSN, context.Background())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(db.Close)
	op := &fakeOperator{
		self: spec.NodeInfo{ID: "00000000aa", IP: "127.0.0.1", Port: 4000},
		nbrs: []spec.NodeInfo{{ID: "00000000bb", IP: "127.0.0.1", Port: 4001, Bootstrap: true}},
	}
	api := New("127.0.0.1:0", op, db).(*WebAPI)
	return op, db.WithCtx(context.Background()), api.Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNeighbours(t *testing.T) {
	_, _, h := newAPI(t)
	rec := do(t, h, http.MethodGet, "/neighbours", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var got []NodeView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "00000000bb" || !got[0].Bootstrap || got[0].Address != "127.0.0.1:4001" {
		t.Fatalf("neighbours: %+v", got)
	}
}

func TestSendTransaction(t *testing.T) {
	op, _, h := newAPI(t)
	rec := do(t, h, http.MethodPost, "/transaction", `{"value":5,"destination":"00000000cc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if len(op.sent) != 1 || op.sent[0] != "00000000cc" {
		t.Fatalf("operator not called: %v", op.sent)
	}
	if rec := do(t, h, http.MethodPost, "/transaction", `{"value":5,"destination":"zz"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad destination: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/transaction", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /transaction: status %d", rec.Code)
	}
}

func TestTransactionsAndChain(t *testing.T) {
	_, s, h := newAPI(t)
	s.AddTransaction("a->1->b")
	g := chain.Genesis()
	s.ArchiveBlock(0, chain.Digest(g), g)

	rec := do(t, h, http.MethodGet, "/transactions", "")
	var txs []string
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil || len(txs) != 1 || txs[0] != "a->1->b" {
		t.Fatalf("transactions: %d %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodGet, "/chain", "")
	var blocks []BlockView
	if err := json.Unmarshal(rec.Body.Bytes(), &blocks); err != nil || len(blocks) != 1 || blocks[0].PrevHash != spec.Genesis {
		t.Fatalf("chain: %v %s", err, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/block/"+chain.Digest(g), ""); rec.Code != http.StatusOK {
		t.Fatalf("block: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/block/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing block: status %d", rec.Code)
	}
}

func TestFindAndBids(t *testing.T) {
	op, _, h := newAPI(t)
	if rec := do(t, h, http.MethodGet, "/find/00000000dd", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("find absent: status %d", rec.Code)
	}
	op.found = &op.nbrs[0]
	if rec := do(t, h, http.MethodGet, "/find/00000000bb", ""); rec.Code != http.StatusOK {
		t.Fatalf("find: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/bid", "{}"); rec.Code != http.StatusNotImplemented {
		t.Fatalf("bid: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/bid/7/value", "{}"); rec.Code != http.StatusNotImplemented {
		t.Fatalf("bid value: status %d", rec.Code)
	}
}
