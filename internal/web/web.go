package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"code.dogecoin.org/governor"
	"github.com/gorilla/mux"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/spec"
)

func New(bind string, op spec.Operator, store spec.Store) governor.Service {
	a := &WebAPI{
		_store: store,
		op:     op,
	}
	a.srv = http.Server{
		Addr:    bind,
		Handler: a.Router(),
	}
	return a
}

type WebAPI struct {
	governor.ServiceCtx
	_store spec.Store
	store  spec.StoreCtx
	op     spec.Operator
	srv    http.Server
}

// Router serves the operator API.
func (a *WebAPI) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/info", a.getInfo).Methods(http.MethodGet)
	r.HandleFunc("/neighbours", a.getNeighbours).Methods(http.MethodGet)
	r.HandleFunc("/buckets", a.getBuckets).Methods(http.MethodGet)
	r.HandleFunc("/find/{id}", a.findNode).Methods(http.MethodGet)
	r.HandleFunc("/transaction", a.postTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transactions", a.getTransactions).Methods(http.MethodGet)
	r.HandleFunc("/chain", a.getChain).Methods(http.MethodGet)
	r.HandleFunc("/block/{digest}", a.getBlock).Methods(http.MethodGet)
	r.HandleFunc("/bid", a.notImplemented).Methods(http.MethodPost)
	r.HandleFunc("/bid/{id}/value", a.notImplemented).Methods(http.MethodPost)
	r.MethodNotAllowedHandler = http.HandlerFunc(options)
	return r
}

// called on any
func (a *WebAPI) Stop() {
	// new goroutine because Shutdown() blocks
	go func() {
		// cannot use ServiceCtx here because it's already cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.srv.Shutdown(ctx) // blocking call
		cancel()
	}()
}

// goroutine
func (a *WebAPI) Run() {
	a.store = a._store.WithCtx(a.Context) // Service Context is first available here
	log.Printf("HTTP server listening on: %v\n", a.srv.Addr)
	if err := a.srv.ListenAndServe(); err != http.ErrServerClosed { // blocking call
		log.Printf("HTTP server: %v\n", err)
	}
}

func (a *WebAPI) storeCtx(r *http.Request) spec.StoreCtx {
	if a.store != nil {
		return a.store
	}
	return a._store.WithCtx(r.Context())
}

type NodeView struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Bootstrap bool   `json:"bootstrap"`
	Miner     bool   `json:"miner"`
	PublicKey string `json:"public_key,omitempty"`
}

func viewOf(n spec.NodeInfo) NodeView {
	return NodeView{
		ID:        string(n.ID),
		Address:   n.Address().String(),
		Bootstrap: n.Bootstrap,
		Miner:     n.Miner,
		PublicKey: string(n.PublicKey),
	}
}

func viewsOf(list []spec.NodeInfo) []NodeView {
	res := make([]NodeView, 0, len(list))
	for _, n := range list {
		v := viewOf(n)
		v.PublicKey = ""
		res = append(res, v)
	}
	return res
}

type BlockView struct {
	Height     int    `json:"height"`
	Digest     string `json:"digest"`
	PrevHash   string `json:"prev_hash"`
	Nonce      uint64 `json:"nonce"`
	MerkleRoot string `json:"merkle_root"`
}

func blockView(height int, b spec.Block) BlockView {
	return BlockView{Height: height, Digest: chain.Digest(b), PrevHash: b.PrevHash, Nonce: b.Nonce, MerkleRoot: b.MerkleRoot}
}

func (a *WebAPI) getInfo(w http.ResponseWriter, r *http.Request) {
	sendJson(w, viewOf(a.op.Info()), "GET, OPTIONS")
}

func (a *WebAPI) getNeighbours(w http.ResponseWriter, r *http.Request) {
	sendJson(w, viewsOf(a.op.Neighbours()), "GET, OPTIONS")
}

func (a *WebAPI) getBuckets(w http.ResponseWriter, r *http.Request) {
	sendJson(w, a.op.Quantities(), "GET, OPTIONS")
}

func (a *WebAPI) findNode(w http.ResponseWriter, r *http.Request) {
	id, err := spec.ParseNodeID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	found, err := a.op.FindNode(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("lookup failed: %v", err), http.StatusBadGateway)
		return
	}
	if found == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	sendJson(w, viewOf(*found), "GET, OPTIONS")
}

type SendTransaction struct {
	Value       int64  `json:"value"`
	Destination string `json:"destination"`
}

type SentTransaction struct {
	Sent int `json:"sent"`
}

func (a *WebAPI) postTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	var to SendTransaction
	err = json.Unmarshal(body, &to)
	if err != nil {
		http.Error(w, fmt.Sprintf("error decoding JSON: %s", err.Error()), http.StatusBadRequest)
		return
	}
	dest, err := spec.ParseNodeID(to.Destination)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sent, err := a.op.SendTransaction(r.Context(), to.Value, dest)
	if err != nil {
		http.Error(w, fmt.Sprintf("cannot send: %v", err), http.StatusBadGateway)
		return
	}
	sendJson(w, SentTransaction{Sent: sent}, "POST, OPTIONS")
}

func (a *WebAPI) getTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.storeCtx(r).Transactions()
	if err != nil {
		http.Error(w, fmt.Sprintf("error in query: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []string{}
	}
	sendJson(w, txs, "GET, OPTIONS")
}

func (a *WebAPI) getChain(w http.ResponseWriter, r *http.Request) {
	blocks, err := a.storeCtx(r).Blocks()
	if err != nil {
		http.Error(w, fmt.Sprintf("error in query: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	res := make([]BlockView, 0, len(blocks))
	for i, b := range blocks {
		res = append(res, blockView(i, b))
	}
	sendJson(w, res, "GET, OPTIONS")
}

func (a *WebAPI) getBlock(w http.ResponseWriter, r *http.Request) {
	b, height, err := a.storeCtx(r).BlockByDigest(mux.Vars(r)["digest"])
	if err != nil {
		if spec.IsNotFoundError(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error in query: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	sendJson(w, blockView(height, b), "GET, OPTIONS")
}

// bids are reserved for a future auction protocol
func (a *WebAPI) notImplemented(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not implemented", http.StatusNotImplemented)
}

func sendJson(w http.ResponseWriter, v any, allow string) {
	bytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("error encoding JSON: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(bytes)))
	w.Header().Set("Allow", allow)
	w.Write(bytes)
}

func options(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
