package msg

import (
	"strconv"
	"strings"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/spec"
)

// TRANSACTION

type TransactionRequest struct {
	SourceID    spec.NodeID // relaying peer
	Sender      spec.NodeID // originator
	Value       int64
	Destination spec.NodeID
	Sig         Envelope
}

func (m TransactionRequest) Content() string {
	return string(m.SourceID) + string(m.Sender) + strconv.FormatInt(m.Value, 10) + string(m.Destination)
}

// Record is the transaction as it is stored and mined.
func (m TransactionRequest) Record() string {
	return string(m.Sender) + "->" + strconv.FormatInt(m.Value, 10) + "->" + string(m.Destination)
}

func (m TransactionRequest) Encode() []byte {
	e := Encode(400)
	e.var_string(string(m.SourceID))
	e.var_string(string(m.Sender))
	e.uint64le(uint64(m.Value))
	e.var_string(string(m.Destination))
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeTransactionRequest(payload []byte) (m TransactionRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Sender = d.node_id()
	m.Value = int64(d.uint64le())
	m.Destination = d.node_id()
	m.Sig = d.envelope()
	return m, d.finish("TransactionRequest")
}

type TransactionResponse struct {
	SourceID spec.NodeID
	State    string // StateProcessed, StateQueued or empty
	Sig      Envelope
}

func (m TransactionResponse) Content() string {
	return string(m.SourceID) + m.State
}

func (m TransactionResponse) Encode() []byte {
	e := Encode(300)
	e.var_string(string(m.SourceID))
	e.var_string(m.State)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeTransactionResponse(payload []byte) (m TransactionResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.State = d.var_string()
	m.Sig = d.envelope()
	return m, d.finish("TransactionResponse")
}

// OBTAIN TRANSACTIONS

type TransactionsResponse struct {
	SourceID     spec.NodeID
	Transactions []string
	Sig          Envelope
}

func (m TransactionsResponse) Content() string {
	return string(m.SourceID) + strings.Join(m.Transactions, "")
}

func (m TransactionsResponse) Encode() []byte {
	e := Encode(1024)
	e.var_string(string(m.SourceID))
	e.string_list(m.Transactions)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeTransactionsResponse(payload []byte) (m TransactionsResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Transactions = d.string_list()
	m.Sig = d.envelope()
	return m, d.finish("TransactionsResponse")
}

// RETRIEVE BLOCKCHAIN

type ChainResponse struct {
	SourceID spec.NodeID
	Chain    []spec.Block
	Sig      Envelope
}

func (m ChainResponse) Content() string {
	return string(m.SourceID) + chainDigests(m.Chain)
}

func (m ChainResponse) Encode() []byte {
	e := Encode(1024)
	e.var_string(string(m.SourceID))
	e.block_list(m.Chain)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeChainResponse(payload []byte) (m ChainResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Chain = d.block_list()
	m.Sig = d.envelope()
	return m, d.finish("ChainResponse")
}

// UPDATE BLOCKCHAIN

type UpdateBlockchainRequest struct {
	SourceID spec.NodeID
	Block    spec.Block
	Sig      Envelope
}

func (m UpdateBlockchainRequest) Content() string {
	return string(m.SourceID) + chain.Digest(m.Block)
}

func (m UpdateBlockchainRequest) Encode() []byte {
	e := Encode(512)
	e.var_string(string(m.SourceID))
	e.block(m.Block)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeUpdateBlockchainRequest(payload []byte) (m UpdateBlockchainRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Block = d.block()
	m.Sig = d.envelope()
	return m, d.finish("UpdateBlockchainRequest")
}

// UpdateBlockchainResponse is only sent for an accepted block.
type UpdateBlockchainResponse = SourceRequest

// MINE (local, unsigned)

type MineRequest struct {
	SourceID     spec.NodeID
	Previous     spec.Block
	Transactions []string
}

func (m MineRequest) Encode() []byte {
	e := Encode(1024)
	e.var_string(string(m.SourceID))
	e.block(m.Previous)
	e.string_list(m.Transactions)
	return e.Result()
}

func DecodeMineRequest(payload []byte) (m MineRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Previous = d.block()
	m.Transactions = d.string_list()
	return m, d.finish("MineRequest")
}

type MineResponse struct {
	SourceID spec.NodeID
	Block    spec.Block
}

func (m MineResponse) Encode() []byte {
	e := Encode(512)
	e.var_string(string(m.SourceID))
	e.block(m.Block)
	return e.Result()
}

func DecodeMineResponse(payload []byte) (m MineResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Block = d.block()
	return m, d.finish("MineResponse")
}

// AbortRequest asks the mining service to stop; not implemented yet.
type AbortRequest struct {
	SourceID spec.NodeID
}

func (m AbortRequest) Encode() []byte {
	e := Encode(16)
	e.var_string(string(m.SourceID))
	return e.Result()
}

func DecodeAbortRequest(payload []byte) (m AbortRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	return m, d.finish("AbortRequest")
}

// BIDS
// Bids are reserved for a future auction protocol; receivers reject them.

type CreateBidRequest struct {
	SourceID spec.NodeID
	Value    int64
	Sig      Envelope
}

func (m CreateBidRequest) Content() string {
	return string(m.SourceID) + strconv.FormatInt(m.Value, 10)
}

func (m CreateBidRequest) Encode() []byte {
	e := Encode(300)
	e.var_string(string(m.SourceID))
	e.uint64le(uint64(m.Value))
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeCreateBidRequest(payload []byte) (m CreateBidRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Value = int64(d.uint64le())
	m.Sig = d.envelope()
	return m, d.finish("CreateBidRequest")
}

type BidValueRequest struct {
	SourceID spec.NodeID
	BidID    string
	Sig      Envelope
}

func (m BidValueRequest) Content() string {
	return string(m.SourceID) + m.BidID
}

func (m BidValueRequest) Encode() []byte {
	e := Encode(300)
	e.var_string(string(m.SourceID))
	e.var_string(m.BidID)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeBidValueRequest(payload []byte) (m BidValueRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.BidID = d.var_string()
	m.Sig = d.envelope()
	return m, d.finish("BidValueRequest")
}
