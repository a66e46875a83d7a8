package msg

import (
	"strconv"

	"code.dogecoin.org/kadchain/internal/spec"
)

// JOIN

type JoinRequest struct {
	Node spec.NodeInfo // sender
	Sig  Envelope
}

func (m JoinRequest) Content() string {
	return m.Node.String()
}

func (m JoinRequest) Encode() []byte {
	e := Encode(512)
	e.node_info(m.Node)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeJoinRequest(payload []byte) (m JoinRequest, err error) {
	d := Decode(payload)
	m.Node = d.node_info()
	m.Sig = d.envelope()
	return m, d.finish("JoinRequest")
}

type JoinResponse struct {
	Neighbours []spec.NodeInfo
	Chain      []spec.Block
	Sig        Envelope
}

func (m JoinResponse) Content() string {
	return spec.JoinInfos(m.Neighbours) + chainDigests(m.Chain)
}

func (m JoinResponse) Encode() []byte {
	e := Encode(1024)
	e.node_list(m.Neighbours)
	e.block_list(m.Chain)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeJoinResponse(payload []byte) (m JoinResponse, err error) {
	d := Decode(payload)
	m.Neighbours = d.node_list()
	m.Chain = d.block_list()
	m.Sig = d.envelope()
	return m, d.finish("JoinResponse")
}

// FIND NODE

type FindNodeRequest struct {
	SourceID spec.NodeID
	Target   spec.NodeID
	Hops     uint8 // not signed; bounds recursion
	Sig      Envelope
}

func (m FindNodeRequest) Content() string {
	return string(m.SourceID) + string(m.Target)
}

func (m FindNodeRequest) Encode() []byte {
	e := Encode(300)
	e.var_string(string(m.SourceID))
	e.var_string(string(m.Target))
	e.uint8(m.Hops)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeFindNodeRequest(payload []byte) (m FindNodeRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Target = d.node_id()
	m.Hops = d.uint8()
	m.Sig = d.envelope()
	return m, d.finish("FindNodeRequest")
}

type FindNodeResponse struct {
	SourceID spec.NodeID
	Node     *spec.NodeInfo // nil: not found
	Sig      Envelope
}

func (m FindNodeResponse) Content() string {
	if m.Node == nil {
		return string(m.SourceID)
	}
	return string(m.SourceID) + m.Node.String()
}

func (m FindNodeResponse) Encode() []byte {
	e := Encode(512)
	e.var_string(string(m.SourceID))
	e.bool(m.Node != nil)
	if m.Node != nil {
		e.node_info(*m.Node)
	}
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeFindNodeResponse(payload []byte) (m FindNodeResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	if d.bool() {
		node := d.node_info()
		m.Node = &node
	}
	m.Sig = d.envelope()
	return m, d.finish("FindNodeResponse")
}

// SOURCE-ONLY REQUESTS
// GetNeighbours, ObtainTransactions and RetrieveBlockchain sign only the source.

type SourceRequest struct {
	SourceID spec.NodeID
	Sig      Envelope
}

func (m SourceRequest) Content() string {
	return string(m.SourceID)
}

func (m SourceRequest) Encode() []byte {
	e := Encode(300)
	e.var_string(string(m.SourceID))
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeSourceRequest(payload []byte) (m SourceRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Sig = d.envelope()
	return m, d.finish("SourceRequest")
}

// GET NEIGHBOURS

type NeighboursResponse struct {
	SourceID   spec.NodeID
	Neighbours []spec.NodeInfo
	Sig        Envelope
}

func (m NeighboursResponse) Content() string {
	return string(m.SourceID) + spec.JoinInfos(m.Neighbours)
}

func (m NeighboursResponse) Encode() []byte {
	e := Encode(1024)
	e.var_string(string(m.SourceID))
	e.node_list(m.Neighbours)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeNeighboursResponse(payload []byte) (m NeighboursResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Neighbours = d.node_list()
	m.Sig = d.envelope()
	return m, d.finish("NeighboursResponse")
}

// UPDATE NODE

type UpdateNodeRequest struct {
	SourceID   spec.NodeID
	Neighbours []spec.NodeInfo
	Sig        Envelope
}

func (m UpdateNodeRequest) Content() string {
	return string(m.SourceID) + spec.JoinInfos(m.Neighbours)
}

func (m UpdateNodeRequest) Encode() []byte {
	e := Encode(1024)
	e.var_string(string(m.SourceID))
	e.node_list(m.Neighbours)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeUpdateNodeRequest(payload []byte) (m UpdateNodeRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Neighbours = d.node_list()
	m.Sig = d.envelope()
	return m, d.finish("UpdateNodeRequest")
}

// BoolResponse answers UpdateNode and RemoveNode.
type BoolResponse struct {
	SourceID spec.NodeID
	OK       bool
	Sig      Envelope
}

func (m BoolResponse) Content() string {
	return string(m.SourceID) + strconv.FormatBool(m.OK)
}

func (m BoolResponse) Encode() []byte {
	e := Encode(300)
	e.var_string(string(m.SourceID))
	e.bool(m.OK)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeBoolResponse(payload []byte) (m BoolResponse, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.OK = d.bool()
	m.Sig = d.envelope()
	return m, d.finish("BoolResponse")
}

// REMOVE NODE

type RemoveNodeRequest struct {
	SourceID spec.NodeID
	Node     spec.NodeInfo // contact to drop
	Sig      Envelope
}

func (m RemoveNodeRequest) Content() string {
	return m.Node.String()
}

func (m RemoveNodeRequest) Encode() []byte {
	e := Encode(512)
	e.var_string(string(m.SourceID))
	e.node_info(m.Node)
	e.envelope(m.Sig)
	return e.Result()
}

func DecodeRemoveNodeRequest(payload []byte) (m RemoveNodeRequest, err error) {
	d := Decode(payload)
	m.SourceID = d.node_id()
	m.Node = d.node_info()
	m.Sig = d.envelope()
	return m, d.finish("RemoveNodeRequest")
}
