package msg

import (
	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/identity"
	"code.dogecoin.org/kadchain/internal/spec"
)

// Signer seals outgoing content with the node's key.
type Signer interface {
	Sign(content string) ([]byte, error)
	PublicKey() []byte
}

// Envelope travels next to every signed payload.
type Envelope struct {
	Signature []byte
	PublicKey []byte // PEM
}

func Seal(s Signer, content string) (Envelope, error) {
	sig, err := s.Sign(content)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Signature: sig, PublicKey: s.PublicKey()}, nil
}

func (env Envelope) Verify(content string) error {
	return identity.Verify(content, env.Signature, env.PublicKey)
}

func (e *Encoder) envelope(env Envelope) {
	e.var_bytes(env.Signature)
	e.var_bytes(env.PublicKey)
}

func (d *Decoder) envelope() (env Envelope) {
	env.Signature = d.var_bytes()
	env.PublicKey = d.var_bytes()
	return
}

// minimum encoded sizes, for list bounds
const (
	minNodeInfo = 1 + spec.IDSize + 1 + 2 + 1 + 2
	minBlock    = 1 + 8 + 1
	minString   = 1
)

func (e *Encoder) node_info(n spec.NodeInfo) {
	e.var_string(string(n.ID))
	e.var_string(n.IP)
	e.uint16le(n.Port)
	e.var_bytes(n.PublicKey)
	e.bool(n.Bootstrap)
	e.bool(n.Miner)
}

func (d *Decoder) node_info() (n spec.NodeInfo) {
	n.ID = d.node_id()
	n.IP = d.var_string()
	n.Port = d.uint16le()
	n.PublicKey = d.var_bytes()
	n.Bootstrap = d.bool()
	n.Miner = d.bool()
	return
}

func (e *Encoder) node_list(list []spec.NodeInfo) {
	e.var_uint(uint64(len(list)))
	for _, n := range list {
		e.node_info(n)
	}
}

func (d *Decoder) node_list() []spec.NodeInfo {
	num := d.count(minNodeInfo)
	list := make([]spec.NodeInfo, 0, num)
	for i := 0; i < num && d.err == nil; i++ {
		list = append(list, d.node_info())
	}
	return list
}

func (e *Encoder) block(b spec.Block) {
	e.var_string(b.PrevHash)
	e.uint64le(b.Nonce)
	e.var_string(b.MerkleRoot)
}

func (d *Decoder) block() (b spec.Block) {
	b.PrevHash = d.var_string()
	b.Nonce = d.uint64le()
	b.MerkleRoot = d.var_string()
	return
}

func (e *Encoder) block_list(list []spec.Block) {
	e.var_uint(uint64(len(list)))
	for _, b := range list {
		e.block(b)
	}
}

func (d *Decoder) block_list() []spec.Block {
	num := d.count(minBlock)
	list := make([]spec.Block, 0, num)
	for i := 0; i < num && d.err == nil; i++ {
		list = append(list, d.block())
	}
	return list
}

func (e *Encoder) string_list(list []string) {
	e.var_uint(uint64(len(list)))
	for _, s := range list {
		e.var_string(s)
	}
}

func (d *Decoder) string_list() []string {
	num := d.count(minString)
	list := make([]string, 0, num)
	for i := 0; i < num && d.err == nil; i++ {
		list = append(list, d.var_string())
	}
	return list
}

// EncodeBlock encodes a single block.
func EncodeBlock(b spec.Block) []byte {
	e := Encode(len(b.PrevHash) + len(b.MerkleRoot) + 12)
	e.block(b)
	return e.Result()
}

func DecodeBlock(payload []byte) (b spec.Block, err error) {
	d := Decode(payload)
	b = d.block()
	return b, d.finish("Block")
}

func chainDigests(list []spec.Block) string {
	s := ""
	for _, b := range list {
		s += chain.Digest(b)
	}
	return s
}
