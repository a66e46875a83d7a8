package spec

// Block is one link of the chain.
type Block struct {
	PrevHash   string `json:"prev_hash"`
	Nonce      uint64 `json:"nonce"`
	MerkleRoot string `json:"merkle_root"`
}
