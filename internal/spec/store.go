package spec

import "context"

// Store holds the node's received-transaction ledger and its block archive.
type Store interface {
	WithCtx(ctx context.Context) StoreCtx
	Close()
}

type StoreCtx interface {
	// AddTransaction records a transaction addressed to this node.
	AddTransaction(tx string) error
	// Transactions lists received transactions in arrival order.
	Transactions() ([]string, error)
	// ArchiveBlock records a committed block at its chain height.
	ArchiveBlock(height int, digest string, block Block) error
	// Blocks lists archived blocks by height.
	Blocks() ([]Block, error)
	// BlockByDigest finds an archived block; NotFound if absent.
	BlockByDigest(digest string) (block Block, height int, err error)
}
