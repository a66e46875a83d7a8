package node

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"code.dogecoin.org/kadchain/internal/chain"
	"code.dogecoin.org/kadchain/internal/identity"
	"code.dogecoin.org/kadchain/internal/routing"
	"code.dogecoin.org/kadchain/internal/spec"
)

var ErrKeyMismatch = errors.New("public key does not match pinned key")

type Config struct {
	Info  spec.NodeInfo
	Keys  identity.KeyPair
	Miner *chain.MinerInfo // nil unless Info.Miner
	Store spec.StoreCtx
}

// Node is the state shared by every task of one peer.
// Locks are held only for structural updates, never across I/O.
type Node struct {
	info  spec.NodeInfo
	keys  identity.KeyPair
	miner *chain.MinerInfo
	store spec.StoreCtx
	// MUTEX state:
	mutex      sync.RWMutex
	table      *routing.Table
	bootstraps []spec.NodeInfo // bootstrap index
	chain      []spec.Block
	// taken under mutex, held while the commit is archived
	archiveMu sync.Mutex
}

func New(cfg Config) *Node {
	n := &Node{
		info:  cfg.Info,
		keys:  cfg.Keys,
		miner: cfg.Miner,
		store: cfg.Store,
		table: routing.New(cfg.Info.ID, cfg.Info.Bootstrap),
		chain: []spec.Block{chain.Genesis()},
	}
	n.archive(0, n.chain)
	return n
}

func (n *Node) Info() spec.NodeInfo {
	return n.info
}

func (n *Node) ID() spec.NodeID {
	return n.info.ID
}

func (n *Node) Sign(content string) ([]byte, error) {
	return n.keys.Sign(content)
}

func (n *Node) PublicKey() []byte {
	return n.keys.Pub
}

// Miner is nil on nodes that do not mine.
func (n *Node) Miner() *chain.MinerInfo {
	return n.miner
}

func (n *Node) Store() spec.StoreCtx {
	return n.store
}

// ROUTING

func (n *Node) Neighbours() []spec.NodeInfo {
	n.mutex.RLock() // vs AddContacts, Remove
	defer n.mutex.RUnlock()
	return n.table.Neighbours()
}

func (n *Node) Neighbour(id spec.NodeID) (spec.NodeInfo, bool) {
	n.mutex.RLock() // vs AddContacts, Remove
	defer n.mutex.RUnlock()
	return n.table.Lookup(id)
}

func (n *Node) Closest(target spec.NodeID, limit int) []spec.NodeInfo {
	n.mutex.RLock() // vs AddContacts, Remove
	defer n.mutex.RUnlock()
	return n.table.Closest(target, limit)
}

func (n *Node) Quantities() []int {
	n.mutex.RLock() // vs AddContacts, Remove
	defer n.mutex.RUnlock()
	return n.table.Quantities()
}

// AddContacts inserts each contact, and records bootstraps in the
// bootstrap index. Returns the number inserted into the table.
func (n *Node) AddContacts(list []spec.NodeInfo) int {
	n.mutex.Lock() // vs readers
	defer n.mutex.Unlock()
	added := 0
	for _, c := range list {
		if c.ID == n.info.ID || !c.IsValid() {
			continue
		}
		if n.table.Insert(c) {
			added++
		}
		if c.Bootstrap && !slices.ContainsFunc(n.bootstraps, func(b spec.NodeInfo) bool { return b.ID == c.ID }) {
			n.bootstraps = append(n.bootstraps, c)
		}
	}
	return added
}

// Remove drops a contact from the table and the bootstrap index.
func (n *Node) Remove(id spec.NodeID) bool {
	n.mutex.Lock() // vs readers
	defer n.mutex.Unlock()
	n.bootstraps = slices.DeleteFunc(n.bootstraps, func(b spec.NodeInfo) bool { return b.ID == id })
	return n.table.Remove(id)
}

// Bootstraps lists known bootstraps other than this node.
func (n *Node) Bootstraps() []spec.NodeInfo {
	n.mutex.RLock() // vs AddContacts, Remove
	defer n.mutex.RUnlock()
	return slices.Clone(n.bootstraps)
}

// CheckKey asserts pub is the key pinned for a known contact.
// Unknown ids are accepted.
func (n *Node) CheckKey(id spec.NodeID, pub []byte) error {
	n.mutex.RLock() // vs AddContacts, Remove
	defer n.mutex.RUnlock()
	pinned, ok := n.table.Lookup(id)
	if !ok {
		i := slices.IndexFunc(n.bootstraps, func(b spec.NodeInfo) bool { return b.ID == id })
		if i < 0 {
			return nil
		}
		pinned = n.bootstraps[i]
	}
	if !bytes.Equal(pinned.PublicKey, pub) {
		return fmt.Errorf("%w: %s", ErrKeyMismatch, id)
	}
	return nil
}

// CHAIN

func (n *Node) Chain() []spec.Block {
	n.mutex.RLock() // vs AppendBlock, AdoptChain
	defer n.mutex.RUnlock()
	return slices.Clone(n.chain)
}

func (n *Node) Tip() spec.Block {
	n.mutex.RLock() // vs AppendBlock, AdoptChain
	defer n.mutex.RUnlock()
	return n.chain[len(n.chain)-1]
}

// AppendBlock verifies the chain with b appended and commits it.
// Returns the new block's height.
func (n *Node) AppendBlock(b spec.Block) (int, error) {
	if !chain.Valid(b) {
		return 0, fmt.Errorf("%w: block %s lacks proof of work", chain.ErrInvalidChain, chain.Digest(b))
	}
	n.mutex.Lock() // vs readers
	candidate := append(slices.Clone(n.chain), b)
	if err := chain.Verify(candidate); err != nil {
		n.mutex.Unlock()
		return 0, err
	}
	n.chain = candidate
	height := len(candidate) - 1
	n.archiveMu.Lock() // keeps archive writes in commit order
	n.mutex.Unlock()
	defer n.archiveMu.Unlock()
	n.archive(height, []spec.Block{b})
	return height, nil
}

// AdoptChain replaces the local chain with a longer valid one that starts
// at the same genesis. Returns true if adopted.
func (n *Node) AdoptChain(c []spec.Block) bool {
	if len(c) == 0 || c[0] != chain.Genesis() || chain.Verify(c) != nil {
		return false
	}
	for _, b := range c[1:] {
		if !chain.Valid(b) {
			return false
		}
	}
	n.mutex.Lock() // vs readers
	if len(c) <= len(n.chain) {
		n.mutex.Unlock()
		return false
	}
	n.chain = slices.Clone(c)
	n.archiveMu.Lock() // keeps archive writes in commit order
	n.mutex.Unlock()
	defer n.archiveMu.Unlock()
	n.archive(0, c)
	return true
}

func (n *Node) archive(from int, blocks []spec.Block) {
	if n.store == nil {
		return
	}
	for i, b := range blocks {
		if err := n.store.ArchiveBlock(from+i, chain.Digest(b), b); err != nil {
			log.Printf("[%s] cannot archive block %d: %v", n.info.ID, from+i, err)
		}
	}
}
