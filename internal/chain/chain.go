package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"code.dogecoin.org/kadchain/internal/spec"
)

var ErrInvalidChain = errors.New("chain invariant violated")

// how often Mine yields the processor
const yieldEvery = 1024

var prefix = strings.Repeat("0", spec.PrefixLength)

// Genesis is the first block of every chain. It is not mined.
func Genesis() spec.Block {
	return spec.Block{PrevHash: spec.Genesis}
}

func hashHex(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// Digest is sha256(prev_hash ∥ decimal(nonce) ∥ merkle_root) in hex.
func Digest(b spec.Block) string {
	return hashHex(b.PrevHash + strconv.FormatUint(b.Nonce, 10) + b.MerkleRoot)
}

// Merkle reduces the ordered transactions to a root. Each pass emits, for
// i in 1..n-1, hash(L[i-1])+hash(L[i-1]) when i is even and hash(L[i])
// when i is odd. A single transaction is its own root; no transactions
// give an empty root.
//
// This is not the textbook construction. Changing it forks the chain.
func Merkle(txs []string) string {
	if len(txs) == 0 {
		return ""
	}
	level := txs
	for len(level) > 1 {
		next := make([]string, 0, len(level)-1)
		for i := 1; i < len(level); i++ {
			if i%2 == 0 {
				h := hashHex(level[i-1])
				next = append(next, h+h)
			} else {
				next = append(next, hashHex(level[i]))
			}
		}
		level = next
	}
	return level[0]
}

// Valid reports whether the block's digest meets the difficulty prefix.
func Valid(b spec.Block) bool {
	return strings.HasPrefix(Digest(b), prefix)
}

// Mine searches nonces from zero for a block on top of prev.
// It stops with ctx.Err() when ctx is cancelled.
func Mine(ctx context.Context, prev spec.Block, txs []string) (spec.Block, error) {
	b := spec.Block{PrevHash: Digest(prev), MerkleRoot: Merkle(txs)}
	for nonce := uint64(0); ; nonce++ {
		if err := ctx.Err(); err != nil {
			return spec.Block{}, err
		}
		if nonce%yieldEvery == yieldEvery-1 {
			runtime.Gosched()
		}
		b.Nonce = nonce
		if Valid(b) {
			return b, nil
		}
	}
}

// Verify checks every block links to its predecessor.
func Verify(chain []spec.Block) error {
	for i := 1; i < len(chain); i++ {
		if chain[i].PrevHash != Digest(chain[i-1]) {
			return fmt.Errorf("%w: block %d does not follow block %d", ErrInvalidChain, i, i-1)
		}
	}
	return nil
}
