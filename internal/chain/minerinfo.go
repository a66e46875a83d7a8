package chain

import (
	"slices"
	"sync"

	"code.dogecoin.org/kadchain/internal/spec"
)

// MinerInfo is the transaction pool of a miner.
// The active batch holds up to Batch transactions; the rest wait in queue.
type MinerInfo struct {
	ListenAddr string // mining service
	Batch      int
	// MUTEX state:
	mutex  sync.Mutex
	active []string
	queued []string
	mining bool
}

func NewMinerInfo(listenAddr string, batch int) *MinerInfo {
	if batch <= 0 {
		batch = spec.TransactionNumber
	}
	return &MinerInfo{ListenAddr: listenAddr, Batch: batch}
}

// Write adds a transaction to the pool and returns its state.
// Duplicates are ignored with an empty state. When the transaction spills
// to the queue and no mining attempt is running, the returned batch is a
// copy of the active transactions to mine; the caller must call Mined.
func (m *MinerInfo) Write(tx string) (state string, batch []string) {
	m.mutex.Lock() // vs Mined, Snapshot
	defer m.mutex.Unlock()
	if slices.Contains(m.active, tx) || slices.Contains(m.queued, tx) {
		return "", nil
	}
	if len(m.active) < m.Batch {
		m.active = append(m.active, tx)
		return spec.StateProcessed, nil
	}
	m.queued = append(m.queued, tx)
	if m.mining {
		return spec.StateQueued, nil
	}
	m.mining = true
	return spec.StateQueued, slices.Clone(m.active)
}

// Mined ends a mining attempt. On success the queue moves up into
// the active batch.
func (m *MinerInfo) Mined(ok bool) {
	m.mutex.Lock() // vs Write, Snapshot
	defer m.mutex.Unlock()
	m.mining = false
	if !ok {
		return
	}
	n := min(len(m.queued), m.Batch)
	m.active = slices.Clone(m.queued[:n])
	m.queued = slices.Clone(m.queued[n:])
}

func (m *MinerInfo) Snapshot() (active []string, queued []string) {
	m.mutex.Lock() // vs Write, Mined
	defer m.mutex.Unlock()
	return slices.Clone(m.active), slices.Clone(m.queued)
}
