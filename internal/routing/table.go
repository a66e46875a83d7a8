package routing

import (
	"math/bits"

	"code.dogecoin.org/kadchain/internal/spec"
)

// entry is a contact at its offset within a bucket.
type entry struct {
	slot uint64
	info spec.NodeInfo
}

// Table holds contacts in NBuckets XOR-distance buckets.
// It is not safe for concurrent use; the owning node locks around it.
type Table struct {
	self      spec.NodeID
	unbounded bool // bootstraps keep every contact
	buckets   [spec.NBuckets][]entry
}

func New(self spec.NodeID, bootstrap bool) *Table {
	return &Table{self: self, unbounded: bootstrap}
}

// locate returns the bucket and slot of id relative to self.
// ok is false for self (distance zero).
func (t *Table) locate(id spec.NodeID) (bucket int, slot uint64, ok bool) {
	d := spec.Distance(t.self, id)
	if d == 0 {
		return 0, 0, false
	}
	bucket = bits.Len64(d) - 1
	if bucket >= spec.NBuckets {
		return 0, 0, false
	}
	return bucket, d - 1<<bucket, true
}

// Insert adds a contact if its slot is free and the bucket has room.
// Returns false when the contact was dropped.
func (t *Table) Insert(info spec.NodeInfo) bool {
	if !info.ID.IsValid() {
		return false
	}
	b, slot, ok := t.locate(info.ID)
	if !ok {
		return false
	}
	for _, e := range t.buckets[b] {
		if e.slot == slot {
			return false
		}
	}
	if !t.unbounded && len(t.buckets[b]) >= spec.KSize {
		return false
	}
	t.buckets[b] = append(t.buckets[b], entry{slot: slot, info: info})
	return true
}

func (t *Table) Lookup(id spec.NodeID) (spec.NodeInfo, bool) {
	b, slot, ok := t.locate(id)
	if !ok {
		return spec.NodeInfo{}, false
	}
	for _, e := range t.buckets[b] {
		if e.slot == slot {
			return e.info, true
		}
	}
	return spec.NodeInfo{}, false
}

// Closest gathers the contacts in target's bucket, widening to the two
// adjacent buckets when that bucket is empty. A positive limit caps the
// result.
func (t *Table) Closest(target spec.NodeID, limit int) []spec.NodeInfo {
	b, _, ok := t.locate(target)
	if !ok {
		return nil
	}
	var res []spec.NodeInfo
	gather := func(i int) {
		if i < 0 || i >= spec.NBuckets {
			return
		}
		for _, e := range t.buckets[i] {
			res = append(res, e.info)
		}
	}
	gather(b)
	if len(res) == 0 {
		gather(b - 1)
		gather(b + 1)
	}
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

// Remove erases a contact. No rebalancing.
func (t *Table) Remove(id spec.NodeID) bool {
	b, slot, ok := t.locate(id)
	if !ok {
		return false
	}
	for i, e := range t.buckets[b] {
		if e.slot == slot {
			t.buckets[b] = append(t.buckets[b][:i], t.buckets[b][i+1:]...)
			return true
		}
	}
	return false
}

// Quantities is the occupancy of each bucket.
func (t *Table) Quantities() []int {
	q := make([]int, spec.NBuckets)
	for i, b := range t.buckets {
		q[i] = len(b)
	}
	return q
}

// Neighbours lists every contact, nearest bucket first.
func (t *Table) Neighbours() []spec.NodeInfo {
	var res []spec.NodeInfo
	for _, b := range t.buckets {
		for _, e := range b {
			res = append(res, e.info)
		}
	}
	return res
}

func (t *Table) Len() int {
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}
