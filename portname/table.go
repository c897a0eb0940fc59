package portname

import (
	"sync"
)

// Bucket holds the names of one namespace and protocol
type Bucket struct {
	Namespace Namespace
	Protocol  Protocol

	// mu is shared by every bucket of a Table
	mu *sync.RWMutex

	entries      map[int]Entry
	fullyScanned bool
}

// Get fetches a copy of the entry of port
func (b *Bucket) Get(port int) (Entry, bool) {
	b.mu.RLock()
	e, ok := b.entries[port]
	b.mu.RUnlock()
	return e, ok
}

// FullyScanned reports if the bucket holds everything its source knows,
// making a miss authoritative
func (b *Bucket) FullyScanned() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fullyScanned
}

// Len returns the number of entries, negative ones included
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// lookup fetches the entry of port together with the scan state
func (b *Bucket) lookup(port int) (e Entry, ok bool, scanned bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok = b.entries[port]
	return e, ok, b.fullyScanned
}

// insert replaces or adds the entry of port, b.mu must be held
func (b *Bucket) insert(port int, name string, found bool) Entry {
	e := newEntry(port, b.Protocol, name, found)
	b.entries[port] = e
	return e
}

// Table is the four buckets: service and program names, each for tcp and udp
type Table struct {
	sync.RWMutex

	buckets [2][2]*Bucket
}

// NewTable returns a table with empty, unscanned buckets
func NewTable() *Table {
	t := &Table{}

	for _, ns := range []Namespace{ServiceName, ProgramName} {
		for _, proto := range []Protocol{TCP, UDP} {
			t.buckets[ns][proto] = &Bucket{
				Namespace: ns,
				Protocol:  proto,
				mu:        &t.RWMutex,
				entries:   make(map[int]Entry),
			}
		}
	}

	return t
}

// Bucket returns the bucket of ns and proto, both must be valid
func (t *Table) Bucket(ns Namespace, proto Protocol) *Bucket {
	return t.buckets[ns][proto]
}

// Insert adds or overwrites the entry of port, a name that was not found
// is stored as ConfirmedAbsent
func (t *Table) Insert(ns Namespace, proto Protocol, port int, name string, found bool) Entry {
	t.Lock()
	defer t.Unlock()
	return t.buckets[ns][proto].insert(port, name, found)
}

// MarkScanned flags a bucket as complete
func (t *Table) MarkScanned(ns Namespace, proto Protocol) {
	t.Lock()
	t.buckets[ns][proto].fullyScanned = true
	t.Unlock()
}
