// Package trackingcopy implements the per-deploy copy-on-write view over a
// versioned Merkle store: a short-lived layer that records every read and
// accumulates a transform log without ever mutating the underlying trie.
package trackingcopy

import (
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trie"
)

// DefaultDepthLimit bounds query() path descent, guarding against
// pathological named-key cycles a malicious contract might construct.
const DefaultDepthLimit = 64

// Effect is the result of draining a tracking copy: the additive fold of
// every write/add it recorded, plus the log of every key it touched and
// how strongly.
type Effect struct {
	Transforms *key.AdditiveMap
	Ops        *OpLog
}

// TrackingCopy layers an ordered mutation log over a read-only trie.Reader.
// Reads consult the log first so a deploy observes its own pending writes;
// the underlying reader is never touched until commit() is called on its
// root with this copy's Transforms.
type TrackingCopy struct {
	reader     trie.Reader
	log        *key.AdditiveMap
	ops        *OpLog
	DepthLimit int
}

// New wraps reader in a fresh tracking copy with an empty log.
func New(reader trie.Reader) *TrackingCopy {
	return &TrackingCopy{
		reader:     reader,
		log:        key.NewAdditiveMap(),
		ops:        newOpLog(),
		DepthLimit: DefaultDepthLimit,
	}
}

// Reader exposes the root this copy is layered over, e.g. for proof
// generation against the unmodified base.
func (tc *TrackingCopy) Reader() trie.Reader { return tc.reader }

// value resolves k by folding its logged transform (if any) onto the
// reader's current value; with no logged transform it is a direct
// passthrough to the reader.
func (tc *TrackingCopy) value(k key.Key) (key.StoredValue, bool, error) {
	underlying, found := tc.reader.Get(k)
	t, ok := tc.log.Get(k)
	if !ok {
		return underlying, found, nil
	}
	applied, err := t.Apply(underlying, found)
	if err != nil {
		return nil, false, err
	}
	if applied == nil {
		return underlying, found, nil
	}
	return applied, true, nil
}

// Read returns the layered value at k — the log's view if k has a pending
// transform, otherwise the underlying store's value — and records a Read
// in the op log unless a stronger op is already recorded for k. A
// logged-but-failed transform (e.g. an Add against a type-mismatched
// value) surfaces its error here rather than being deferred to commit, so
// callers can react to it within the same deploy.
func (tc *TrackingCopy) Read(k key.Key) (key.StoredValue, bool, error) {
	v, found, err := tc.value(k)
	if err != nil {
		return nil, false, err
	}
	tc.ops.record(k, OpRead)
	return v, found, nil
}

// Write appends a Write transform for k, collapsing any prior pending
// write via Transform.Combine ("last write wins").
func (tc *TrackingCopy) Write(k key.Key, v key.StoredValue) error {
	if err := tc.log.Insert(k, key.Write{Value: v}); err != nil {
		return err
	}
	tc.ops.record(k, OpWrite)
	return nil
}

// Add folds t (expected to be one of the Add* transform constructors) into
// the log for k.
func (tc *TrackingCopy) Add(k key.Key, t key.Transform) error {
	if err := tc.log.Insert(k, t); err != nil {
		return err
	}
	tc.ops.record(k, OpAdd)
	return nil
}

// Effect drains the accumulated transform and op logs. The returned
// Transforms, applied via a StateProvider's Commit against this copy's
// root, must reproduce exactly the values Read observed (spec.md §4.3's
// invariant).
func (tc *TrackingCopy) Effect() Effect {
	return Effect{Transforms: tc.log, Ops: tc.ops}
}

// Fork returns a new TrackingCopy sharing this one's reader and a deep
// copy of its current log, so mutations on the fork never affect the
// parent. The engine forks once for payment→session and once for
// session→finalize (spec.md §2's data flow).
func (tc *TrackingCopy) Fork() *TrackingCopy {
	forked := key.NewAdditiveMap()
	for _, e := range tc.log.Entries() {
		// Entries already reflect fully-combined transforms; re-inserting
		// each one into a fresh map reproduces the same state without
		// aliasing the parent's internal maps.
		forked.Insert(e.Key, e.Transform)
	}
	return &TrackingCopy{
		reader:     tc.reader,
		log:        forked,
		ops:        tc.ops.clone(),
		DepthLimit: tc.DepthLimit,
	}
}
