package walfile

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/walfile/internal/journal"
)

type opKind uint8

const (
	opRead opKind = iota
	opWrite
)

type operation struct {
	kind opKind
	off  int64
	data []byte
}

// emptyViews is returned by Views before commit. Callers must not append to it.
var emptyViews = [][]byte{}

// Tx is a transaction on a File: an ordered list of reads and writes applied
// atomically by Commit.
//
// A Tx must be released with Release once it is no longer needed.
type Tx struct {
	f     *File
	flags JournalFlag

	mu        sync.Mutex
	ops       []operation
	state     atomic.Uint32 // TxState; readable without mu while a commit runs
	released  bool
	counted   bool // holds a slot in the file's open transaction count
	id        uint64
	preImages []journal.Op
	preSize   int64
	postSize  int64
}

// Begin starts a transaction. flags are combined with the file's journal
// flags.
func (f *File) Begin(flags JournalFlag) *Tx {
	tx := &Tx{f: f, flags: f.jflags | flags}
	f.stateMu.Lock()
	if !f.closed {
		f.openTx++
		tx.counted = true
	}
	f.stateMu.Unlock()
	return tx
}

// Transaction runs fn inside a transaction. The transaction is committed when
// fn returns nil and released in every case. If fn fails after committing the
// transaction itself, the commit is rolled back.
func (f *File) Transaction(ctx context.Context, flags JournalFlag, fn func(tx *Tx) error) error {
	tx := f.Begin(flags)
	defer tx.Release()

	if err := fn(tx); err != nil {
		if tx.Committed() && !tx.Rollbacked() && tx.flags&NoRollback == 0 {
			if rerr := tx.Rollback(ctx); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	if tx.Committed() {
		return nil
	}
	return tx.Commit(ctx)
}

// checkOpen validates that operations can still be added. tx.mu must be held.
func (tx *Tx) checkOpen() error {
	switch {
	case tx.released:
		return ErrReleased
	case tx.getState()&TxCommitted != 0:
		return ErrCommitted
	case tx.f.isClosed():
		return ErrClosed
	}
	return nil
}

// Read captures length bytes at off from the live file now and queues them as
// a view, exposed by Views once the transaction commits. The view is short at
// end of file.
func (tx *Tx) Read(length int, off int64) (bool, error) {
	if length < 0 || off < 0 {
		return false, ErrInvalidArgument
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return false, err
	}

	buf, err := readFullAt(tx.f.file, length, off)
	if err != nil {
		return false, &PathError{Op: "read", Path: tx.f.path, Err: err}
	}
	tx.ops = append(tx.ops, operation{kind: opRead, off: off, data: buf})
	return true, nil
}

// Write queues a copy of p to be written at off on commit.
func (tx *Tx) Write(p []byte, off int64) error {
	if off < 0 {
		return ErrInvalidArgument
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if tx.f.store == nil {
		return ErrReadOnly
	}
	tx.ops = append(tx.ops, operation{kind: opWrite, off: off, data: slices.Clone(p)})
	return nil
}

func (tx *Tx) writes() []journal.Op {
	var out []journal.Op
	for _, op := range tx.ops {
		if op.kind == opWrite {
			out = append(out, journal.Op{Off: op.off, Data: op.data})
		}
	}
	return out
}

// Commit applies every queued write atomically and durably.
//
// On failure the returned *TxError matches ErrAtomicityPreserved when the
// file was not touched, or ErrAtomicityBroken when it may be partially
// written; in that case run Check with Cleanup before trusting the file.
// ctx is honoured only until the journal record is written.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.released {
		return preserved("commit", ErrReleased)
	}
	if tx.getState()&TxCommitted != 0 {
		return preserved("commit", ErrCommitted)
	}

	start := time.Now()
	writes := tx.writes()

	if len(writes) == 0 {
		if tx.f.isClosed() {
			return preserved("commit", ErrClosed)
		}
		tx.markCommitted()
		return nil
	}

	res, err := tx.f.commit(ctx, commitRequest{
		op:      "commit",
		flags:   tx.flags,
		writes:  writes,
		capture: tx.flags&NoRollback == 0,
	})
	tx.f.observeCommit(ctx, res.id, len(writes), res.bytes, start, err)
	if err != nil {
		return err
	}

	tx.id = res.id
	tx.preImages = res.preImages
	tx.preSize = res.preSize
	tx.postSize = res.preSize
	for _, w := range writes {
		tx.postSize = max(tx.postSize, w.Off+int64(len(w.Data)))
	}
	tx.markCommitted()
	return nil
}

func (tx *Tx) markCommitted() {
	tx.setState(tx.getState() | TxCommitted)
	if tx.counted {
		tx.counted = false
		tx.f.txClosed()
	}
}

// Rollback restores the bytes the commit overwrote and undoes any growth of
// the file. It is only valid after a successful commit and fails with the
// same preserved/broken tiers as Commit.
func (tx *Tx) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	switch {
	case tx.released:
		return preserved("rollback", ErrReleased)
	case tx.getState()&TxCommitted == 0, tx.getState()&TxRollbacked != 0:
		return preserved("rollback", ErrNotCommitted)
	case tx.flags&NoRollback != 0:
		return preserved("rollback", ErrNoPreImages)
	}

	start := time.Now()
	tx.setState(tx.getState() | TxRollbacking)

	undo := make([]journal.Op, 0, len(tx.preImages))
	for i := len(tx.preImages) - 1; i >= 0; i-- {
		undo = append(undo, tx.preImages[i])
	}

	req := commitRequest{
		op: "rollback",
		// Pre-images are only kept in memory; the undo record itself cannot
		// be rolled back.
		flags:  tx.flags &^ Linger,
		writes: undo,
	}
	if tx.postSize > tx.preSize {
		req.hasTruncate = true
		req.truncateSize = tx.preSize
	}

	var err error
	if len(req.writes) > 0 || req.hasTruncate {
		_, err = tx.f.commit(ctx, req)
	}

	d := time.Since(start)
	tx.f.metrics.RecordRollback(d, err)
	tx.f.logger.WithTx(tx.id).LogRollback(ctx, err)

	tx.setState(tx.getState() &^ TxRollbacking)
	if err != nil {
		return err
	}
	tx.setState(tx.getState() | TxRollbacked)
	tx.preImages = nil
	return nil
}

// Views returns the buffers captured by Read, in call order, once the
// transaction has committed. Before that it returns an empty slice.
func (tx *Tx) Views() [][]byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.released || tx.getState()&TxCommitted == 0 {
		return emptyViews
	}
	var out [][]byte
	for _, op := range tx.ops {
		if op.kind == opRead {
			out = append(out, slices.Clone(op.data))
		}
	}
	if out == nil {
		return emptyViews
	}
	return out
}

// Release drops the transaction's buffers. File contents are not touched.
// Release is idempotent; later operations fail with ErrReleased.
func (tx *Tx) Release() {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.released {
		return
	}
	tx.released = true
	tx.ops = nil
	tx.preImages = nil
	if tx.counted {
		tx.counted = false
		tx.f.txClosed()
	}
}

// Committed reports whether the transaction has been committed.
func (tx *Tx) Committed() bool { return tx.State()&TxCommitted != 0 }

// Rollbacked reports whether the transaction has been rolled back.
func (tx *Tx) Rollbacked() bool { return tx.State()&TxRollbacked != 0 }

// Rollbacking reports whether a rollback is in flight.
func (tx *Tx) Rollbacking() bool { return tx.State()&TxRollbacking != 0 }

// State returns the state flag set.
func (tx *Tx) State() TxState { return tx.getState() }

func (tx *Tx) getState() TxState { return TxState(tx.state.Load()) }

// setState is only called with tx.mu held.
func (tx *Tx) setState(s TxState) { tx.state.Store(uint32(s)) }

// ID returns the transaction id assigned by the journal at commit, or 0.
func (tx *Tx) ID() uint64 {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.id
}

// Len returns the number of queued operations.
func (tx *Tx) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.ops)
}
