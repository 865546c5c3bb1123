package walfile

import (
	"context"
	"math"
	"time"

	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/internal/lock"
	"github.com/hupe1980/walfile/internal/span"
)

// commitRequest is one unit of the write-ahead protocol. Commit and Rollback
// both go through it.
type commitRequest struct {
	op           string // "commit" or "rollback"
	flags        JournalFlag
	writes       []journal.Op
	hasTruncate  bool
	truncateSize int64
	capture      bool
}

type commitResult struct {
	id        uint64
	preImages []journal.Op
	preSize   int64
	bytes     int64
}

func (r *commitRequest) ranges() []span.Range {
	out := make([]span.Range, 0, len(r.writes)+1)
	for _, w := range r.writes {
		out = append(out, span.Range{Off: w.Off, Len: int64(len(w.Data))})
	}
	if r.hasTruncate {
		out = append(out, span.Range{Off: r.truncateSize, Len: math.MaxInt64 - r.truncateSize})
	}
	return out
}

func (r *commitRequest) bytes() int64 {
	var n int64
	for _, w := range r.writes {
		n += int64(len(w.Data))
	}
	return n
}

// commit runs the write-ahead protocol:
//
//  1. lock the affected ranges
//  2. capture pre-images, first seen wins
//  3. append the journal record durably
//  4. apply the writes in order
//  5. fsync the file, unless lingering
//  6. retire the record
//
// Errors before step 4 leave the file untouched and are reported as
// preserved. Errors from step 4 on are reported as broken and leave the record
// pending for Check.
func (f *File) commit(ctx context.Context, req commitRequest) (res commitResult, err error) {
	if f.isClosed() {
		return res, preserved(req.op, ErrClosed)
	}
	if f.store == nil {
		return res, preserved(req.op, ErrReadOnly)
	}
	if err := ctx.Err(); err != nil {
		return res, preserved(req.op, err)
	}

	if req.flags&NoLock == 0 {
		held, err := f.locks.Lock(ctx, req.ranges())
		if err != nil {
			return res, preserved(req.op, err)
		}
		defer func(h *lock.Held) {
			if uerr := h.Unlock(); uerr != nil {
				f.logger.Warn("range unlock failed", "error", uerr)
			}
		}(held)
	}

	res.bytes = req.bytes()
	res.preSize, err = f.Size()
	if err != nil {
		return res, preserved(req.op, err)
	}

	if req.capture {
		res.preImages, err = f.capturePreImages(req.writes)
		if err != nil {
			return res, preserved(req.op, err)
		}
	}

	// Last point where cancellation is honoured.
	if err := ctx.Err(); err != nil {
		return res, preserved(req.op, err)
	}

	res.id, err = f.store.NextID()
	if err != nil {
		return res, preserved(req.op, err)
	}
	rec := &journal.Record{
		ID:           res.id,
		Ops:          req.writes,
		HasTruncate:  req.hasTruncate,
		TruncateSize: req.truncateSize,
	}
	if _, err := f.store.Append(rec); err != nil {
		_ = f.store.Remove(res.id)
		return res, preserved(req.op, err)
	}

	if err := f.apply(rec); err != nil {
		return res, broken(req.op, err)
	}

	if req.flags&Linger != 0 {
		f.linger(res.id, res.bytes)
		return res, nil
	}

	// Lingering records are older than this one and may cover the same
	// bytes, so they are retired with it rather than left for replay.
	f.syncMu.Lock()
	defer f.syncMu.Unlock()
	if _, _, err := f.flushLocked(); err != nil {
		return res, broken(req.op, err)
	}
	if err := f.store.Retire(res.id); err != nil {
		return res, broken(req.op, err)
	}
	return res, nil
}

// capturePreImages reads the current bytes under every write. Bytes already
// captured for an earlier write are skipped so overlapping writes restore the
// state from before the commit.
func (f *File) capturePreImages(writes []journal.Op) ([]journal.Op, error) {
	cov := span.NewCoverage()
	var out []journal.Op
	for _, w := range writes {
		r := span.Range{Off: w.Off, Len: int64(len(w.Data))}
		for _, free := range cov.Claim(r) {
			buf, err := readFullAt(f.file, int(free.Len), free.Off)
			if err != nil {
				return nil, err
			}
			if len(buf) == 0 {
				continue
			}
			out = append(out, journal.Op{Off: free.Off, Data: buf})
		}
	}
	return out, nil
}

// apply writes rec to the live file in insertion order, truncating last.
func (f *File) apply(rec *journal.Record) error {
	for _, op := range rec.Ops {
		if _, err := f.file.WriteAt(op.Data, op.Off); err != nil {
			return err
		}
	}
	if rec.HasTruncate {
		return f.file.Truncate(rec.TruncateSize)
	}
	return nil
}

func (f *File) observeCommit(ctx context.Context, id uint64, ops int, bytes int64, start time.Time, err error) {
	d := time.Since(start)
	f.metrics.RecordCommit(ops, bytes, d, err)
	f.logger.WithTx(id).LogCommit(ctx, ops, bytes, d, err)
}
