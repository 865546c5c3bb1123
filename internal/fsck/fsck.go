package fsck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/walfile/blobstore"
	"github.com/hupe1980/walfile/internal/fs"
	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Class is the verdict for one journal record.
type Class uint8

const (
	ClassInvalid Class = iota
	ClassBroken
	ClassCorrupt
	ClassComplete
	ClassInProgress
)

func (c Class) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassBroken:
		return "broken"
	case ClassCorrupt:
		return "corrupt"
	case ClassComplete:
		return "complete"
	case ClassInProgress:
		return "in-progress"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Report counts records by class.
type Report struct {
	Total       int
	Invalid     int
	InProgress  int
	Broken      int
	Corrupt     int
	Reapplied   int
	Complete    int
	Quarantined int
}

// Options configures a check run.
type Options struct {
	// FS defaults to fs.Default.
	FS fs.FileSystem

	// Cleanup repairs the data file and empties the journal.
	Cleanup bool

	// Resources bounds workers, scan memory and repair IO. May be nil.
	Resources *resource.Controller

	// Quarantine receives unrecoverable records before removal. May be nil.
	Quarantine blobstore.Store

	// QuarantinePrefix is prepended to quarantined record names.
	QuarantinePrefix string

	Logger *slog.Logger
}

// Classify maps a Decode result onto a Class.
func Classify(rec *journal.Record, err error) Class {
	switch {
	case err == nil && rec.State == journal.StateApplied:
		return ClassComplete
	case err == nil:
		return ClassInProgress
	case errors.Is(err, journal.ErrCorrupt):
		return ClassCorrupt
	case errors.Is(err, journal.ErrBroken):
		return ClassBroken
	default:
		return ClassInvalid
	}
}

type verdict struct {
	id      uint64
	class   Class
	rec     *journal.Record
	raw     []byte
	charged int64
	cause   error
}

type checker struct {
	opts     Options
	fsys     fs.FileSystem
	store    *journal.Store
	dataPath string
	data     fs.File
	report   Report
}

// Run checks the journal stored in dir for the data file at dataPath.
// A missing journal directory yields an error matching os.ErrNotExist.
func Run(ctx context.Context, dataPath, dir string, opts Options) (Report, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.Default
	}

	store, err := journal.Open(fsys, dir, journal.Options{})
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = store.Close() }()

	c := &checker{opts: opts, fsys: fsys, store: store, dataPath: dataPath}
	defer c.closeData()

	ids, err := store.List()
	if err != nil {
		return Report{}, err
	}

	batch := opts.Resources.Workers()
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		verdicts, err := c.verify(ctx, ids[start:end])
		if err != nil {
			return c.report, err
		}
		for i := range verdicts {
			err := c.resolve(ctx, &verdicts[i])
			opts.Resources.ReleaseMemory(verdicts[i].charged)
			verdicts[i] = verdict{}
			if err != nil {
				c.releaseAll(verdicts[i+1:])
				return c.report, err
			}
		}
	}

	if c.opts.Logger != nil {
		c.opts.Logger.Debug("journal check finished",
			"dir", dir,
			"total", c.report.Total,
			"in_progress", c.report.InProgress,
			"reapplied", c.report.Reapplied,
		)
	}
	return c.report, nil
}

func (c *checker) releaseAll(vs []verdict) {
	for _, v := range vs {
		c.opts.Resources.ReleaseMemory(v.charged)
	}
}

// verify loads and classifies ids in parallel; results keep the input order.
func (c *checker) verify(ctx context.Context, ids []uint64) ([]verdict, error) {
	rc := c.opts.Resources
	out := make([]verdict, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		if err := rc.AcquireWorker(gctx); err != nil {
			break
		}
		g.Go(func() error {
			defer rc.ReleaseWorker()
			v, err := c.load(id)
			out[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		c.releaseAll(out)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		c.releaseAll(out)
		return nil, err
	}
	return out, nil
}

func (c *checker) load(id uint64) (verdict, error) {
	rc := c.opts.Resources
	v := verdict{id: id}

	size, err := c.store.Size(id)
	if err != nil {
		return v, err
	}
	if err := rc.AcquireMemory(size); err != nil {
		return v, err
	}
	v.charged = size

	raw, err := c.store.ReadRaw(id)
	if err != nil {
		return v, err
	}

	rec, derr := journal.Decode(raw)
	v.class = Classify(rec, derr)
	v.cause = derr

	switch v.class {
	case ClassInProgress:
		// Decoded ops are a second copy of the payload.
		extra := rec.PayloadSize()
		if err := rc.AcquireMemory(extra); err != nil {
			return v, err
		}
		v.charged += extra
		v.rec = rec
	case ClassComplete:
	default:
		v.raw = raw
	}
	return v, nil
}

func (c *checker) resolve(ctx context.Context, v *verdict) error {
	r := &c.report
	r.Total++
	switch v.class {
	case ClassInvalid:
		r.Invalid++
	case ClassBroken:
		r.Broken++
	case ClassCorrupt:
		r.Corrupt++
	case ClassComplete:
		r.Complete++
	case ClassInProgress:
		r.InProgress++
	}

	if c.opts.Logger != nil {
		c.opts.Logger.Debug("journal record checked", "id", v.id, "class", v.class.String(), "cause", v.cause)
	}

	if !c.opts.Cleanup {
		return nil
	}

	switch v.class {
	case ClassInProgress:
		if err := c.reapply(ctx, v.rec); err != nil {
			return err
		}
		if err := c.store.Retire(v.id); err != nil {
			return err
		}
		r.Reapplied++
		return nil
	case ClassComplete:
		return c.store.Remove(v.id)
	default:
		if c.opts.Quarantine != nil {
			name := fmt.Sprintf("%s%016x.%s.jr", c.opts.QuarantinePrefix, v.id, v.class)
			if err := c.opts.Quarantine.Put(ctx, name, v.raw); err != nil {
				return fmt.Errorf("quarantine record %d: %w", v.id, err)
			}
			r.Quarantined++
		}
		return c.store.Remove(v.id)
	}
}

// reapply writes the record's ops to the data file and syncs it.
func (c *checker) reapply(ctx context.Context, rec *journal.Record) error {
	if c.data == nil {
		f, err := c.fsys.OpenFile(c.dataPath, os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		c.data = f
	}

	w := resource.NewRateLimitedWriterAt(ctx, c.data, c.opts.Resources)
	for _, op := range rec.Ops {
		if _, err := w.WriteAt(op.Data, op.Off); err != nil {
			return err
		}
	}
	if rec.HasTruncate {
		if err := c.data.Truncate(rec.TruncateSize); err != nil {
			return err
		}
	}
	return c.data.Sync()
}

func (c *checker) closeData() {
	if c.data != nil {
		_ = c.data.Close()
	}
}
