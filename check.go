package walfile

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/hupe1980/walfile/internal/fsck"
	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/internal/resource"
)

// Report is the outcome of Check. Every record is counted in Total and in
// exactly one of Invalid, InProgress, Broken, Corrupt or Complete.
type Report struct {
	Total       int
	Invalid     int // not a journal record
	InProgress  int // valid and not yet applied
	Broken      int // truncated or inconsistent
	Corrupt     int // checksum mismatch
	Reapplied   int // in-progress records written back by Cleanup
	Complete    int // applied but not yet removed
	Quarantined int // records copied to the quarantine store
}

// Check scans the journal of the file at path after an unclean shutdown.
//
// Without Cleanup it only reports. With Cleanup it reapplies in-progress
// records in transaction order, fsyncing the file after each, and empties the
// journal. No process may use the file while Check runs: close every File on
// path first. Repair uses its own descriptor, and closing it releases all POSIX
// record locks this process holds on the file.
func Check(ctx context.Context, path string, flags CheckFlag, opts ...Option) (Report, error) {
	o := applyOptions(opts)
	start := time.Now()

	dir := o.journalDir
	if dir == "" {
		dir = journal.DefaultDir(path)
	}

	prefix := o.quarantinePrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryLimit,
		MaxWorkers:         int64(o.workers),
		IOLimitBytesPerSec: o.ioLimit,
	})

	fr, err := fsck.Run(ctx, path, dir, fsck.Options{
		FS:               o.fs,
		Cleanup:          flags&Cleanup != 0,
		Resources:        rc,
		Quarantine:       o.quarantine,
		QuarantinePrefix: prefix,
		Logger:           o.logger.Logger,
	})
	report := Report(fr)

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = &PathError{Op: "check", Path: dir, Err: err}
		} else {
			err = translateError(err)
		}
	}

	o.metricsCollector.RecordCheck(report, time.Since(start), err)
	o.logger.LogCheck(ctx, path, report, err)
	return report, err
}
