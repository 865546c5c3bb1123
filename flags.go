package walfile

import (
	"os"
	"strings"
	"syscall"
)

// OpenFlag selects how the data file is opened. Values map onto os.O_*.
type OpenFlag int

const (
	ReadOnly      OpenFlag = OpenFlag(os.O_RDONLY)
	WriteOnly     OpenFlag = OpenFlag(os.O_WRONLY)
	ReadWrite     OpenFlag = OpenFlag(os.O_RDWR)
	Create        OpenFlag = OpenFlag(os.O_CREATE)
	Exclusive     OpenFlag = OpenFlag(os.O_EXCL)
	Truncate      OpenFlag = OpenFlag(os.O_TRUNC)
	Append        OpenFlag = OpenFlag(os.O_APPEND)
	NonBlocking   OpenFlag = OpenFlag(syscall.O_NONBLOCK)
	SyncEachWrite OpenFlag = OpenFlag(os.O_SYNC)
)

const accessMask = OpenFlag(os.O_RDONLY | os.O_WRONLY | os.O_RDWR)

func (f OpenFlag) writable() bool {
	return f&accessMask != ReadOnly
}

func (f OpenFlag) readable() bool {
	return f&accessMask != WriteOnly
}

// sysFlags returns the flags the descriptor is opened with. Pre-image capture
// reads the file and apply writes at explicit offsets, so WriteOnly is opened
// read-write and Append is emulated by File.Write.
func (f OpenFlag) sysFlags() int {
	if f&accessMask == WriteOnly {
		f = f&^accessMask | ReadWrite
	}
	return int(f &^ Append)
}

// JournalFlag tunes journaling for a File or a single transaction.
type JournalFlag uint32

const (
	// NoLock skips range locking. Overlapping concurrent transactions are
	// then the caller's responsibility.
	NoLock JournalFlag = 1 << iota
	// NoRollback skips pre-image capture; Rollback fails with ErrNoPreImages.
	NoRollback
	// Linger defers the data fsync and record retirement to the next Sync
	// or autosync tick.
	Linger
)

func (f JournalFlag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&NoLock != 0 {
		parts = append(parts, "nolock")
	}
	if f&NoRollback != 0 {
		parts = append(parts, "norollback")
	}
	if f&Linger != 0 {
		parts = append(parts, "linger")
	}
	return strings.Join(parts, "|")
}

// CheckFlag tunes Check.
type CheckFlag uint32

const (
	// Cleanup reapplies in-progress records and empties the journal.
	Cleanup CheckFlag = 1 << iota
)

// TxState is the state flag set of a transaction.
type TxState uint8

const (
	TxCommitted TxState = 1 << iota
	TxRollbacking
	TxRollbacked
)

func (s TxState) String() string {
	switch {
	case s&TxRollbacked != 0:
		return "rollbacked"
	case s&TxRollbacking != 0:
		return "rollbacking"
	case s&TxCommitted != 0:
		return "committed"
	default:
		return "open"
	}
}
