// Package journal implements the on-disk journal of a data file.
//
// A Store is a directory, by default <dir>/.<base>.jio next to the data file,
// holding:
//
//   - lock: an 8-byte little-endian transaction id counter, updated under an
//     exclusive fcntl lock so that processes sharing the file never reuse an id.
//   - <id>.jr: one record per committed transaction, named by its zero-padded
//     hex id so lexical order equals append order.
//
// Records are written to a temp file, fsynced, renamed into place and the
// directory is fsynced before the transaction touches the data file. Once the
// data is durable the record's state byte is flipped to applied (fsynced) and
// the file unlinked. A crash between the two leaves a pending record that the
// checker reapplies; a crash after the flip leaves an applied record that is
// only removed.
//
// Record bodies may be compressed with zstd or LZ4; the codec is recorded per
// record and falls back to none when compression does not pay off.
package journal
