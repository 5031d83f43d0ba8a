package wal

import (
	"encoding/binary"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mewdb/mew/internal/mewerr"
)

// Checkpointer archives replayed-and-superseded journal records to a
// rotating, gzip-compressed log so the live bbolt file can be truncated
// without losing history (spec.md §4.8 "the journal may be compacted
// once every record before a checkpoint has been durably applied").
// Rotation and retention are lumberjack's job; each rotated segment is
// additionally gzip'd, matching how a long-running service archives
// logs it no longer needs hot.
type Checkpointer struct {
	logger *lumberjack.Logger
}

// NewCheckpointer opens a rotating archive file at path.
func NewCheckpointer(path string, maxSizeMB, maxBackups int) *Checkpointer {
	return &Checkpointer{logger: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false, // this package gzip's explicitly below, not via lumberjack's gzip-on-rotate
	}}
}

// Archive writes every record up to and including upToLSN, gzip-framed,
// then truncates them out of the live journal.
func (c *Checkpointer) Archive(w *Writer, upToLSN uint64) error {
	records, err := w.Records()
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(c.logger)
	for _, r := range records {
		if r.LSN > upToLSN {
			break
		}
		line := []byte(r.Payload.Raw)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(line)))
		if _, err := gz.Write(lenBuf[:]); err != nil {
			return mewerr.Wrap(mewerr.IoError, err, "archiving journal record")
		}
		if _, err := gz.Write(line); err != nil {
			return mewerr.Wrap(mewerr.IoError, err, "archiving journal record")
		}
	}
	if err := gz.Close(); err != nil {
		return mewerr.Wrap(mewerr.IoError, err, "closing archive segment")
	}
	return w.truncateThrough(upToLSN)
}

// Close releases the underlying rotating file.
func (c *Checkpointer) Close() error { return c.logger.Close() }
