package storage

import (
	"bufio"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

const snapshotMagic = "MOONVW01"

// SnapshotFile persists the memory engine in a single file
type SnapshotFile struct {
	filename string
	logger   *zap.Logger
}

// NewSnapshotFile creates a snapshot file handle for filename
func NewSnapshotFile(filename string, logger *zap.Logger) *SnapshotFile {
	return &SnapshotFile{
		filename: filename,
		logger:   logger,
	}
}

// Save performs an atomic save operation through a temporary file
func (f *SnapshotFile) Save(db *ShardedMapStorage) error {
	start := time.Now()
	tmpFile := f.filename + ".tmp"

	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck
	writer := bufio.NewWriterSize(file, 1024*1024)

	if _, err := writer.WriteString(snapshotMagic); err != nil {
		return err
	}

	if err := db.Snapshot(writer); err != nil {
		return err
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	if err := file.Sync(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpFile, f.filename); err != nil {
		return err
	}

	f.logger.Info("snapshot saved",
		zap.String("file", f.filename),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Load restores db from the file. A missing file is an empty engine
func (f *SnapshotFile) Load(db *ShardedMapStorage) error {
	file, err := os.Open(f.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close() //nolint:errcheck

	reader := bufio.NewReader(file)

	header := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(reader, header); err != nil {
		return err
	}
	if string(header) != snapshotMagic {
		f.logger.Warn("invalid snapshot header, starting empty", zap.String("header", string(header)))
		return nil
	}

	start := time.Now()
	if err := db.Restore(reader); err != nil {
		return err
	}

	f.logger.Info("snapshot loaded", zap.Duration("duration", time.Since(start)))
	return nil
}
