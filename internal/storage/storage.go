// Package storage reads input files and writes split output to disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/csvsplit/internal/core"
)

var (
	// ErrFileNotFound is returned by LoadFile for a missing path.
	ErrFileNotFound = errors.New("file not found")

	// ErrRead is returned by LoadFile when the file exists but cannot be read.
	ErrRead = errors.New("read error")
)

// SaveError reports the records SaveRecords could not write.
// The accompanying SaveResult still lists the ones that succeeded.
type SaveError struct {
	Dir    string
	Failed []core.FailedWrite
	Total  int
}

func (e *SaveError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("write failed: %s in %s: %s", e.Failed[0].Name, e.Dir, e.Failed[0].Error)
	}
	return fmt.Sprintf("write failed: %d of %d files in %s", len(e.Failed), e.Total, e.Dir)
}

// Options configures an FS. Zero values select the defaults.
type Options struct {
	MaxFileSize int64       // Bytes; 0 means unlimited
	PermFile    os.FileMode // Default 0o644
	PermDir     os.FileMode // Default 0o755
}

// FS is a core.FileStore on the local filesystem.
type FS struct {
	maxSize int64
	permF   os.FileMode
	permD   os.FileMode
}

var _ core.FileStore = (*FS)(nil)

// New returns an FS configured by opts.
func New(opts Options) *FS {
	st := &FS{maxSize: opts.MaxFileSize, permF: opts.PermFile, permD: opts.PermDir}
	if st.permF == 0 {
		st.permF = 0o644
	}
	if st.permD == 0 {
		st.permD = 0o755
	}
	return st
}

// LoadFile reads path fully into memory.
func (s *FS) LoadFile(path string) (core.RawFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return core.RawFile{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return core.RawFile{}, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}
	if info.IsDir() {
		return core.RawFile{}, fmt.Errorf("%w: %s is a directory", ErrRead, path)
	}
	if s.maxSize > 0 && info.Size() > s.maxSize {
		return core.RawFile{}, fmt.Errorf("%w: %s is %d bytes, limit %d", core.ErrFileTooLarge, path, info.Size(), s.maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return core.RawFile{}, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}

	return core.RawFile{
		Path: path,
		Name: filepath.Base(path),
		Data: data,
	}, nil
}

// SaveRecords creates dir and writes each record into it atomically. A
// failed record does not stop the others. When any record fails the error
// is a *SaveError; when ctx ends the remaining records are reported as
// failed and ctx's error is returned.
func (s *FS) SaveRecords(ctx context.Context, records []core.OutputRecord, dir string) (core.SaveResult, error) {
	result := core.SaveResult{Dir: dir, Created: make([]string, 0, len(records))}

	if err := os.MkdirAll(dir, s.permD); err != nil {
		for _, rec := range records {
			result.Failed = append(result.Failed, core.FailedWrite{Name: rec.Name, Error: err.Error()})
		}
		return result, &SaveError{Dir: dir, Failed: result.Failed, Total: len(records)}
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			for _, rest := range records[i:] {
				result.Failed = append(result.Failed, core.FailedWrite{Name: rest.Name, Error: err.Error()})
			}
			return result, err
		}

		if err := s.writeRecord(ctx, dir, rec); err != nil {
			result.Failed = append(result.Failed, core.FailedWrite{Name: rec.Name, Error: err.Error()})
			continue
		}
		result.Created = append(result.Created, filepath.Join(dir, rec.Name))
	}

	if len(result.Failed) > 0 {
		return result, &SaveError{Dir: dir, Failed: result.Failed, Total: len(records)}
	}
	_ = syncDir(dir)
	return result, nil
}

func (s *FS) writeRecord(ctx context.Context, dir string, rec core.OutputRecord) error {
	name := filepath.Base(rec.Name)
	if name != rec.Name || name == "." || name == ".." || strings.TrimSpace(name) == "" {
		return fmt.Errorf("invalid output name %q", rec.Name)
	}
	return s.writeAtomic(ctx, filepath.Join(dir, name), bytes.NewReader(rec.Content))
}

func (s *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, s.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := io.Copy(tmp, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
