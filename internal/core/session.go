package core

import (
	"context"
	"sync"

	"github.com/JonMunkholm/csvsplit/internal/charset"
)

// Inspect detects file's encoding, decodes it and summarises the result.
// The parsed table is returned for callers that go on to split it.
func Inspect(file RawFile) (FileInfo, ParsedTable, error) {
	det := charset.Detect(file.Data)

	text, err := charset.Decode(file.Data, det.Tag)
	if err != nil {
		return FileInfo{}, ParsedTable{}, err
	}
	table := ParseTable(text)

	return FileInfo{
		Name:               file.Name,
		Path:               file.Path,
		Size:               file.Size(),
		SizeLabel:          FormatFileSize(file.Size()),
		Detection:          det,
		TotalLines:         table.TotalLines(),
		DataRows:           table.Len(),
		SuggestedChunkSize: SuggestChunkSize(table.Len()),
	}, table, nil
}

// Session holds one loaded file between inspection and splitting.
// It is safe for concurrent use; Load replaces everything it holds.
type Session struct {
	mu     sync.RWMutex
	info   FileInfo
	table  ParsedTable
	loaded bool
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Load replaces the session's file. On error the session is left empty.
func (s *Session) Load(file RawFile) (FileInfo, error) {
	info, table, err := Inspect(file)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	if err != nil {
		return FileInfo{}, err
	}

	s.info = info
	s.table = table
	s.loaded = true
	return info, nil
}

// Split splits the loaded table at size rows per record, named after the
// loaded file and encoded in its detected encoding. A source BOM is
// repeated on every record unless opts say otherwise.
func (s *Session) Split(ctx context.Context, size int, opts ...SplitOption) ([]OutputRecord, error) {
	s.mu.RLock()
	if !s.loaded {
		s.mu.RUnlock()
		return nil, ErrNoFileLoaded
	}
	table := s.table
	det := s.info.Detection
	base := BaseName(s.info.Name)
	s.mu.RUnlock()

	opts = append([]SplitOption{WithBOM(det.BOM)}, opts...)
	return Split(ctx, table, size, base, det.Tag, opts...)
}

// Reset forgets the loaded file.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.info = FileInfo{}
	s.table = ParsedTable{}
	s.loaded = false
}
