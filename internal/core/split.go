package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvsplit/internal/charset"
)

// Chunk is a window [Start, End) over a table's data rows.
type Chunk struct {
	Index int // 1-based sequence index
	Start int
	End   int
}

// Len returns the number of rows in the window.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Plan computes the row windows for rowCount rows at size rows per chunk.
// It returns ceil(rowCount/size) windows; all but the last hold exactly size
// rows and the last holds between 1 and size.
func Plan(rowCount, size int) ([]Chunk, error) {
	if rowCount <= 0 {
		return nil, ErrEmptyTable
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}

	count := (rowCount + size - 1) / size
	chunks := make([]Chunk, count)
	for i := range chunks {
		start := i * size
		chunks[i] = Chunk{
			Index: i + 1,
			Start: start,
			End:   min(start+size, rowCount),
		}
	}
	return chunks, nil
}

type splitOptions struct {
	progress func(done, total int)
	workers  int
	bom      bool
}

// SplitOption configures Split.
type SplitOption func(*splitOptions)

// WithProgress registers fn to be called after each finished chunk with the
// number of chunks done so far and the total. Calls are serialised.
func WithProgress(fn func(done, total int)) SplitOption {
	return func(o *splitOptions) {
		o.progress = fn
	}
}

// WithWorkers builds up to n chunks concurrently. Values below 2 keep the
// split on the calling goroutine. Output order is unaffected.
func WithWorkers(n int) SplitOption {
	return func(o *splitOptions) {
		o.workers = n
	}
}

// WithBOM prefixes every record with the encoding's byte-order mark.
func WithBOM(on bool) SplitOption {
	return func(o *splitOptions) {
		o.bom = on
	}
}

// Split partitions table's rows into records of at most size rows, each
// starting with the header line and encoded as tag. Records are named
// {baseName}_part{i}.csv.
//
// Split does no I/O. It checks ctx between chunks; if ctx ends first, or any
// chunk fails to encode, it returns nil records and the error.
func Split(ctx context.Context, table ParsedTable, size int, baseName string, tag charset.Tag, opts ...SplitOption) ([]OutputRecord, error) {
	o := splitOptions{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	if !tag.Valid() {
		return nil, fmt.Errorf("%w: %q", charset.ErrUnknownTag, string(tag))
	}

	chunks, err := Plan(table.Len(), size)
	if err != nil {
		return nil, err
	}

	records := make([]OutputRecord, len(chunks))
	report := progressReporter(o.progress, len(chunks))

	if o.workers < 2 {
		for i, c := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := buildRecord(table, c, baseName, tag, o.bom)
			if err != nil {
				return nil, err
			}
			records[i] = rec
			report()
		}
		return records, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := buildRecord(table, c, baseName, tag, o.bom)
			if err != nil {
				return err
			}
			records[i] = rec
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// errgroup cancels gctx only on error; a parent cancel racing the last chunk still aborts.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func buildRecord(table ParsedTable, c Chunk, baseName string, tag charset.Tag, bom bool) (OutputRecord, error) {
	var b strings.Builder
	n := len(table.Header) + 1
	for _, row := range table.Rows[c.Start:c.End] {
		n += len(row) + 1
	}
	b.Grow(n)

	b.WriteString(table.Header)
	b.WriteByte('\n')
	for i, row := range table.Rows[c.Start:c.End] {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(row)
	}

	content, err := charset.Encode(b.String(), tag, bom)
	if err != nil {
		return OutputRecord{}, fmt.Errorf("chunk %d: %w", c.Index, err)
	}

	return OutputRecord{
		Name:    PartName(baseName, c.Index),
		Index:   c.Index,
		Rows:    c.Len(),
		Content: content,
	}, nil
}

func progressReporter(fn func(done, total int), total int) func() {
	if fn == nil {
		return func() {}
	}
	var mu sync.Mutex
	done := 0
	return func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		fn(done, total)
	}
}
