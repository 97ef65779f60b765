// Package tabular reads and writes the pipeline's tabular files: plain or
// gzip-compressed CSV inputs, XLSX mapping workbooks, and atomically
// finalized CSV outputs.
package tabular

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Batch holds a contiguous run of rows sharing one header. Rows are
// normalized to the header width: short rows are padded with empty
// strings, long rows are truncated.
type Batch struct {
	Header []string
	Rows   [][]string
}

// Col returns the index of the named column, or -1 if absent.
func (b *Batch) Col(name string) int {
	for i, h := range b.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Open opens a CSV file for reading, transparently decompressing files
// with a .gz suffix.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}

	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "tabular: gzip reader for %s", path)
	}
	return &gzipFile{gz: gz, f: f}, nil
}

type gzipFile struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipFile) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true
	return reader
}

// ReadHeader returns only the column-name row of a CSV file.
func ReadHeader(path string) ([]string, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	header, err := newCSVReader(rc).Read()
	if err == io.EOF {
		return nil, eris.Errorf("tabular: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read header of %s", path)
	}
	return header, nil
}

// ReadAll loads an entire CSV file into a single batch. Intended for
// files already known to fit in memory; large inputs go through Stream.
func ReadAll(path string) (*Batch, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := newCSVReader(rc)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.Errorf("tabular: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read header of %s", path)
	}

	batch := &Batch{Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return batch, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: read row of %s", path)
		}
		batch.Rows = append(batch.Rows, fitRow(record, len(header)))
	}
}

// ReadSample loads at most maxRows data rows from a CSV file.
func ReadSample(path string, maxRows int) (*Batch, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := newCSVReader(rc)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.Errorf("tabular: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read header of %s", path)
	}

	batch := &Batch{Header: header}
	for len(batch.Rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: read row of %s", path)
		}
		batch.Rows = append(batch.Rows, fitRow(record, len(header)))
	}
	return batch, nil
}

// Stream reads a CSV file and sends fixed-size row batches to a channel.
// Caller must consume the returned batch channel. Errors are sent on the
// error channel. Both channels are closed when processing completes.
func Stream(ctx context.Context, path string, batchRows int) (<-chan *Batch, <-chan error) {
	batchCh := make(chan *Batch, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(batchCh)
		defer close(errCh)

		rc, err := Open(path)
		if err != nil {
			errCh <- err
			return
		}
		defer rc.Close()

		reader := newCSVReader(rc)

		header, err := reader.Read()
		if err == io.EOF {
			errCh <- eris.Errorf("tabular: %s is empty", path)
			return
		}
		if err != nil {
			errCh <- eris.Wrapf(err, "tabular: read header of %s", path)
			return
		}

		batch := &Batch{Header: header}
		flush := func() bool {
			if len(batch.Rows) == 0 {
				return true
			}
			select {
			case batchCh <- batch:
				batch = &Batch{Header: header}
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "tabular: stream cancelled")
				return false
			}
		}

		for {
			record, err := reader.Read()
			if err == io.EOF {
				flush()
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "tabular: read row of %s", path)
				return
			}

			batch.Rows = append(batch.Rows, fitRow(record, len(header)))
			if len(batch.Rows) >= batchRows {
				if !flush() {
					return
				}
			}
		}
	}()

	return batchCh, errCh
}

func fitRow(record []string, width int) []string {
	if len(record) == width {
		return record
	}
	row := make([]string, width)
	copy(row, record)
	return row
}
