package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// compress wraps w according to c. The returned closer flushes the stream
// and must be closed before w.
func compress(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xw, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	default:
		return nopCloser{w}, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Writer writes a tar archive to a temporary file next to its destination
// and moves it into place on Close, so a failed write never leaves a
// truncated archive behind.
type Writer struct {
	*tar.Writer
	path   string
	tmp    *os.File
	stream io.WriteCloser
	closed bool
}

// NewWriter creates an archive at path with the compression implied by
// its extension. Parent directories are created.
func NewWriter(path string) (*Writer, error) {
	format, ok := DetectFormat(path)
	if !ok || !format.Tar {
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	stream, err := compress(tmp, format.Compression)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	return &Writer{
		Writer: tar.NewWriter(stream),
		path:   path,
		tmp:    tmp,
		stream: stream,
	}, nil
}

// WriteFile adds a regular file entry. hdr is copied and its size set to
// len(content).
func (w *Writer) WriteFile(hdr tar.Header, content []byte) error {
	hdr.Size = int64(len(content))
	if err := w.WriteHeader(&hdr); err != nil {
		return err
	}
	_, err := w.Write(content)
	return err
}

// Close finishes the archive and renames it into place.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := errors.Join(w.Writer.Close(), w.stream.Close(), w.tmp.Close())
	if err == nil {
		err = os.Rename(w.tmp.Name(), w.path)
	}
	if err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("failed to write archive %s: %w", w.path, err)
	}
	return nil
}

// Abort discards the archive.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.stream.Close()
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
