// Package archive reads and writes the tar archives and single compressed
// files that reflink rewrites. It supports .tar, .tar.gz (.tgz) and .tar.xz
// archives, and plain .gz and .xz files.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Compression identifies the stream compression around a file.
type Compression string

const (
	None Compression = ""
	Gzip Compression = "gzip"
	XZ   Compression = "xz"
)

// Format describes a path that reflink can open as an archive.
type Format struct {
	Compression Compression
	Tar         bool
}

// DetectFormat detects the archive format from the file extension. ok is
// false for paths that are neither archives nor compressed files.
func DetectFormat(path string) (f Format, ok bool) {
	p := strings.ToLower(path)
	switch {
	case strings.HasSuffix(p, ".tar.xz"), strings.HasSuffix(p, ".txz"):
		return Format{Compression: XZ, Tar: true}, true
	case strings.HasSuffix(p, ".tar.gz"), strings.HasSuffix(p, ".tgz"):
		return Format{Compression: Gzip, Tar: true}, true
	case strings.HasSuffix(p, ".tar"):
		return Format{Tar: true}, true
	case strings.HasSuffix(p, ".xz"):
		return Format{Compression: XZ}, true
	case strings.HasSuffix(p, ".gz"):
		return Format{Compression: Gzip}, true
	default:
		return Format{}, false
	}
}

// IsTar returns true if the file has a supported tar archive extension.
func IsTar(path string) bool {
	f, ok := DetectFormat(path)
	return ok && f.Tar
}

// decompress wraps r according to c. The returned closer is nil when the
// decompressor holds no resources.
func decompress(r io.Reader, c Compression) (io.Reader, io.Closer, error) {
	switch c {
	case XZ:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xzr, nil, nil
	case Gzip:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gzr, gzr, nil
	default:
		return r, nil, nil
	}
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	Format       Format
	file         *os.File
	decompressor io.Closer
}

// NewReader creates a new archive reader for the given path.
// It automatically detects and handles .tar.gz and .tar.xz compression.
func NewReader(path string) (*Reader, error) {
	format, ok := DetectFormat(path)
	if !ok || !format.Tar {
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	reader, decompressor, err := decompress(f, format.Compression)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		Format:       format,
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateArchive opens an archive and iterates through its entries.
func IterateArchive(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// ReadFile reads a specific file from the archive. filename matches the
// entry name with or without its leading directory.
func ReadFile(archivePath, filename string) ([]byte, error) {
	var content []byte
	err := IterateArchive(archivePath, func(header *tar.Header, r io.Reader) (bool, error) {
		name := header.Name
		if idx := strings.Index(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if name == filename || header.Name == filename {
			var err error
			content, err = io.ReadAll(r)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("file not found: %s", filename)
	}
	return content, nil
}

// List returns the names of every entry in the archive.
func List(archivePath string) ([]string, error) {
	var names []string
	err := IterateArchive(archivePath, func(header *tar.Header, _ io.Reader) (bool, error) {
		names = append(names, header.Name)
		return false, nil
	})
	return names, err
}

// File is a single decompressed file opened by OpenFile.
type File struct {
	io.Reader
	// Name is the path without its compression suffix.
	Name        string
	Compression Compression
	file        *os.File
	closer      io.Closer
}

// Close closes the decompressor and the underlying file.
func (f *File) Close() error {
	var errs []error
	if f.closer != nil {
		errs = append(errs, f.closer.Close())
	}
	errs = append(errs, f.file.Close())
	return errors.Join(errs...)
}

// OpenFile opens path and transparently decompresses .gz and .xz files.
// Any other path is returned as is. Tar archives are rejected; use
// NewReader for those.
func OpenFile(path string) (*File, error) {
	format, _ := DetectFormat(path)
	if format.Tar {
		return nil, fmt.Errorf("%s is a tar archive", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, closer, err := decompress(f, format.Compression)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{
		Reader:      r,
		Name:        TrimCompression(path),
		Compression: format.Compression,
		file:        f,
		closer:      closer,
	}, nil
}

// TrimCompression removes a trailing .gz or .xz suffix.
func TrimCompression(path string) string {
	lower := strings.ToLower(path)
	for _, ext := range []string{".gz", ".xz"} {
		if strings.HasSuffix(lower, ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}
