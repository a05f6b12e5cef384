package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Transform returns the new content of a regular file entry. Returning
// content unchanged keeps the entry as it was.
type Transform func(name string, content []byte) ([]byte, error)

// Stats counts the entries an archive rewrite processed.
type Stats struct {
	Entries   int `json:"entries"`
	Files     int `json:"files"`
	Rewritten int `json:"rewritten"`
}

func (s *Stats) count(before, after []byte) {
	s.Files++
	if !bytes.Equal(before, after) {
		s.Rewritten++
	}
}

// RewriteArchive streams every entry of the archive at src into a new
// archive at dst, passing regular files through fn. Headers and non-file
// entries are copied as they are. The compression of dst follows its
// extension. On error dst is left untouched.
func RewriteArchive(src, dst string, fn Transform) (Stats, error) {
	var st Stats

	r, err := NewReader(src)
	if err != nil {
		return st, err
	}
	defer r.Close()

	w, err := NewWriter(dst)
	if err != nil {
		return st, err
	}

	err = r.Iterate(func(hdr *tar.Header, content io.Reader) (bool, error) {
		st.Entries++
		if hdr.Typeflag != tar.TypeReg {
			return false, w.WriteHeader(hdr)
		}

		data, err := io.ReadAll(content)
		if err != nil {
			return true, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		out, err := fn(hdr.Name, data)
		if err != nil {
			return true, fmt.Errorf("transform %s: %w", hdr.Name, err)
		}
		st.count(data, out)
		return false, w.WriteFile(*hdr, out)
	})
	if err != nil {
		w.Abort()
		return st, err
	}
	return st, w.Close()
}

// RewriteDir packs the directory srcDir into a new archive at dst, passing
// every regular file through fn. Entry names are prefixed with baseDir;
// an empty baseDir uses the base name of srcDir.
func RewriteDir(srcDir, dst, baseDir string, fn Transform) (Stats, error) {
	var st Stats
	if baseDir == "" {
		baseDir = filepath.Base(filepath.Clean(srcDir))
	}

	w, err := NewWriter(dst)
	if err != nil {
		return st, err
	}

	err = filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = path.Join(baseDir, filepath.ToSlash(relPath))
		st.Entries++

		if d.IsDir() {
			header.Name += "/"
			return w.WriteHeader(header)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out, err := fn(header.Name, data)
		if err != nil {
			return fmt.Errorf("transform %s: %w", header.Name, err)
		}
		st.count(data, out)
		return w.WriteFile(*header, out)
	})
	if err != nil {
		w.Abort()
		return st, fmt.Errorf("failed to create archive: %w", err)
	}
	return st, w.Close()
}
