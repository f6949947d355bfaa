// Package transfer implements the outbound and inbound transfer state
// machines shared by the serve and consume roles, and the temporary
// spool directories travel through as tar archives.
package transfer

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Spool is a temporary file holding a directory archive in transit.
// Closing a spool always removes its backing file, whichever path a
// transfer takes out of existence.
type Spool struct {
	f *os.File
}

func newSpool(prefix string) (*Spool, error) {
	f, err := os.CreateTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	return &Spool{f: f}, nil
}

// NewInboundSpool creates an empty spool for a directory being received.
func NewInboundSpool() (*Spool, error) { return newSpool("peek") }

// Pack archives the directory tree into a new spool, rooted at the
// directory's basename, and rewinds it for streaming.
func Pack(dir string) (*Spool, error) {
	sp, err := newSpool("poke")
	if err != nil {
		return nil, err
	}
	if err := writeTar(sp.f, dir); err != nil {
		sp.Close()
		return nil, err
	}
	if _, err := sp.f.Seek(0, io.SeekStart); err != nil {
		sp.Close()
		return nil, fmt.Errorf("rewind spool: %w", err)
	}
	return sp, nil
}

func (s *Spool) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *Spool) Write(p []byte) (int, error) { return s.f.Write(p) }

// Unpack rewinds the spool and extracts the archive into destRoot.
func (s *Spool) Unpack(destRoot string) error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}
	return extractTar(s.f, destRoot)
}

// Close removes the spool from disk.
func (s *Spool) Close() error {
	name := s.f.Name()
	err := s.f.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

func writeTar(w io.Writer, dir string) error {
	dir = filepath.Clean(dir)
	base := filepath.Base(dir)
	tw := tar.NewWriter(w)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = base + "/" + filepath.ToSlash(rel)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive %q: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func extractTar(r io.Reader, destRoot string) error {
	destRoot = filepath.Clean(destRoot)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target := filepath.Join(destRoot, filepath.FromSlash(hdr.Name))
		if target != destRoot && !strings.HasPrefix(target, destRoot+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent: %w", err)
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&os.ModePerm)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("extract %q: %w", hdr.Name, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %q: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("create symlink: %w", err)
			}
		default:
			// Other entry types have no business in a shared tree.
		}
	}
}
