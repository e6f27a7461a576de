package decompose

import (
	"archive/tar"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// partExt is the file extension of emitted partitions.
const partExt = ".ll"

// DirSink emits partitions as loose files in a directory.
type DirSink struct {
	fs  afero.Fs
	dir string
}

// NewDirSink returns a sink writing partitions to the given output directory,
// creating it as needed. If force is set, an existing output directory is
// removed first.
func NewDirSink(fs afero.Fs, dir string, force bool) (*DirSink, error) {
	if err := CreateOutputDir(fs, dir, force); err != nil {
		return nil, errors.WithStack(err)
	}
	return &DirSink{fs: fs, dir: dir}, nil
}

// CreateOutputDir creates the given output directory. If force is set, an
// existing output directory is removed first.
func CreateOutputDir(fs afero.Fs, dir string, force bool) error {
	if force {
		// Force overwrite existing output directory.
		if err := fs.RemoveAll(dir); err != nil {
			return errors.WithStack(err)
		}
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Emit writes the partition to "<dir>/<name>.ll". It fails if the file already
// exists.
func (s *DirSink) Emit(m *module.Module, name string) error {
	partPath := filepath.Join(s.dir, name+partExt)
	f, err := s.fs.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Close is a no-op; partitions are written as they are emitted.
func (s *DirSink) Close() error {
	return nil
}

// TarBase is the directory of emitted partitions within tar archives.
const TarBase = "bits"

// TarSink emits partitions as entries of a tar archive.
type TarSink struct {
	f  afero.File
	tw *tar.Writer
	// Entry names already written.
	names map[string]bool
}

// NewTarSink returns a sink writing partitions to a tar archive created at the
// given path.
func NewTarSink(fs afero.Fs, tarPath string) (*TarSink, error) {
	if dir := filepath.Dir(tarPath); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	f, err := fs.Create(tarPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s := &TarSink{
		f:     f,
		tw:    tar.NewWriter(f),
		names: make(map[string]bool),
	}
	return s, nil
}

// Emit appends the partition to the archive as "bits/<name>.ll".
func (s *TarSink) Emit(m *module.Module, name string) error {
	entry := path.Join(TarBase, name+partExt)
	if s.names[entry] {
		return errors.Errorf("duplicate tar entry %q", entry)
	}
	buf := m.Bytes()
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     entry,
		Mode:     0644,
		Size:     int64(len(buf)),
		ModTime:  time.Unix(0, 0),
	}
	if err := s.tw.WriteHeader(hdr); err != nil {
		return errors.WithStack(err)
	}
	if _, err := s.tw.Write(buf); err != nil {
		return errors.WithStack(err)
	}
	s.names[entry] = true
	return nil
}

// Close finishes the archive and closes the underlying file.
func (s *TarSink) Close() error {
	if err := s.tw.Close(); err != nil {
		s.f.Close()
		return errors.WithStack(err)
	}
	if err := s.f.Close(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
