package store

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// FileStore keeps each key in a file below root. Exclusive creation relies on O_EXCL and writes go
// through a temporary file renamed into place, so readers never observe a partial record.
type FileStore struct {
	fs   afero.Fs
	root string
}

func NewFileStore(fs afero.Fs, root string) *FileStore {
	return &FileStore{fs: fs, root: root}
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

func (f *FileStore) CreateExclusive(key string, data []byte) error {
	p := f.path(key)
	if err := f.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "error creating directory for %s", key)
	}
	file, err := f.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return &flotillaerrors.ErrAlreadyExists{Type: "key", Value: key}
	} else if err != nil {
		return errors.Wrapf(err, "error creating %s", key)
	}
	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "error writing %s", key)
	}
	return nil
}

func (f *FileStore) Read(key string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path(key))
	if os.IsNotExist(err) {
		return nil, &flotillaerrors.ErrNotFound{Type: "key", Value: key}
	} else if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", key)
	}
	return data, nil
}

func (f *FileStore) Write(key string, data []byte) error {
	p := f.path(key)
	if err := f.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "error creating directory for %s", key)
	}
	tmp := p + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "error writing %s", key)
	}
	if err := f.fs.Rename(tmp, p); err != nil {
		_ = f.fs.Remove(tmp)
		return errors.Wrapf(err, "error replacing %s", key)
	}
	return nil
}

func (f *FileStore) Delete(key string) error {
	if err := f.fs.RemoveAll(f.path(key)); err != nil {
		return errors.Wrapf(err, "error deleting %s", key)
	}
	return nil
}

func (f *FileStore) Exists(key string) (bool, error) {
	exists, err := afero.Exists(f.fs, f.path(key))
	if err != nil {
		return false, errors.Wrapf(err, "error checking %s", key)
	}
	return exists, nil
}

func (f *FileStore) List(prefix string) ([]string, error) {
	base := f.path(prefix)
	if exists, err := afero.DirExists(f.fs, base); err != nil {
		return nil, errors.Wrapf(err, "error checking %s", prefix)
	} else if !exists {
		return []string{}, nil
	}
	keys := []string{}
	err := afero.Walk(f.fs, base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error listing %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}
