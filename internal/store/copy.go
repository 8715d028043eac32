package store

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// CopyLocalDir copies every regular file below srcDir on src into dst below dstKey, returning the
// number of files copied.
func CopyLocalDir(src afero.Fs, srcDir string, dst Store, dstKey string) (int, error) {
	isDir, err := afero.IsDir(src, srcDir)
	if err != nil || !isDir {
		return 0, &flotillaerrors.ErrInvalidArgument{
			Name:    "confdir",
			Value:   srcDir,
			Message: "not a readable directory",
		}
	}
	copied := 0
	err = afero.Walk(src, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(src, p)
		if err != nil {
			return err
		}
		if err := dst.Write(path.Join(dstKey, filepath.ToSlash(rel)), data); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, errors.Wrapf(err, "error copying %s to %s", srcDir, dstKey)
	}
	log.Debugf("Copied %d files from %s to %s", copied, srcDir, dstKey)
	return copied, nil
}

// CopyTree copies every key below from to the same relative key below to.
func CopyTree(s Store, from string, to string) (int, error) {
	keys, err := s.List(from)
	if err != nil {
		return 0, err
	}
	fromPrefix := strings.TrimSuffix(from, "/") + "/"
	for i, key := range keys {
		data, err := s.Read(key)
		if err != nil {
			return i, errors.WithMessagef(err, "error copying %s to %s", from, to)
		}
		if err := s.Write(path.Join(to, strings.TrimPrefix(key, fromPrefix)), data); err != nil {
			return i, errors.WithMessagef(err, "error copying %s to %s", from, to)
		}
	}
	log.Debugf("Copied %d keys from %s to %s", len(keys), from, to)
	return len(keys), nil
}
