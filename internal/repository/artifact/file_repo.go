package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
)

// FileRepo хранит артефакты снапшотов в локальной директории.
type FileRepo struct {
	dir string
}

func NewFileRepo(dir string) *FileRepo {
	return &FileRepo{dir: dir}
}

// Fetch читает артефакт по ключу. Отсутствующий файл: e.ErrArtifactNotFound.
func (f *FileRepo) Fetch(ctx context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, e.Wrap(key, e.ErrArtifactNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return data, nil
}

// Put атомарно записывает артефакт: сначала во временный файл, затем rename.
func (f *FileRepo) Put(ctx context.Context, key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := ctx.Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := tmp.Close(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// path не даёт ключу выйти за пределы директории.
func (f *FileRepo) path(key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: artifact key %q escapes the artifact directory", e.ErrStatusBadRequest, key)
	}
	return filepath.Join(f.dir, key), nil
}
