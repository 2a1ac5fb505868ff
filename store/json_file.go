package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LegacyFileNames maps the built-in collection names to the data files the
// server has always used, so an existing data directory keeps working.
var LegacyFileNames = map[string]string{
	Posts:          "data.json",
	BusinessPosts:  "business_data.json",
	Users:          "users.json",
	DirectMessages: "dm_data.json",
}

// JsonFileStore stores each collection as a separate JSON array file on disk.
//
// Layout:
//
//	data_dir/
//	  data.json            # posts
//	  business_data.json   # business_posts
//	  users.json           # users
//	  dm_data.json         # dms
//	  <name>.json          # any other collection
type JsonFileStore struct {
	dir  string
	opts options
}

func NewJsonFileStore(dir string, opts ...Option) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir, opts: buildOptions(opts)}, nil
}

// CollectionPath returns the file backing the named collection.
func (s *JsonFileStore) CollectionPath(name string) string {
	if file, ok := LegacyFileNames[name]; ok {
		return filepath.Join(s.dir, file)
	}
	return filepath.Join(s.dir, name+".json")
}

func (s *JsonFileStore) Open(name string) (Collection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	// Two names on one file would get two writer locks.
	if _, legacy := LegacyFileNames[name]; !legacy {
		for owner, file := range LegacyFileNames {
			if name+".json" == file {
				return nil, fmt.Errorf("collection name %q collides with %s, the file of %q", name, file, owner)
			}
		}
	}
	return newCollection(name, &jsonFile{path: s.CollectionPath(name)}, s.opts), nil
}

func (s *JsonFileStore) Close() error { return nil }

type jsonFile struct {
	path string
}

func (f *jsonFile) read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (f *jsonFile) replace(ctx context.Context, data []byte) error {
	return writeFileAtomic(ctx, f.path, data, 0o644)
}
