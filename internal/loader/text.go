package loader

import (
	"io/fs"
	"strings"

	"golang.org/x/sync/singleflight"
)

// FSText loads text files from a file system. Concurrent loads of the same path
// share one read.
type FSText struct {
	fsys  fs.FS
	group singleflight.Group
	logf  Logf
}

// NewFSText creates a text loader over fsys.
func NewFSText(fsys fs.FS, logf Logf) *FSText {
	return &FSText{fsys: fsys, logf: logf}
}

// LoadText implements TextLoader.
func (t *FSText) LoadText(path string, done func(string)) {
	go func() {
		text, err := t.Read(path)
		if err != nil {
			if t.logf != nil {
				t.logf(0, "load text: %v", err)
			}
			return
		}
		done(text)
	}()
}

// Read reads path synchronously.
func (t *FSText) Read(path string) (string, error) {
	name := strings.TrimPrefix(path, "/")
	v, err, _ := t.group.Do(name, func() (any, error) {
		data, err := fs.ReadFile(t.fsys, name)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
