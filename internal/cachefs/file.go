package cachefs

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
)

// itemFile implements fs.File for an item's JSON document
type itemFile struct {
	*bytes.Reader
	node *node
}

func newFile(n *node) *itemFile {
	return &itemFile{Reader: bytes.NewReader(n.data), node: n}
}

// Stat returns the FileInfo structure describing file
func (f *itemFile) Stat() (fs.FileInfo, error) {
	return &nodeFileInfo{node: f.node}, nil
}

// Close closes the file
func (f *itemFile) Close() error {
	return nil
}

// historyDir implements fs.ReadDirFile for the root and history directories
type historyDir struct {
	node    *node
	entries []fs.DirEntry
	offset  int
}

func newDir(n *node, children []*node) *historyDir {
	entries := make([]fs.DirEntry, len(children))
	for i, child := range children {
		entries[i] = &nodeDirEntry{node: child}
	}
	return &historyDir{node: n, entries: entries}
}

// Stat returns the FileInfo structure describing dir
func (d *historyDir) Stat() (fs.FileInfo, error) {
	return &nodeFileInfo{node: d.node}, nil
}

// Read fails, directories have no content
func (d *historyDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.node.name, Err: errors.New("is a directory")}
}

// ReadDir returns up to n entries in name order. With n <= 0 it returns
// every remaining entry and a nil error.
func (d *historyDir) ReadDir(n int) ([]fs.DirEntry, error) {
	remaining := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return append([]fs.DirEntry{}, remaining...), nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}

	count := min(n, len(remaining))
	result := append([]fs.DirEntry{}, remaining[:count]...)
	d.offset += count
	return result, nil
}

// Close closes the directory
func (d *historyDir) Close() error {
	return nil
}
