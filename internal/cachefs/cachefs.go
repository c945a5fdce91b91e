// Package cachefs exposes the item cache as a read-only fs.FS: one directory
// per cached history, one JSON file per item named by its hid.
package cachefs

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Source is the part of the item cache the file system reads
type Source interface {
	GetTableInfo() ([]types.TableInfo, error)
	Items(historyID string) ([]types.Item, error)
}

// FS is a snapshot-per-open view of a Source.
// Each Open reads the cache again, so files reflect the latest merge.
type FS struct {
	src Source
}

// New creates a file system over src
func New(src Source) *FS {
	return &FS{src: src}
}

// node is one file or directory of the tree
type node struct {
	name    string
	dir     bool
	data    []byte
	modTime time.Time
	item    *types.Item
}

// FileName returns the file name of an item
func FileName(item types.Item) string {
	return fmt.Sprintf("%d.json", item.HID)
}

// Open opens the named file or directory
func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if name == "." {
		entries, err := f.rootEntries()
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return newDir(&node{name: ".", dir: true}, entries), nil
	}

	historyID, rest, nested := strings.Cut(name, "/")
	if strings.Contains(rest, "/") {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	dirNode, children, err := f.history(historyID)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if !nested {
		return newDir(dirNode, children), nil
	}

	for _, child := range children {
		if child.name == rest {
			return newFile(child), nil
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// rootEntries lists the cached histories, ordered by id
func (f *FS) rootEntries() ([]*node, error) {
	tables, err := f.src.GetTableInfo()
	if err != nil {
		return nil, err
	}

	var entries []*node
	for _, table := range tables {
		if table.RowCount == 0 {
			continue
		}
		dirNode, _, err := f.history(table.Name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, dirNode)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

// history builds the directory of one history and its item files, ordered by name
func (f *FS) history(historyID string) (*node, []*node, error) {
	items, err := f.src.Items(historyID)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, fs.ErrNotExist
	}

	dirNode := &node{name: historyID, dir: true}
	children := make([]*node, 0, len(items))
	for i := range items {
		item := items[i]
		data, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode item %d: %w", item.HID, err)
		}
		modTime := item.UpdateTime.Time
		if modTime.After(dirNode.modTime) {
			dirNode.modTime = modTime
		}
		children = append(children, &node{
			name:    FileName(item),
			data:    append(data, '\n'),
			modTime: modTime,
			item:    &item,
		})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })
	return dirNode, children, nil
}
