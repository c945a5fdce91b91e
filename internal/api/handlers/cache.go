package handlers

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/Project-Sylos/Chronicle/internal/cachefs"
)

// CacheHandler serves the read-only item cache file system with content ETags
type CacheHandler struct {
	files fs.FS
	next  http.Handler
}

// NewCacheHandler creates a file server over files
func NewCacheHandler(files fs.FS) *CacheHandler {
	return &CacheHandler{files: files, next: http.FileServer(http.FS(files))}
}

// ServeHTTP sets the ETag of item files so conditional requests get 304
func (h *CacheHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+req.URL.Path), "/")
	if name != "" {
		if tag, err := cachefs.ETag(h.files, name); err == nil {
			w.Header().Set("ETag", tag)
		}
	}
	h.next.ServeHTTP(w, req)
}
