package galaxytest

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Project-Sylos/Chronicle/internal/filter"
	"github.com/Project-Sylos/Chronicle/internal/generator"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// queryPairs zips the repeated q/qv parameters
func queryPairs(r *http.Request) map[string]string {
	q := r.URL.Query()["q"]
	qv := r.URL.Query()["qv"]
	pairs := make(map[string]string, len(q))
	for i := 0; i < len(q) && i < len(qv); i++ {
		pairs[q[i]] = qv[i]
	}
	return pairs
}

func boolMatches(want string, got bool) bool {
	if want == "" {
		return true
	}
	return strings.EqualFold(want, "true") == got
}

func (s *Server) listHistories(w http.ResponseWriter, r *http.Request) {
	pairs := queryPairs(r)

	s.mu.Lock()
	var matched []types.History
	for _, h := range s.histories {
		if !boolMatches(pairs["deleted"], h.Deleted) || !boolMatches(pairs["purged"], h.Purged) {
			continue
		}
		if name, ok := pairs["name"]; ok && !strings.Contains(strings.ToLower(h.Name), strings.ToLower(name)) {
			continue
		}
		matched = append(matched, h)
	}
	s.mu.Unlock()

	if r.URL.Query().Get("order") == "name" {
		slices.SortStableFunc(matched, func(a, b types.History) int { return strings.Compare(a.Name, b.Name) })
	} else {
		slices.SortStableFunc(matched, func(a, b types.History) int { return b.UpdateTime.Compare(a.UpdateTime.Time) })
	}

	offset := min(max(intParam(r, "offset", 0), 0), len(matched))
	end := len(matched)
	if limit := intParam(r, "limit", 0); limit > 0 {
		end = min(offset+limit, len(matched))
	}
	writeJSON(w, http.StatusOK, append([]types.History{}, matched[offset:end]...))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	i := s.indexLocked(id)
	var h types.History
	if i >= 0 {
		h = s.histories[i]
	}
	s.mu.Unlock()

	if i < 0 {
		writeError(w, http.StatusNotFound, "History not found")
		return
	}

	keys := r.URL.Query().Get("keys")
	if keys == "" {
		writeJSON(w, http.StatusOK, h)
		return
	}

	data, _ := json.Marshal(h)
	var full map[string]json.RawMessage
	json.Unmarshal(data, &full)
	partial := make(map[string]json.RawMessage)
	for _, key := range strings.Split(keys, ",") {
		if v, ok := full[key]; ok {
			partial[key] = v
		}
	}
	writeJSON(w, http.StatusOK, partial)
}

func (s *Server) updateHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var changes struct {
		Name       *string `json:"name"`
		Annotation *string `json:"annotation"`
		Deleted    *bool   `json:"deleted"`
		Purged     *bool   `json:"purged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "History not found")
		return
	}

	h := &s.histories[i]
	if changes.Name != nil {
		h.Name = *changes.Name
	}
	if changes.Annotation != nil {
		h.Annotation = *changes.Annotation
	}
	if changes.Deleted != nil {
		h.Deleted = *changes.Deleted
	}
	if changes.Purged != nil && *changes.Purged {
		h.Purged = true
		h.Deleted = true
	}
	h.UpdateTime = types.Timestamp{Time: time.Now().UTC()}
	writeJSON(w, http.StatusOK, *h)
}

func (s *Server) copyHistory(w http.ResponseWriter, r *http.Request) {
	var req types.CopyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created types.History
	if req.HistoryID == "" {
		created = s.newHistoryLocked(req.Name)
	} else {
		i := s.indexLocked(req.HistoryID)
		if i < 0 {
			writeError(w, http.StatusNotFound, "History not found")
			return
		}
		source := s.histories[i]

		name := req.Name
		if name == "" {
			name = "Copy of '" + source.Name + "'"
		}
		created = s.newHistoryLocked(name)
		created.UserID = source.UserID
		created.Tags = slices.Clone(source.Tags)
		created.Annotation = source.Annotation

		allDatasets := req.AllDatasets == nil || *req.AllDatasets
		var copied []types.Item
		for _, item := range s.items[source.ID] {
			if !allDatasets && item.Deleted {
				continue
			}
			item.HistoryID = created.ID
			copied = append(copied, item)
		}
		s.items[created.ID] = copied
		generator.Summarize(&created, copied)
	}

	s.histories = slices.Insert(s.histories, 0, created)
	if req.Current {
		s.current = created.ID
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) listContents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pairs := queryPairs(r)

	s.mu.Lock()
	gate := s.gate
	_, known := s.items[id]
	if !known && s.indexLocked(id) >= 0 {
		known = true
	}
	items := slices.Clone(s.items[id])
	s.mu.Unlock()

	if !known {
		writeError(w, http.StatusNotFound, "History not found")
		return
	}
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	var since time.Time
	if v, ok := pairs["update_time-ge"]; ok {
		var ts types.Timestamp
		if err := ts.UnmarshalJSON([]byte(v)); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid update_time-ge value")
			return
		}
		since = ts.Time
	}

	matched := make([]types.Item, 0, len(items))
	for _, item := range items {
		if !boolMatches(pairs["deleted"], item.Deleted) || !boolMatches(pairs["visible"], item.Visible) {
			continue
		}
		if !since.IsZero() && item.UpdateTime.Before(since) {
			continue
		}
		if !matchesFields(item, pairs) {
			continue
		}
		matched = append(matched, item)
	}

	offset := min(max(intParam(r, "offset", 0), 0), len(matched))
	end := len(matched)
	if limit := intParam(r, "limit", 0); limit > 0 {
		end = min(offset+limit, len(matched))
	}
	writeJSON(w, http.StatusOK, matched[offset:end])
}

// matchesFields applies the searchable field constraints among pairs
func matchesFields(item types.Item, pairs map[string]string) bool {
	for key, value := range pairs {
		field, ok := filter.LookupField(key)
		if !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(field.Value(item)), strings.ToLower(value)) {
			return false
		}
	}
	return true
}

func (s *Server) setAsCurrent(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "History not found")
		return
	}
	s.current = id
	writeJSON(w, http.StatusOK, s.histories[i])
}

func (s *Server) createNewCurrent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := s.newHistoryLocked("")
	s.histories = slices.Insert(s.histories, 0, created)
	s.items[created.ID] = nil
	s.current = created.ID
	writeJSON(w, http.StatusOK, created)
}
