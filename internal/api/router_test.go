package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Chronicle/internal/config"
	"github.com/Project-Sylos/Chronicle/internal/galaxytest"
	"github.com/Project-Sylos/Chronicle/internal/history"
	"github.com/Project-Sylos/Chronicle/sdk"
)

// heldScheduler records refreshes without ever running them
type heldScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
}

type heldTimer struct{}

func (heldTimer) Stop() bool { return true }

func (s *heldScheduler) AfterFunc(d time.Duration, f func()) history.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return heldTimer{}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	backend *galaxytest.Server
	api     *httptest.Server
	c       *sdk.Chronicle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := galaxytest.NewDefault()
	t.Cleanup(backend.Close)

	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = backend.URL
	cfg.Server.APIKey = "secret"
	backend.RequireAPIKey("secret")

	c, err := sdk.NewFromConfig(&cfg, sdk.WithScheduler(&heldScheduler{}))
	require.NoError(t, err)

	api := httptest.NewServer(NewRouter(c).SetupRoutes())
	t.Cleanup(func() {
		api.Close()
		c.Close()
	})
	return &harness{backend: backend, api: api, c: c}
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.api.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

type historyJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Deleted  bool   `json:"deleted"`
	Purged   bool   `json:"purged"`
	NiceSize string `json:"nice_size"`
}

type collectionJSON struct {
	Order      string        `json:"order"`
	CurrentID  string        `json:"current_id"`
	AllFetched bool          `json:"all_fetched"`
	Histories  []historyJSON `json:"histories"`
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status, env := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.api.URL+"/api/v1/histories", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHistoryCollectionEndpoints(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodPost, "/api/v1/histories/fetch", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var col collectionJSON
	require.NoError(t, json.Unmarshal(env.Data, &col))
	assert.Equal(t, "update_time", col.Order)
	assert.Len(t, col.Histories, len(h.backend.Histories()))
	assert.True(t, col.AllFetched)

	status, env = h.do(t, http.MethodPut, "/api/v1/histories/sort", map[string]string{"order": "name"})
	require.Equal(t, http.StatusOK, status, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &col))
	assert.Equal(t, "name", col.Order)
	for i := 1; i < len(col.Histories); i++ {
		assert.LessOrEqual(t, col.Histories[i-1].Name, col.Histories[i].Name)
	}

	status, _ = h.do(t, http.MethodPut, "/api/v1/histories/sort", map[string]string{"order": "bogus"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = h.do(t, http.MethodPost, "/api/v1/histories", nil)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var created historyJSON
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, h.backend.CurrentID(), created.ID)

	status, env = h.do(t, http.MethodGet, "/api/v1/histories", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &col))
	assert.Equal(t, created.ID, col.CurrentID)
	assert.Equal(t, created.ID, col.Histories[0].ID, "current history first")
}

func TestSingleHistoryEndpoints(t *testing.T) {
	h := newHarness(t)
	source := h.backend.Histories()[0]

	status, env := h.do(t, http.MethodGet, "/api/v1/histories/"+source.ID, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var got historyJSON
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, source.Name, got.Name)
	assert.NotEmpty(t, got.NiceSize)

	status, _ = h.do(t, http.MethodGet, "/api/v1/histories/doesnotexist", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = h.do(t, http.MethodPatch, "/api/v1/histories/"+source.ID, map[string]string{"name": "renamed"})
	require.Equal(t, http.StatusOK, status, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "renamed", got.Name)

	status, env = h.do(t, http.MethodPost, "/api/v1/histories/"+source.ID+"/copy", map[string]any{"make_current": true})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var copied historyJSON
	require.NoError(t, json.Unmarshal(env.Data, &copied))
	assert.Equal(t, "Copy of 'renamed'", copied.Name)
	assert.Equal(t, copied.ID, h.backend.CurrentID())
	assert.Equal(t, copied.ID, h.c.Histories().CurrentID())

	status, env = h.do(t, http.MethodDelete, "/api/v1/histories/"+source.ID, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Deleted)

	status, env = h.do(t, http.MethodPost, "/api/v1/histories/"+source.ID+"/undelete", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.Deleted)

	status, env = h.do(t, http.MethodPost, "/api/v1/histories/"+source.ID+"/purge", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Purged)

	status, _ = h.do(t, http.MethodPut, "/api/v1/histories/"+source.ID+"/current", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, source.ID, h.backend.CurrentID())
}

func TestItemEndpoints(t *testing.T) {
	h := newHarness(t)
	id := h.backend.Histories()[0].ID

	status, env := h.do(t, http.MethodPost, "/api/v1/histories/"+id+"/items/fetch", map[string]any{})
	require.Equal(t, http.StatusOK, status, env.Message)
	var fetched []struct {
		HID     int  `json:"hid"`
		Deleted bool `json:"deleted"`
		Visible bool `json:"visible"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	require.NotEmpty(t, fetched)
	for i := 1; i < len(fetched); i++ {
		assert.Greater(t, fetched[i-1].HID, fetched[i].HID, "most recent first")
	}

	status, env = h.do(t, http.MethodGet, "/api/v1/histories/"+id+"/items?filter=name:zzzz", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(env.Data))

	status, _ = h.do(t, http.MethodPost, "/api/v1/histories/"+id+"/items/fetch", map[string]any{"offset": -1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = h.do(t, http.MethodGet, "/api/v1/tables/"+id+"/count", nil)
	require.Equal(t, http.StatusOK, status)
	var count struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, len(fetched), count.Count)

	status, _ = h.do(t, http.MethodPost, "/api/v1/reset", nil)
	require.Equal(t, http.StatusOK, status)
	status, env = h.do(t, http.MethodGet, "/api/v1/tables", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestWatchEndpoint(t *testing.T) {
	h := newHarness(t)
	id := h.backend.Histories()[0].ID
	h.backend.SetNonReadyJobs(id, "job-1")

	status, env := h.do(t, http.MethodPost, "/api/v1/histories/"+id+"/watch", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var watched struct {
		PollState        string `json:"poll_state"`
		HasPendingUpdate bool   `json:"has_pending_update"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &watched))
	assert.True(t, watched.HasPendingUpdate)
	assert.Equal(t, []string{id}, h.c.Watched())

	status, _ = h.do(t, http.MethodDelete, "/api/v1/histories/"+id+"/watch", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, h.c.Watched())
}

func TestConfigHidesAPIKey(t *testing.T) {
	h := newHarness(t)
	status, env := h.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "secret")
	assert.Equal(t, "secret", h.c.GetConfig().Server.APIKey)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	status, env := h.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, status)
	var body struct {
		RemoteOK bool `json:"remote_ok"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.True(t, body.RemoteOK)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/v1/histories/fetch", nil)

	resp, err := http.Get(h.api.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chronicle_api_requests_total")
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.api.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	status, _ := h.do(t, http.MethodPost, "/api/v1/histories", nil)
	require.Equal(t, http.StatusCreated, status)

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: new-current\n", line)
			break
		}
	}
}

func TestCacheFileServer(t *testing.T) {
	h := newHarness(t)
	id := h.backend.Histories()[0].ID

	status, env := h.do(t, http.MethodPost, "/api/v1/histories/"+id+"/items/fetch", map[string]any{})
	require.Equal(t, http.StatusOK, status, env.Message)
	var fetched []struct {
		HID  int    `json:"hid"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	require.NotEmpty(t, fetched)

	resp, err := http.Get(h.api.URL + "/api/v1/cache/" + id + "/" + strconv.Itoa(fetched[0].HID) + ".json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	assert.Equal(t, fetched[0].Name, item.Name)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	conditional, err := http.NewRequest(http.MethodGet, h.api.URL+"/api/v1/cache/"+id+"/"+strconv.Itoa(fetched[0].HID)+".json", nil)
	require.NoError(t, err)
	conditional.Header.Set("If-None-Match", etag)
	notModified, err := http.DefaultClient.Do(conditional)
	require.NoError(t, err)
	notModified.Body.Close()
	assert.Equal(t, http.StatusNotModified, notModified.StatusCode)

	missing, err := http.Get(h.api.URL + "/api/v1/cache/" + id + "/99999.json")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
