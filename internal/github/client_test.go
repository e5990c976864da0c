package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/logging"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		RateLimit:  1000,
		MaxWorkers: 4,
		BaseURL:    server.URL,
		RetryDelay: time.Millisecond,
	}, logging.Discard())
	require.NoError(t, err)
	return client
}

func commitJSON(sha, date string) string {
	return fmt.Sprintf(`{"sha":%q,"commit":{"author":{"date":%q},"message":"update %s\n\nbody"}}`, sha, date, sha)
}

func TestListCommits_ExhaustsPagination(t *testing.T) {
	var calls int32
	var serverURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/commits", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "config", r.URL.Query().Get("path"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		page := r.URL.Query().Get("page")
		switch page {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/commits?page=2>; rel="next"`, serverURL))
			fmt.Fprintf(w, "[%s,%s]", commitJSON("c", "2023-03-03T00:00:00Z"), commitJSON("b", "2023-03-02T00:00:00Z"))
		case "2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/commits?page=3>; rel="next"`, serverURL))
			fmt.Fprintf(w, "[%s]", commitJSON("a", "2023-03-01T00:00:00Z"))
		case "3":
			fmt.Fprint(w, "[]")
		default:
			t.Errorf("unexpected page %q", page)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL

	client, err := NewClient(Options{RateLimit: 1000, BaseURL: server.URL}, logging.Discard())
	require.NoError(t, err)

	commits, err := client.ListCommits(context.Background(), "o", "r", "config", time.Time{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Len(t, commits, 3)
	assert.Equal(t, "a", commits[0].SHA)
	assert.Equal(t, "b", commits[1].SHA)
	assert.Equal(t, "c", commits[2].SHA)
	assert.Equal(t, "update a", commits[0].Message)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), commits[0].AuthorDate)
}

func TestListCommits_NoCommits(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))

	commits, err := client.ListCommits(context.Background(), "o", "r", "config", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestListCommits_FetchFailureCarriesStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))

	_, err := client.ListCommits(context.Background(), "o", "r", "config", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFetch))
	assert.Equal(t, http.StatusNotFound, errors.Status(err))
}

func TestListCommits_RetriesServerErrorOnce(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message":"Bad Gateway"}`)
			return
		}
		fmt.Fprintf(w, "[%s]", commitJSON("a", "2023-03-01T00:00:00Z"))
	}))

	commits, err := client.ListCommits(context.Background(), "o", "r", "config", time.Time{})
	require.NoError(t, err)
	assert.Len(t, commits, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestListCommits_PersistentServerErrorFails(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"message":"unavailable"}`)
	}))

	_, err := client.ListCommits(context.Background(), "o", "r", "config", time.Time{})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, errors.Status(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func filesJSON(names ...string) string {
	out := "["
	for i, name := range names {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"filename":"config/%s","patch":"@@ h @@\n+es:\n+  - ca"}`, name)
	}
	return out + "]"
}

func TestFetchCommits_FiltersAndKeepsEmptyCommits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s,%s]", commitJSON("b", "2023-03-02T00:00:00Z"), commitJSON("a", "2023-03-01T00:00:00Z"))
	})
	mux.HandleFunc("/repos/o/r/commits/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"sha":"a","files":%s}`, filesJSON("Matxin.yaml", "README.md", "Elia.yaml"))
	})
	mux.HandleFunc("/repos/o/r/commits/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"sha":"b","files":%s}`, filesJSON("transformer.js"))
	})
	client := newTestClient(t, mux)

	commits, err := client.FetchCommits(context.Background(), "o", "r", "config", time.Time{},
		NewAllowList([]string{"Matxin.yaml", "Elia.yaml"}))
	require.NoError(t, err)

	require.Len(t, commits, 2)
	assert.Equal(t, "a", commits[0].SHA)
	require.Len(t, commits[0].Files, 2)
	assert.Equal(t, "config/Matxin.yaml", commits[0].Files[0].Name)
	assert.Equal(t, "config/Elia.yaml", commits[0].Files[1].Name)
	assert.Equal(t, "@@ h @@\n+es:\n+  - ca", commits[0].Files[0].Patch)

	assert.Equal(t, "b", commits[1].SHA)
	assert.NotNil(t, commits[1].Files)
	assert.Empty(t, commits[1].Files)
}

func TestFetchCommits_DetailFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s,%s]", commitJSON("b", "2023-03-02T00:00:00Z"), commitJSON("a", "2023-03-01T00:00:00Z"))
	})
	mux.HandleFunc("/repos/o/r/commits/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"sha":"a","files":%s}`, filesJSON("Matxin.yaml"))
	})
	mux.HandleFunc("/repos/o/r/commits/b", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"No commit found"}`)
	})
	client := newTestClient(t, mux)

	commits, err := client.FetchCommits(context.Background(), "o", "r", "config", time.Time{},
		NewAllowList([]string{"Matxin.yaml"}))
	require.Error(t, err)
	assert.Nil(t, commits)
	assert.Equal(t, http.StatusUnprocessableEntity, errors.Status(err))
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]models.ChangedFile
}

func (m *memoryCache) Get(sha string) ([]models.ChangedFile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.entries[sha]
	return files, ok, nil
}

func (m *memoryCache) Put(sha string, files []models.ChangedFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sha] = files
	return nil
}

func TestGetCommitFiles_UsesCache(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"sha":"a","files":%s}`, filesJSON("Matxin.yaml", "README.md"))
	}))
	cache := &memoryCache{entries: map[string][]models.ChangedFile{}}
	client.WithCache(cache)

	first, err := client.GetCommitFiles(context.Background(), "o", "r", "a")
	require.NoError(t, err)
	second, err := client.GetCommitFiles(context.Background(), "o", "r", "a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetFileContent(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("Lima,19\n"))
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/contents/data.csv", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("ref"))
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","name":"data.csv","path":"data.csv","content":%q}`, encoded)
	}))

	content, err := client.GetFileContent(context.Background(), "o", "r", "data.csv", "abc")
	require.NoError(t, err)
	assert.Equal(t, encoded, content)
}

func TestAllowList(t *testing.T) {
	allow := NewAllowList([]string{"Matxin.yaml", "Mint*.yaml"})

	assert.True(t, allow.Allows("config/Matxin.yaml"))
	assert.True(t, allow.Allows("Matxin.yaml"))
	assert.True(t, allow.Allows("config/MintLarge.yaml"))
	assert.False(t, allow.Allows("config/Matxin.yaml.bak"))
	assert.False(t, allow.Allows("config/Google.yaml"))
	assert.Equal(t, 2, allow.Len())

	kept := allow.Filter([]models.ChangedFile{{Name: "a/README.md"}})
	assert.NotNil(t, kept)
	assert.Empty(t, kept)
}
