package elastic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeCluster answers the index and bulk APIs from memory.
type fakeCluster struct {
	mu        sync.Mutex
	indices   map[string]string
	docs      map[string]map[string]json.RawMessage
	reject    map[string]bool
	bulkCalls int
	refresh   string
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		indices: make(map[string]string),
		docs:    make(map[string]map[string]json.RawMessage),
		reject:  make(map[string]bool),
	}
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	name := strings.Trim(r.URL.Path, "/")
	switch {
	case strings.HasSuffix(r.URL.Path, "/_bulk") && r.Method == http.MethodPost:
		c.bulk(w, r)
	case r.Method == http.MethodHead:
		if _, ok := c.indices[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		c.indices[name] = string(body)
		fmt.Fprintf(w, `{"acknowledged":true,"shards_acknowledged":true,"index":%q}`, name)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"not_found","reason":"unexpected request"},"status":404}`)
	}
}

func (c *fakeCluster) bulk(w http.ResponseWriter, r *http.Request) {
	c.bulkCalls++
	c.refresh = r.URL.Query().Get("refresh")
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	var items []string
	anyErr := false
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var action map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		if err := json.Unmarshal(line, &action); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		meta := action["index"]
		if !sc.Scan() {
			http.Error(w, "missing source", http.StatusBadRequest)
			return
		}
		src := append([]byte(nil), sc.Bytes()...)
		if c.reject[meta.ID] {
			anyErr = true
			items = append(items, fmt.Sprintf(`{"index":{"_index":%q,"_id":%q,"status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}}`, meta.Index, meta.ID))
			continue
		}
		if c.docs[meta.Index] == nil {
			c.docs[meta.Index] = make(map[string]json.RawMessage)
		}
		c.docs[meta.Index][meta.ID] = src
		items = append(items, fmt.Sprintf(`{"index":{"_index":%q,"_id":%q,"status":201,"result":"created"}}`, meta.Index, meta.ID))
	}
	fmt.Fprintf(w, `{"took":1,"errors":%t,"items":[%s]}`, anyErr, strings.Join(items, ","))
}

func newTestIndexer(t *testing.T, c *fakeCluster, opts ...Option) *Indexer {
	t.Helper()
	ts := httptest.NewServer(c)
	t.Cleanup(ts.Close)
	client, err := NewClient(ts.URL)
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	log, _ := logtest.NewNullLogger()
	return NewIndexer(client, append([]Option{OptLogger(log)}, opts...)...)
}

func docs(ids ...string) []essync.Document {
	out := make([]essync.Document, len(ids))
	for i, id := range ids {
		out[i] = essync.Document{ID: id, Body: map[string]string{"uuid": id, "title": "t-" + id}}
	}
	return out
}

func TestBulkUpsert(t *testing.T) {
	c := newFakeCluster()
	ix := newTestIndexer(t, c, OptRefresh("wait_for"))
	ctx := context.Background()

	if err := ix.BulkUpsert(ctx, "movies", docs("a", "b")); err != nil {
		t.Fatalf("bulk upsert: %v", err)
	}
	if err := ix.BulkUpsert(ctx, "movies", docs("b", "c")); err != nil {
		t.Fatalf("bulk upsert: %v", err)
	}
	if len(c.docs["movies"]) != 3 {
		t.Fatalf("expected 3 documents keyed by id, got %d", len(c.docs["movies"]))
	}
	var m map[string]string
	if err := json.Unmarshal(c.docs["movies"]["c"], &m); err != nil || m["title"] != "t-c" {
		t.Fatalf("unexpected source %s: %v", c.docs["movies"]["c"], err)
	}
	if c.bulkCalls != 2 || c.refresh != "wait_for" {
		t.Fatalf("unexpected calls %d refresh %q", c.bulkCalls, c.refresh)
	}

	if err := ix.BulkUpsert(ctx, "movies", nil); err != nil || c.bulkCalls != 2 {
		t.Fatalf("an empty batch should not be sent: %v", err)
	}
}

func TestBulkUpsertPartialFailure(t *testing.T) {
	c := newFakeCluster()
	c.reject["b"] = true
	ix := newTestIndexer(t, c)

	err := ix.BulkUpsert(context.Background(), "movies", docs("a", "b", "c"))
	var berr *essync.BulkError
	if !errors.As(err, &berr) {
		t.Fatalf("expected a bulk error, got %v", err)
	}
	if berr.Total != 3 || len(berr.Failed) != 1 || berr.Failed[0].ID != "b" || berr.Failed[0].Status != 400 {
		t.Fatalf("unexpected bulk error %+v", berr)
	}
	if berr.Failed[0].Type != "mapper_parsing_exception" {
		t.Fatalf("unexpected failure type %q", berr.Failed[0].Type)
	}
	if essync.IsPermanent(err) {
		t.Fatalf("bulk errors are retried")
	}
}

func TestBulkUpsertUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	client, err := NewClient(url)
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	if err := NewIndexer(client).BulkUpsert(context.Background(), "movies", docs("a")); err == nil {
		t.Fatalf("expected an error from an unreachable cluster")
	}
}

func TestEnsureIndex(t *testing.T) {
	c := newFakeCluster()
	ix := newTestIndexer(t, c)
	dir := t.TempDir()
	mapping := `{"mappings":{"properties":{"title":{"type":"text"}}}}`
	if err := os.WriteFile(filepath.Join(dir, "movies.json"), []byte(mapping), 0644); err != nil {
		t.Fatalf("writing mapping: %v", err)
	}
	ctx := context.Background()

	if err := ix.EnsureIndex(ctx, "movies", dir); err != nil {
		t.Fatalf("ensuring movies: %v", err)
	}
	if c.indices["movies"] != mapping {
		t.Fatalf("index created with body %q", c.indices["movies"])
	}
	if err := ix.EnsureIndex(ctx, "genres", dir); err != nil {
		t.Fatalf("ensuring genres: %v", err)
	}
	if body, ok := c.indices["genres"]; !ok || body != "" {
		t.Fatalf("genres should be created without a mapping, got %q %v", body, ok)
	}

	c.indices["movies"] = "existing"
	if err := ix.EnsureIndex(ctx, "movies", dir); err != nil {
		t.Fatalf("ensuring existing index: %v", err)
	}
	if c.indices["movies"] != "existing" {
		t.Fatalf("existing index was recreated")
	}
}
