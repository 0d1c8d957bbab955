package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bindstack/bindstack/internal/binder"
	"github.com/bindstack/bindstack/internal/clock/system"
	"github.com/bindstack/bindstack/internal/epub"
	iduuid "github.com/bindstack/bindstack/internal/id/uuid"
	"github.com/bindstack/bindstack/internal/job"
)

type apiFakeClient struct {
	articles map[string]string
	batches  [][]binder.PostMetadata
	batchErr error
}

func (c *apiFakeClient) PostBatches() binder.PostBatches {
	return &apiFakeBatches{pages: c.batches, err: c.batchErr}
}

func (c *apiFakeClient) FetchArticle(_ context.Context, slug string) (string, error) {
	html, ok := c.articles[slug]
	if !ok {
		return "", &binder.FetchError{URL: slug, StatusCode: 404}
	}
	return html, nil
}

func (c *apiFakeClient) FetchImage(context.Context, string) (binder.ImageAsset, bool) {
	return binder.ImageAsset{Data: []byte("img"), MediaType: "image/jpeg", Ext: ".jpg"}, true
}

type apiFakeBatches struct {
	pages [][]binder.PostMetadata
	idx   int
	err   error
}

func (b *apiFakeBatches) Next(context.Context) bool {
	if b.err != nil || b.idx >= len(b.pages) {
		return false
	}
	b.idx++
	return true
}

func (b *apiFakeBatches) Batch() []binder.PostMetadata { return b.pages[b.idx-1] }
func (b *apiFakeBatches) Err() error                   { return b.err }

type apiFakeFactory struct {
	client binder.ContentClient
}

func (f apiFakeFactory) New(_, _ string) binder.ContentClient { return f.client }

func articleHTML(title string) string {
	return fmt.Sprintf(`<html><head><meta name="author" content="Ada"/></head><body>
		<h1 class="post-title">%s</h1>
		<time datetime="2024-02-03T08:00:00.000Z">Feb 3</time>
		<div class="body"><p>some text</p></div>
	</body></html>`, title)
}

type testEnv struct {
	server   *Server
	registry *job.Registry
}

func newTestEnv(t *testing.T, client binder.ContentClient) testEnv {
	t.Helper()
	registry := job.NewRegistry(job.RegistryConfig{
		Workdir:   t.TempDir(),
		TTL:       time.Hour,
		KeepAlive: 100 * time.Millisecond,
	}, system.New(), iduuid.NewGenerator(), nil)
	factory := apiFakeFactory{client: client}
	runner := job.NewRunner(factory, epub.NewBuilder(nil), 0, nil)
	return testEnv{
		server:   NewServer(context.Background(), registry, runner, factory, nil),
		registry: registry,
	}
}

// submitAndWait posts a job and blocks until it reaches a terminal state.
func (e testEnv) submitAndWait(t *testing.T, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)

	j, err := e.registry.Get(jobID)
	require.NoError(t, err)
	sub := j.Subscribe()
	defer sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		evt, err := sub.Next(ctx)
		require.NoError(t, err)
		if evt.Type == binder.EventDone {
			return jobID
		}
	}
}

func TestServer_CreateJob_Succeeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{articles: map[string]string{"a": articleHTML("Post A")}})
	jobID := env.submitAndWait(t, `{"publication":"testpub","slugs":["a"]}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID, nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap binder.JobSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, binder.JobStatusCompleted, snap.Status)
	require.Equal(t, 1, snap.Progress)
	require.Equal(t, 1, snap.Total)
}

func TestServer_CreateJob_InvalidJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CreateJob_EmptySlugs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString(`{"publication":"testpub","slugs":[]}`))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no posts selected")
}

func TestServer_CreateJob_MissingPublication(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString(`{"slugs":["a"]}`))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "publication required")
}

func TestServer_GetJob_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/deadbeef0000", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DownloadBundle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{articles: map[string]string{"a": articleHTML("Post A")}})
	jobID := env.submitAndWait(t, `{"publication":"testpub","slugs":["a"]}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID+"/download", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "testpub_epubs.zip")
	require.NotZero(t, rec.Body.Len())
}

func TestServer_DownloadBundle_NotReady(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	j, err := env.registry.Create("testpub", []string{"a"}, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+j.ID+"/download", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "bundle not ready")
}

func TestServer_StreamJob_TerminalJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{articles: map[string]string{"a": articleHTML("Post A")}})
	jobID := env.submitAndWait(t, `{"publication":"testpub","slugs":["a"]}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID+"/stream", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, "event: status\n")
	require.Contains(t, body, `"status":"completed"`)
	require.Contains(t, body, "event: done\n")
}

func TestServer_StreamJob_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/deadbeef0000/stream", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListPosts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{batches: [][]binder.PostMetadata{
		{{Title: "First", Slug: "first", Date: "2024-01-01", Author: "Ada"}},
		{{Title: "Second", Slug: "second", Date: "2024-01-08", Author: "Ada"}},
	}})
	req := httptest.NewRequest(http.MethodGet, "/v1/publications/testpub/posts", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Posts []binder.PostMetadata `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 2)
	require.Equal(t, "first", resp.Posts[0].Slug)
	require.Equal(t, "second", resp.Posts[1].Slug)
}

func TestServer_ListPosts_UpstreamError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{
		batchErr: &binder.FetchError{URL: "https://testpub.substack.com", StatusCode: 503},
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/publications/testpub/posts", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &apiFakeClient{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}
