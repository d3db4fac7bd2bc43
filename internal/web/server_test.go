package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"spotifydl/internal/model"
	"spotifydl/internal/pipeline"
	"spotifydl/internal/spotify"
)

// fakeRun reports two items per input: one succeeded, one cached.
func fakeRun(_ context.Context, input string, hooks pipeline.Hooks) (pipeline.Result, error) {
	switch input {
	case "bad":
		return pipeline.Result{Errors: []pipeline.InputError{{Input: input, Err: spotify.ErrUnsupportedURL}}}, nil
	case "broken":
		return pipeline.Result{}, errors.New("credentials missing")
	}
	l := model.List{Name: "Record", Type: model.TypeAlbum, Items: []model.Item{{ID: "1"}, {ID: "2"}}}
	hooks.OnListStart(l)
	hooks.OnItemDone(l.Items[0], model.Outcome{Status: model.StatusSucceeded})
	hooks.OnItemDone(l.Items[1], model.Outcome{Status: model.StatusCached})
	return pipeline.Result{Lists: []pipeline.ListResult{{List: l}}}, nil
}

func newTestServer(t *testing.T, run RunFunc) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(NewJobManager(), run, nil)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func postDownload(t *testing.T, srv *httptest.Server, url string) JobResponse {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/download", "application/json", strings.NewReader(`{"url":"`+url+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var job JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	return job
}

func waitFor(t *testing.T, s *Server, id string, status JobStatus) JobResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.jobMgr.GetJob(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := s.jobMgr.GetJob(id)
	t.Fatalf("job %s stuck in %s, want %s", id, job.Status, status)
	return job
}

func TestDownloadRunsJob(t *testing.T) {
	s, srv := newTestServer(t, fakeRun)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	job := postDownload(t, srv, "https://open.spotify.com/album/x")
	if job.Status != StatusPending {
		t.Errorf("new job status = %s", job.Status)
	}

	done := waitFor(t, s, job.ID, StatusCompleted)
	if done.Total != 2 || done.Progress != 2 || done.Succeeded != 1 || done.Cached != 1 {
		t.Errorf("unexpected counters %+v", done)
	}
	if len(done.Lists) != 1 || done.Lists[0] != "Record" {
		t.Errorf("lists = %v", done.Lists)
	}

	resp, err := http.Get(srv.URL + "/api/jobs/" + job.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got JobResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Errorf("GET job = %+v", got)
	}
}

func TestJobFailures(t *testing.T) {
	s, srv := newTestServer(t, fakeRun)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	bad := postDownload(t, srv, "bad")
	broken := postDownload(t, srv, "broken")

	if job := waitFor(t, s, bad.ID, StatusFailed); !strings.Contains(job.Error, "unsupported url") {
		t.Errorf("error = %q", job.Error)
	}
	if job := waitFor(t, s, broken.ID, StatusFailed); job.Error != "credentials missing" {
		t.Errorf("error = %q", job.Error)
	}
}

func TestCancelPendingJob(t *testing.T) {
	// No worker started: the job stays pending.
	s, srv := newTestServer(t, fakeRun)
	job := postDownload(t, srv, "https://open.spotify.com/album/x")

	resp, err := http.Post(srv.URL+"/api/jobs/"+job.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	got, _ := s.jobMgr.GetJob(job.ID)
	if got.Status != StatusCancelled || got.Progress != 0 {
		t.Errorf("cancelled job ran: %+v", got)
	}

	resp, err = http.Post(srv.URL+"/api/jobs/"+job.ID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", resp.StatusCode)
	}
}

func TestRequestValidation(t *testing.T) {
	_, srv := newTestServer(t, fakeRun)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty url", http.MethodPost, "/api/download", `{"url":"  "}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/download", `{`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/download", "", http.StatusMethodNotAllowed},
		{"unknown job", http.MethodGet, "/api/jobs/nope", "", http.StatusNotFound},
		{"missing id", http.MethodGet, "/api/jobs/", "", http.StatusBadRequest},
		{"ws without job", http.MethodGet, "/ws", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestWebSocketStreamsUntilDone(t *testing.T) {
	release := make(chan struct{})
	run := func(ctx context.Context, input string, hooks pipeline.Hooks) (pipeline.Result, error) {
		<-release
		return fakeRun(ctx, input, hooks)
	}
	s, srv := newTestServer(t, run)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	job := postDownload(t, srv, "https://open.spotify.com/album/x")
	waitFor(t, s, job.ID, StatusRunning)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?job_id=" + job.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var first JobResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Status != StatusRunning {
		t.Errorf("initial status = %s", first.Status)
	}
	close(release)

	var last JobResponse
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg JobResponse
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		last = msg
	}
	if last.Status != StatusCompleted || last.Progress != 2 {
		t.Errorf("last update = %+v", last)
	}
}
