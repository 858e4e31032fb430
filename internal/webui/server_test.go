package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"userflow/internal/dag"
)

type catalog map[string]*dag.DAG

func (c catalog) Get(id string) (*dag.DAG, bool) {
	d, ok := c[id]
	return d, ok
}

func (c catalog) All() []*dag.DAG {
	out := make([]*dag.DAG, 0, len(c))
	for _, id := range []string{"user_processing", "group_dag"} {
		if d, ok := c[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

func newTestServer(t *testing.T, release <-chan struct{}) (*Server, *httptest.Server) {
	t.Helper()

	up := dag.New("user_processing", dag.Meta{Schedule: "@daily", StartDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)})
	_ = up.Add(dag.NewTask("extract_user", func(ctx context.Context, _ *dag.RunContext) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	group := dag.New("group_dag", dag.Meta{})
	_ = group.Add(dag.NewTask("downloads", func(context.Context, *dag.RunContext) error { return errors.New("boom") }))

	h := dag.NewHistory(0)
	next := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewServer(Config{Addr: ":0"}, Deps{
		DAGs:    catalog{"user_processing": up, "group_dag": group},
		Runner:  &dag.Runner{History: h},
		History: h,
		Next: func(id string) (time.Time, bool) {
			return next, id == "user_processing"
		},
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown()
	})
	return s, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func waitForState(t *testing.T, h *dag.History, dagID, runID string, want dag.State) dag.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if run, ok := h.Get(dagID, runID); ok && run.State == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s of %s never reached %s", runID, dagID, want)
	return dag.Run{}
}

func TestHealthzAndIndex(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"user_processing", "group_dag", "@daily", "2030-01-02 00:00"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestListDAGs(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, nil)

	var views []dagView
	if code := getJSON(t, ts.URL+"/api/dags", &views); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(views) != 2 || views[0].DagID != "user_processing" || views[1].DagID != "group_dag" {
		t.Fatalf("views = %+v", views)
	}
	if views[0].NextRun == nil || views[1].NextRun != nil {
		t.Fatalf("next runs = %v / %v", views[0].NextRun, views[1].NextRun)
	}
	if views[0].StartDate == nil || views[0].Tasks[0] != "extract_user" {
		t.Fatalf("view = %+v", views[0])
	}
}

func TestTriggerAndInspectRuns(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s, ts := newTestServer(t, release)

	resp, err := http.Post(ts.URL+"/api/dags/user_processing/runs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var created map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || created["run_id"] == "" {
		t.Fatalf("trigger = %d %v", resp.StatusCode, created)
	}
	runID := created["run_id"]

	// A second trigger while the first is still going is refused.
	resp, err = http.Post(ts.URL+"/api/dags/user_processing/runs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second trigger = %d, want 409", resp.StatusCode)
	}

	close(release)
	waitForState(t, s.deps.History, "user_processing", runID, dag.StateSuccess)

	var run dag.Run
	if code := getJSON(t, ts.URL+"/api/dags/user_processing/runs/"+runID, &run); code != http.StatusOK {
		t.Fatalf("get run status = %d", code)
	}
	if run.Trigger != dag.TriggerManual || len(run.Tasks) != 1 || run.Tasks[0].State != dag.StateSuccess {
		t.Fatalf("run = %+v", run)
	}

	var runs []dag.Run
	if code := getJSON(t, ts.URL+"/api/dags/user_processing/runs", &runs); code != http.StatusOK || len(runs) != 1 {
		t.Fatalf("runs = %d %+v", code, runs)
	}
}

func TestFormTriggerRecordsFailure(t *testing.T) {
	t.Parallel()

	s, ts := newTestServer(t, nil)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Post(ts.URL+"/dags/group_dag/trigger", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}

	s.inflight.Wait()
	run, ok := s.deps.History.Latest("group_dag")
	if !ok || run.State != dag.StateFailed || !strings.Contains(run.Error, "boom") {
		t.Fatalf("run = %+v, %v", run, ok)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t, nil)
	for _, path := range []string{"/api/dags/nope/runs", "/api/dags/user_processing/runs/missing"} {
		if code := getJSON(t, ts.URL+path, nil); code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, code)
		}
	}
	resp, err := http.Post(ts.URL+"/api/dags/nope/runs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("trigger unknown = %d, want 404", resp.StatusCode)
	}
}

func TestTriggerRefusedWhileScheduledRunHoldsDAG(t *testing.T) {
	t.Parallel()

	s, ts := newTestServer(t, nil)
	release, ok := s.deps.Runner.Claim("group_dag")
	if !ok {
		t.Fatal("claim failed")
	}

	resp, err := http.Post(ts.URL+"/api/dags/group_dag/runs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("trigger = %d, want 409", resp.StatusCode)
	}
	if _, ok := s.deps.History.Latest("group_dag"); ok {
		t.Fatal("a refused trigger must not record a run")
	}

	release()
	resp, err = http.Post(ts.URL+"/api/dags/group_dag/runs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("trigger after release = %d, want 202", resp.StatusCode)
	}
}
