// Package webui serves a small status page and JSON API for the DAGs known
// to the running process.
//
// Routes:
//
//	GET  /healthz                          → "ok"
//	GET  /                                 → HTML overview
//	POST /dags/{dagID}/trigger             → form trigger, redirects to /
//	GET  /api/dags                         → DAG list with schedule and last state
//	GET  /api/dags/{dagID}/runs            → recent runs, newest first
//	GET  /api/dags/{dagID}/runs/{runID}    → one run with task states
//	POST /api/dags/{dagID}/runs            → trigger a manual run (202)
package webui

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"userflow/internal/dag"
)

// Catalog is the set of DAGs the server exposes.
type Catalog interface {
	Get(id string) (*dag.DAG, bool)
	All() []*dag.DAG
}

// Config controls server startup.
type Config struct {
	Addr string
}

// Deps are the collaborators the handlers read from and trigger through.
type Deps struct {
	DAGs    Catalog
	Runner  *dag.Runner
	History *dag.History
	// Next reports a DAG's next scheduled run. Optional.
	Next func(dagID string) (time.Time, bool)
}

// Server wraps the router and tracks runs it triggered.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
	tmpl   *template.Template

	// runCtx is the parent of triggered runs; Shutdown cancels it.
	runCtx    context.Context
	cancelRun context.CancelFunc
	inflight  sync.WaitGroup
}

// NewServer constructs a Server with routes and the embedded template.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.History == nil {
		deps.History = dag.NewHistory(0)
	}
	if deps.Runner == nil {
		deps.Runner = &dag.Runner{History: deps.History}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		router:    chi.NewRouter(),
		tmpl:      template.Must(template.New("index").Funcs(funcs).Parse(indexHTML)),
		runCtx:    ctx,
		cancelRun: cancel,
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("webui: listening addr=%s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	return err
}

// Shutdown cancels runs triggered through the server and waits for them.
func (s *Server) Shutdown() {
	s.cancelRun()
	s.inflight.Wait()
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", s.handleIndex)
	r.Post("/dags/{dagID}/trigger", s.handleFormTrigger)

	r.Route("/api/dags", func(r chi.Router) {
		r.Get("/", s.handleListDAGs)
		r.Route("/{dagID}/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleTrigger)
			r.Get("/{runID}", s.handleGetRun)
		})
	})
}

// dagView is the JSON and template shape of one DAG.
type dagView struct {
	DagID       string     `json:"dag_id"`
	Description string     `json:"description,omitempty"`
	Schedule    string     `json:"schedule"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	Catchup     bool       `json:"catchup"`
	Tasks       []string   `json:"tasks"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastRun     *dag.Run   `json:"last_run,omitempty"`
}

func (s *Server) view(d *dag.DAG) dagView {
	v := dagView{
		DagID:       d.ID,
		Description: d.Meta.Description,
		Schedule:    d.Meta.Schedule,
		Catchup:     d.Meta.Catchup,
		Tasks:       d.TaskIDs(),
	}
	if !d.Meta.StartDate.IsZero() {
		sd := d.Meta.StartDate
		v.StartDate = &sd
	}
	if s.deps.Next != nil {
		if next, ok := s.deps.Next(d.ID); ok {
			v.NextRun = &next
		}
	}
	if last, ok := s.deps.History.Latest(d.ID); ok {
		v.LastRun = &last
	}
	return v
}

func (s *Server) views() []dagView {
	all := s.deps.DAGs.All()
	out := make([]dagView, 0, len(all))
	for _, d := range all {
		out = append(out, s.view(d))
	}
	return out
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, s.views()); err != nil {
		log.Println("webui: template error:", err)
	}
}

func (s *Server) handleListDAGs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "dagID")
	if _, ok := s.deps.DAGs.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown dag "+id)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.History.List(id))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "dagID")
	run, ok := s.deps.History.Get(id, chi.URLParam(r, "runID"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	runID, status, err := s.trigger(chi.URLParam(r, "dagID"))
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleFormTrigger(w http.ResponseWriter, r *http.Request) {
	if _, status, err := s.trigger(chi.URLParam(r, "dagID")); err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

var errRunning = errors.New("a run of this dag is still in progress")

// trigger starts a manual run in the background. A DAG whose latest run is
// still going is refused.
func (s *Server) trigger(id string) (string, int, error) {
	d, ok := s.deps.DAGs.Get(id)
	if !ok {
		return "", http.StatusNotFound, errors.New("unknown dag " + id)
	}
	release, ok := s.deps.Runner.Claim(id)
	if !ok {
		return "", http.StatusConflict, errRunning
	}

	runID := uuid.NewString()
	// Record the run before returning so the caller can poll it at once.
	s.deps.History.Put(dag.Run{DagID: id, RunID: runID, Trigger: dag.TriggerManual, State: dag.StateQueued, Start: time.Now()})

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer release()
		if _, err := s.deps.Runner.Run(s.runCtx, d, dag.RunOptions{RunID: runID, Trigger: dag.TriggerManual}); err != nil {
			log.Printf("webui: dag=%s run_id=%s failed: %v", id, runID, err)
		}
	}()
	return runID, http.StatusAccepted, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Println("webui: encode error:", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var funcs = template.FuncMap{
	"ts": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
}

//go:embed index.tmpl.html
var indexHTML string
