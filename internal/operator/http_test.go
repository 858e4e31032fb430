package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"userflow/internal/dag"
	"userflow/internal/datasource/httpds"
)

const adaJSON = `{"results":[{"name":{"first":"Ada","last":"Lovelace"},"location":{"country":"UK"},"login":{"username":"ada","password":"x"},"email":"a@b.com"}]}`

func newClient(t *testing.T, base string) *httpds.Client {
	t.Helper()
	c, err := httpds.NewClient(httpds.Config{
		BaseURL:        base,
		Timeout:        2 * time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func newRC() *dag.RunContext {
	return dag.NewRunContext("user_processing", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestHTTPSensor_SucceedsAfterNotReady(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/" {
			t.Errorf("path = %q, want /api/", r.URL.Path)
		}
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &HTTPSensor{
		TaskID:       "is_api_available",
		Client:       newClient(t, srv.URL),
		Endpoint:     "api/",
		PokeInterval: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	}
	if err := s.Execute(context.Background(), newRC()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("pokes = %d, want 3", got)
	}
}

func TestHTTPSensor_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := &HTTPSensor{
		TaskID:       "is_api_available",
		Client:       newClient(t, srv.URL),
		Endpoint:     "api/",
		PokeInterval: 20 * time.Millisecond,
		Timeout:      70 * time.Millisecond,
	}
	start := time.Now()
	err := s.Execute(context.Background(), newRC())
	if !errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("err = %v, want ErrSensorTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("sensor overran its timeout")
	}
}

func TestHTTPSensor_ParentCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	s := &HTTPSensor{
		TaskID:       "is_api_available",
		Client:       newClient(t, srv.URL),
		Endpoint:     "api/",
		PokeInterval: 10 * time.Millisecond,
		Timeout:      time.Hour,
	}
	if err := s.Execute(ctx, newRC()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPSensor_UnreachableHostTimesOut(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	s := &HTTPSensor{
		TaskID:       "is_api_available",
		Client:       newClient(t, base),
		Endpoint:     "api/",
		PokeInterval: 10 * time.Millisecond,
		Timeout:      50 * time.Millisecond,
	}
	if err := s.Execute(context.Background(), newRC()); !errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("err = %v, want ErrSensorTimeout", err)
	}
}

func TestHTTPOperator_PushesJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(adaJSON))
	}))
	defer srv.Close()

	rc := newRC()
	o := &HTTPOperator{TaskID: "extract_user", Client: newClient(t, srv.URL), Endpoint: "api/", LogResponse: true}
	if err := o.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	raw, err := dag.PullAs[json.RawMessage](rc, "extract_user")
	if err != nil {
		t.Fatalf("PullAs: %v", err)
	}
	if string(raw) != adaJSON {
		t.Fatalf("pushed %s", raw)
	}
}

func TestHTTPOperator_CustomFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	rc := newRC()
	o := &HTTPOperator{
		TaskID:   "extract_user",
		Client:   newClient(t, srv.URL),
		Endpoint: "api/",
		ResponseFilter: func(b []byte) (any, error) {
			return len(b), nil
		},
	}
	if err := o.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n, err := dag.PullAs[int](rc, "extract_user"); err != nil || n != 7 {
		t.Fatalf("PullAs = %d, %v", n, err)
	}
}

func TestHTTPOperator_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx status",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var se *httpds.StatusError
				if !errors.As(err, &se) || se.Code != http.StatusNotFound {
					t.Fatalf("err = %v, want *httpds.StatusError 404", err)
				}
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   "<html>",
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Fatal("expected filter error")
				}
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			rc := newRC()
			o := &HTTPOperator{TaskID: "extract_user", Client: newClient(t, srv.URL), Endpoint: "api/"}
			tt.check(t, o.Execute(context.Background(), rc))
			if _, ok := rc.Pull("extract_user", dag.ReturnValueKey); ok {
				t.Fatal("nothing should be pushed on failure")
			}
		})
	}
}

func TestHTTPSensor_VerboseLogsEachFailedPoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	prev := log.Writer()
	defer log.SetOutput(prev)

	for _, verbose := range []bool{false, true} {
		var buf bytes.Buffer
		log.SetOutput(&buf)
		s := &HTTPSensor{
			TaskID:       "quiet_sensor",
			Client:       newClient(t, srv.URL),
			Endpoint:     "api/",
			PokeInterval: 10 * time.Millisecond,
			Timeout:      45 * time.Millisecond,
			Verbose:      verbose,
		}
		if err := s.Execute(context.Background(), newRC()); !errors.Is(err, ErrSensorTimeout) {
			t.Fatalf("verbose=%v: err = %v, want ErrSensorTimeout", verbose, err)
		}
		got := strings.Contains(buf.String(), "task=quiet_sensor endpoint=api/ not ready")
		if got != verbose {
			t.Fatalf("verbose=%v: not-ready line logged=%v\n%s", verbose, got, buf.String())
		}
	}
}
