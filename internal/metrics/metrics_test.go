package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func swapBackend(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestRecordTask_SuccessAndFailure(t *testing.T) {
	fb := swapBackend(t)

	RecordTask("user_processing", "extract_user", nil, 2*time.Second)
	RecordTask("user_processing", "store_user", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters, %d histograms; want 2 and 2", len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != TaskTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, TaskTotal)
	}
	if cc0.labels["dag"] != "user_processing" || cc0.labels["task"] != "extract_user" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels = %v", cc0.labels)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != TaskDuration {
		t.Fatalf("hist[0].name=%q; want %s", h0.name, TaskDuration)
	}
	if h0.value < 2.0-0.001 || h0.value > 2.0+0.001 {
		t.Fatalf("hist[0].value=%v; want ~2.0", h0.value)
	}

	if got := fb.callsCounters[1].labels["status"]; got != "failed" {
		t.Fatalf("counter[1].labels[status]=%q; want failed", got)
	}
	if h1 := fb.callsHistograms[1]; h1.value < 1.5-0.001 || h1.value > 1.5+0.001 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordRun(t *testing.T) {
	fb := swapBackend(t)

	RecordRun("group_dag", nil, 30*time.Second)

	if len(fb.callsCounters) != 1 || fb.callsCounters[0].name != RunTotal {
		t.Fatalf("counters = %#v", fb.callsCounters)
	}
	if _, ok := fb.callsCounters[0].labels["task"]; ok {
		t.Fatalf("run metric must not carry a task label: %v", fb.callsCounters[0].labels)
	}
	if len(fb.callsHistograms) != 1 || fb.callsHistograms[0].name != RunDuration || fb.callsHistograms[0].value != 30 {
		t.Fatalf("histograms = %#v", fb.callsHistograms)
	}
}

func TestRecordRowsAndPokes(t *testing.T) {
	fb := swapBackend(t)

	RecordRows("user_processing", "staged", 1)
	RecordRows("user_processing", "loaded", 0) // ignored
	RecordRows("user_processing", "loaded", 1)
	RecordPoke("user_processing", "is_api_available", false)
	RecordPoke("user_processing", "is_api_available", true)

	if len(fb.callsCounters) != 4 {
		t.Fatalf("expected 4 counter calls, got %d", len(fb.callsCounters))
	}
	if c := fb.callsCounters[0]; c.name != RowsTotal || c.labels["kind"] != "staged" || c.delta != 1 {
		t.Fatalf("counter[0] = %#v", c)
	}
	if c := fb.callsCounters[1]; c.labels["kind"] != "loaded" {
		t.Fatalf("counter[1] = %#v", c)
	}
	if c := fb.callsCounters[2]; c.name != SensorPokeTotal || c.labels["result"] != "not_ready" {
		t.Fatalf("counter[2] = %#v", c)
	}
	if c := fb.callsCounters[3]; c.labels["result"] != "ready" {
		t.Fatalf("counter[3] = %#v", c)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
