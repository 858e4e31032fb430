package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"userflow/internal/dag"
	"userflow/internal/datasource/httpds"
	"userflow/internal/metrics"
)

// ErrSensorTimeout is returned when a sensor's condition is not met before
// its timeout.
var ErrSensorTimeout = errors.New("sensor timed out")

// HTTPSensor pokes Endpoint until it answers with a 2xx status. Transport
// errors and non-2xx answers mean "not yet". Pokes are paced one per
// PokeInterval.
type HTTPSensor struct {
	TaskID       string
	Client       *httpds.Client
	Endpoint     string
	PokeInterval time.Duration
	Timeout      time.Duration

	// Verbose logs every failed poke.
	Verbose bool
}

func (s *HTTPSensor) ID() string { return s.TaskID }

func (s *HTTPSensor) Execute(ctx context.Context, rc *dag.RunContext) error {
	if s.Client == nil {
		return fmt.Errorf("sensor %s: no http client", s.TaskID)
	}
	pokeCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		pokeCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	interval := s.PokeInterval
	if interval <= 0 {
		interval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for pokes := 1; ; pokes++ {
		if err := limiter.Wait(pokeCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s after %s and %d pokes", ErrSensorTimeout, s.Endpoint, s.Timeout, pokes-1)
		}
		err := s.Client.Probe(pokeCtx, s.Endpoint)
		metrics.RecordPoke(rc.DagID, s.TaskID, err == nil)
		if err == nil {
			log.Printf("sensor: task=%s endpoint=%s ready pokes=%d", s.TaskID, s.Endpoint, pokes)
			return nil
		}
		if s.Verbose {
			log.Printf("sensor: task=%s endpoint=%s not ready: %v", s.TaskID, s.Endpoint, err)
		}
	}
}

// HTTPOperator issues one GET and pushes the filtered response body.
type HTTPOperator struct {
	TaskID   string
	Client   *httpds.Client
	Endpoint string

	// ResponseFilter turns the UTF-8 body into the pushed value. The default
	// checks the body is JSON and pushes it as json.RawMessage.
	ResponseFilter func(body []byte) (any, error)

	// LogResponse logs the decoded body.
	LogResponse bool
}

func (o *HTTPOperator) ID() string { return o.TaskID }

func (o *HTTPOperator) Execute(ctx context.Context, rc *dag.RunContext) error {
	if o.Client == nil {
		return fmt.Errorf("http %s: no http client", o.TaskID)
	}
	resp, err := o.Client.Get(ctx, o.Endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpds.StatusError{URL: resp.Request.URL.String(), Code: resp.StatusCode}
	}
	body, charset, err := httpds.ReadText(resp)
	if err != nil {
		return err
	}
	if o.LogResponse {
		log.Printf("http: task=%s status=%d charset=%s body=%s", o.TaskID, resp.StatusCode, charset, body)
	}

	filter := o.ResponseFilter
	if filter == nil {
		filter = jsonFilter
	}
	v, err := filter(body)
	if err != nil {
		return fmt.Errorf("http %s: response filter: %w", o.TaskID, err)
	}
	rc.Push(o.TaskID, dag.ReturnValueKey, v)
	return nil
}

func jsonFilter(body []byte) (any, error) {
	if !json.Valid(body) {
		return nil, errors.New("body is not valid JSON")
	}
	return json.RawMessage(body), nil
}
