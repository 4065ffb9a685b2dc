package essync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// State is the position of one kind's pipeline within a pass.
type State string

// Pipeline states.
const (
	StateIdle          State = "IDLE"
	StateExtracting    State = "EXTRACTING"
	StateTransforming  State = "TRANSFORMING"
	StateLoading       State = "LOADING"
	StateAdvanceCursor State = "ADVANCE_CURSOR"
	StateFailed        State = "FAILED"
)

// KindResult summarizes one kind's part of a pass.
type KindResult struct {
	Kind    string
	State   State
	Batches int
	Docs    int
	// From is the watermark the kind started from, To the last one
	// committed during the pass.
	From time.Time
	To   time.Time
	Err  error
}

// PassResult summarizes a pass over every kind.
type PassResult struct {
	// Pass numbers the driver's passes from 1.
	Pass     uint64
	Started  time.Time
	Duration time.Duration
	Kinds    []KindResult
}

// Err returns an error naming every kind which failed during the pass, or
// nil.
func (r PassResult) Err() error {
	var msgs []string
	for _, k := range r.Kinds {
		if k.Err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", k.Kind, k.Err))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Errorf("%d kind(s) failed: %s", len(msgs), strings.Join(msgs, "; "))
}

// KindStatus is the latest known state of one kind.
type KindStatus struct {
	Kind      string    `json:"kind"`
	State     State     `json:"state"`
	Watermark time.Time `json:"watermark"`
	LastPass  time.Time `json:"last_pass"`
	LastError string    `json:"last_error,omitempty"`
}

// Driver runs the extract, transform and load stages for every kind.
type Driver struct {
	kinds       *Kinds
	extractor   BatchExtractor
	transformer BatchTransformer
	loader      BatchLoader
	store       CursorStore

	retry       RetryPolicy
	concurrency int
	log         logrus.FieldLogger
	stats       Statter

	// locks keeps two pipelines for the same kind from running at once.
	locks map[string]*sync.Mutex

	passes *Nexter

	mu     sync.Mutex
	status map[string]*KindStatus
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// OptDriverRetry sets the policy applied when a kind's stream fails.
func OptDriverRetry(p RetryPolicy) DriverOption {
	return func(d *Driver) {
		d.retry = p
	}
}

// OptDriverConcurrency sets how many kinds are synchronized at once.
func OptDriverConcurrency(n int) DriverOption {
	return func(d *Driver) {
		d.concurrency = n
	}
}

// OptDriverLogger sets the logger.
func OptDriverLogger(log logrus.FieldLogger) DriverOption {
	return func(d *Driver) {
		d.log = log
	}
}

// OptDriverStatter sets the stats collector.
func OptDriverStatter(s Statter) DriverOption {
	return func(d *Driver) {
		d.stats = s
	}
}

// NewDriver returns a Driver for kinds. store is the same store the loader
// advances; the driver reads each kind's starting watermark from it.
func NewDriver(kinds *Kinds, ex BatchExtractor, tr BatchTransformer, ld BatchLoader, store CursorStore, opts ...DriverOption) *Driver {
	d := &Driver{
		kinds:       kinds,
		extractor:   ex,
		transformer: tr,
		loader:      ld,
		store:       store,
		retry:       DefaultRetryPolicy(),
		concurrency: 1,
		log:         Log("essync"),
		stats:       NopStatter{},
		locks:       make(map[string]*sync.Mutex),
		status:      make(map[string]*KindStatus),
		passes:      NewNexter(OptNexterStartFrom(1)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	for _, name := range kinds.Names() {
		d.locks[name] = &sync.Mutex{}
		d.status[name] = &KindStatus{Kind: name, State: StateIdle}
	}
	return d
}

// Run waits for trig and runs a pass each time it fires, until ctx is done.
// A failing kind does not stop the loop; it is retried on the next pass.
func (d *Driver) Run(ctx context.Context, trig Trigger) error {
	for {
		if err := trig.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "waiting for trigger")
		}
		res := d.RunPass(ctx)
		if ctx.Err() != nil {
			return nil
		}
		entry := d.log.WithFields(logrus.Fields{"pass": res.Pass, "duration": res.Duration})
		if err := res.Err(); err != nil {
			entry.WithError(err).Error("pass finished with failures")
		} else {
			entry.Info("pass finished")
		}
	}
}

// RunPass synchronizes every kind once, in registration order, at most
// concurrency kinds at a time. A kind's failure is recorded in its result
// and does not stop the others.
func (d *Driver) RunPass(ctx context.Context) PassResult {
	names := d.kinds.Names()
	res := PassResult{
		Pass:    d.passes.Next(),
		Started: time.Now(),
		Kinds:   make([]KindResult, len(names)),
	}
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, name := range names {
		g.Go(func() error {
			res.Kinds[i] = d.runKind(ctx, name, res.Pass)
			return nil
		})
	}
	_ = g.Wait()
	res.Duration = time.Since(res.Started)
	return res
}

func (d *Driver) runKind(ctx context.Context, kind string, pass uint64) KindResult {
	lock := d.locks[kind]
	lock.Lock()
	defer lock.Unlock()

	log := d.log.WithFields(logrus.Fields{"kind": kind, "pass": pass})
	res := KindResult{Kind: kind}
	first := true
	err := d.retry.Do(ctx, log, d.stats, "sync "+kind, func() error {
		since := ReadWatermark(ctx, d.store, kind, log)
		if first {
			res.From = since
			res.To = since
			first = false
		}
		return d.syncKind(ctx, kind, since, &res)
	})
	res.State = StateIdle
	if err != nil {
		res.State = StateFailed
		res.Err = err
		log.WithError(err).Error("sync failed")
	}
	d.finish(res)
	return res
}

// syncKind streams kind from since, loading each batch before asking for
// the next.
func (d *Driver) syncKind(ctx context.Context, kind string, since time.Time, res *KindResult) error {
	d.setState(kind, StateExtracting)
	for batch, err := range d.extractor.Extract(ctx, kind, since) {
		if err != nil {
			return errors.Wrapf(err, "extracting %s", kind)
		}

		d.setState(kind, StateTransforming)
		docs, err := d.transformer.Transform(ctx, batch)
		if err != nil {
			d.stats.Count(StatBatchesFailed, 1, 1, kindTag(kind))
			return errors.Wrapf(err, "transforming batch %d", batch.Seq)
		}

		d.setState(kind, StateLoading)
		if err := d.loader.Load(ctx, docs); err != nil {
			return err
		}

		d.setState(kind, StateAdvanceCursor)
		res.Batches++
		res.Docs += len(docs.Docs)
		if docs.Watermark.After(res.To) {
			res.To = docs.Watermark
			d.setWatermark(kind, docs.Watermark)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		d.setState(kind, StateExtracting)
	}
	return nil
}

func (d *Driver) setState(kind string, s State) {
	d.mu.Lock()
	d.status[kind].State = s
	d.mu.Unlock()
}

func (d *Driver) setWatermark(kind string, wm time.Time) {
	d.mu.Lock()
	d.status[kind].Watermark = wm
	d.mu.Unlock()
}

func (d *Driver) finish(res KindResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status[res.Kind]
	st.State = res.State
	st.LastPass = time.Now()
	st.LastError = ""
	if res.Err != nil {
		st.LastError = res.Err.Error()
	}
	if res.To.After(st.Watermark) {
		st.Watermark = res.To
	}
}

// Status returns the latest state of every kind, in registration order.
func (d *Driver) Status() []KindStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]KindStatus, 0, len(d.status))
	for _, name := range d.kinds.Names() {
		out = append(out, *d.status[name])
	}
	return out
}
