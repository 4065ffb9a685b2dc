// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which periodically logs
// counters and timing summaries. It is meant for running the synchronizer at
// the terminal in lieu of an actual collector such as statsd. Gauges,
// histograms and sets are stubs.
package termstat

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Collector collects stats and logs them on every tick.
type Collector struct {
	lock    sync.Mutex
	counts  map[string]int64
	timings map[string]time.Duration
	changed bool
	log     logrus.FieldLogger
}

// NewCollector initializes and returns a new Collector. Nothing is logged
// until Run is called.
func NewCollector(log logrus.FieldLogger) *Collector {
	return &Collector{
		counts:  make(map[string]int64),
		timings: make(map[string]time.Duration),
		log:     log,
	}
}

// Run logs the collected stats every interval until ctx is done.
func (t *Collector) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			t.write()
			return
		case <-tick.C:
			t.write()
		}
	}
}

// statName joins name with its tags so per-kind stats stay apart.
func statName(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	return name + "[" + strings.Join(tags, ",") + "]"
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	if rate < 1 && rand.Float64() > rate {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	t.counts[statName(name, tags)] += value
}

// Timing keeps the total time spent per named stat.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true
	t.timings[statName(name, tags)] += value
}

// Snapshot returns the current counters.
func (t *Collector) Snapshot() map[string]int64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	out := make(map[string]int64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

func (t *Collector) write() {
	t.lock.Lock()
	if !t.changed {
		t.lock.Unlock()
		return
	}
	fields := make(logrus.Fields, len(t.counts)+len(t.timings))
	for k, v := range t.counts {
		fields[k] = v
	}
	for k, v := range t.timings {
		fields[k] = v.String()
	}
	t.changed = false
	t.lock.Unlock()
	t.log.WithFields(fields).Info("stats")
}

// Names returns the sorted names of every counter seen so far.
func (t *Collector) Names() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	names := make([]string, 0, len(t.counts))
	for k := range t.counts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Gauge does nothing.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram does nothing.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}
