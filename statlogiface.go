package essync

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Metric names emitted by the pipeline.
const (
	StatRowsExtracted  = "rows.extracted"
	StatDocsLoaded     = "docs.loaded"
	StatBatchesFailed  = "batches.failed"
	StatCursorAdvanced = "cursor.advanced"
	StatBatchLoad      = "batch.load"
	StatRetries        = "retries"
)

// Statter is the interface that stats collectors must implement to get stats
// out of the pipeline.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Histogram(name string, value float64, rate float64, tags ...string)
	Set(name string, value string, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter does nothing.
type NopStatter struct{}

// Count does nothing.
func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

// Gauge does nothing.
func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram does nothing.
func (NopStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (NopStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing does nothing.
func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Log returns the standard logger tagged with the name of the package doing
// the logging.
func Log(pkg string) *logrus.Entry {
	return logrus.WithField("package", pkg)
}

func kindTag(kind string) string {
	return "kind:" + kind
}
