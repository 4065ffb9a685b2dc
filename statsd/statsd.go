// Package statsd sends essync stats to a statsd or DogStatsD agent.
package statsd

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Namespace prefixes every stat name.
const Namespace = "essync."

// client is the subset of *statsd.Client the Statter uses.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Set(name string, value string, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Close() error
}

// Statter implements essync.Statter on top of a DogStatsD client. Send
// errors are logged at debug level and otherwise ignored.
type Statter struct {
	c   client
	log logrus.FieldLogger
}

var _ essync.Statter = &Statter{}

// NewStatter returns a Statter sending UDP packets to addr (host:port).
func NewStatter(addr string, log logrus.FieldLogger) (*Statter, error) {
	c, err := statsd.New(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "creating statsd client for %s", addr)
	}
	c.Namespace = Namespace
	return newStatter(c, log), nil
}

func newStatter(c client, log logrus.FieldLogger) *Statter {
	if log == nil {
		log = essync.Log("statsd")
	}
	return &Statter{c: c, log: log}
}

func (s *Statter) check(name string, err error) {
	if err != nil {
		s.log.WithError(err).WithField("stat", name).Debug("sending stat")
	}
}

// Count implements essync.Statter.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	s.check(name, s.c.Count(name, value, tags, rate))
}

// Gauge implements essync.Statter.
func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	s.check(name, s.c.Gauge(name, value, tags, rate))
}

// Histogram implements essync.Statter.
func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {
	s.check(name, s.c.Histogram(name, value, tags, rate))
}

// Set implements essync.Statter.
func (s *Statter) Set(name string, value string, rate float64, tags ...string) {
	s.check(name, s.c.Set(name, value, tags, rate))
}

// Timing implements essync.Statter.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.check(name, s.c.Timing(name, value, tags, rate))
}

// Close flushes and closes the underlying client.
func (s *Statter) Close() error {
	return errors.Wrap(s.c.Close(), "closing statsd client")
}
