package postgres

import (
	"context"
	"time"

	"github.com/cinemadb/essync"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the NOTIFY channel listened on unless configured.
const DefaultChannel = "essync_changes"

type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

var _ essync.Trigger = &Listener{}

// Listener is an essync.Trigger which fires when a notification arrives on a
// Postgres channel. Payloads are ignored: the pass works out what changed
// from the cursors. Notifications arriving within Debounce of each other
// result in a single pass.
type Listener struct {
	Debounce     time.Duration
	PingInterval time.Duration

	l       notifier
	channel string
	log     logrus.FieldLogger
}

// NewListener connects to dsn and listens on channel. The connection is
// re-established in the background if it drops.
func NewListener(dsn, channel string, log logrus.FieldLogger) (*Listener, error) {
	if log == nil {
		log = essync.Log("postgres")
	}
	log = log.WithField("channel", channel)
	pl := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Debug("listener connected")
		case pq.ListenerEventDisconnected:
			log.WithError(err).Warn("listener disconnected")
		case pq.ListenerEventReconnected:
			log.Info("listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.WithError(err).Warn("listener connection attempt failed")
		}
	})
	if err := pl.Listen(channel); err != nil {
		pl.Close()
		return nil, errors.Wrapf(err, "listening on %s", channel)
	}
	return newListener(pl, channel, log), nil
}

func newListener(n notifier, channel string, log logrus.FieldLogger) *Listener {
	return &Listener{
		Debounce:     500 * time.Millisecond,
		PingInterval: 90 * time.Second,
		l:            n,
		channel:      channel,
		log:          log,
	}
}

// Wait implements essync.Trigger.
func (l *Listener) Wait(ctx context.Context) error {
	ping := time.NewTicker(l.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-l.l.NotificationChannel():
			if !ok {
				return errors.Errorf("listener on %s closed", l.channel)
			}
			if n == nil {
				// reconnected; anything sent meanwhile was lost
				l.log.Info("running a pass after reconnecting")
			}
			return l.settle(ctx)
		case <-ping.C:
			go func() {
				if err := l.l.Ping(); err != nil {
					l.log.WithError(err).Warn("pinging listener connection")
				}
			}()
		}
	}
}

// settle swallows notifications until none has arrived for Debounce.
func (l *Listener) settle(ctx context.Context) error {
	if l.Debounce <= 0 {
		return nil
	}
	timer := time.NewTimer(l.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-l.l.NotificationChannel():
			if !ok {
				return nil
			}
			timer.Reset(l.Debounce)
		case <-timer.C:
			return nil
		}
	}
}

// Close stops listening.
func (l *Listener) Close() error {
	return errors.Wrap(l.l.Close(), "closing listener")
}
