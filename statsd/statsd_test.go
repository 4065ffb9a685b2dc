package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type sent struct {
	name string
	tags []string
}

type fakeClient struct {
	sent []sent
	err  error
}

func (f *fakeClient) record(name string, tags []string) error {
	f.sent = append(f.sent, sent{name, tags})
	return f.err
}

func (f *fakeClient) Count(name string, value int64, tags []string, rate float64) error {
	return f.record(name, tags)
}
func (f *fakeClient) Gauge(name string, value float64, tags []string, rate float64) error {
	return f.record(name, tags)
}
func (f *fakeClient) Histogram(name string, value float64, tags []string, rate float64) error {
	return f.record(name, tags)
}
func (f *fakeClient) Set(name string, value string, tags []string, rate float64) error {
	return f.record(name, tags)
}
func (f *fakeClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	return f.record(name, tags)
}
func (f *fakeClient) Close() error { return nil }

func TestStatterForwards(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	fc := &fakeClient{}
	s := newStatter(fc, log)
	s.Count("docs.loaded", 3, 1, "kind:movies")
	s.Timing("batch.load", time.Millisecond, 1, "kind:movies")
	if len(fc.sent) != 2 || fc.sent[0].name != "docs.loaded" || fc.sent[1].tags[0] != "kind:movies" {
		t.Fatalf("unexpected stats %+v", fc.sent)
	}
	if len(hook.Entries) != 0 {
		t.Fatalf("nothing should be logged on success")
	}

	fc.err = errors.New("no agent")
	s.Gauge("lag", 1, 1)
	if len(hook.Entries) != 1 || hook.LastEntry().Data["stat"] != "lag" {
		t.Fatalf("expected the send error to be logged, got %v", hook.Entries)
	}
}

func TestNewStatterUDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer conn.Close()

	s, err := NewStatter(conn.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("creating statter: %v", err)
	}
	s.Count("rows.extracted", 4, 1, "kind:genres")
	if err := s.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	buf := make([]byte, 1024)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("reading packet: %v", err)
	}
	if got := string(buf[:n]); !strings.HasPrefix(got, "essync.rows.extracted:4|c") || !strings.Contains(got, "kind:genres") {
		t.Fatalf("unexpected packet %q", got)
	}
}
