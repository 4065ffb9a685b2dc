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

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeConsumer struct {
	msgs   chan *sarama.ConsumerMessage
	errs   chan error
	marked []int64
	closed bool
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{
		msgs: make(chan *sarama.ConsumerMessage, 10),
		errs: make(chan error, 10),
	}
}

func (f *fakeConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.msgs }
func (f *fakeConsumer) Errors() <-chan error                     { return f.errs }
func (f *fakeConsumer) MarkOffset(msg *sarama.ConsumerMessage, metadata string) {
	f.marked = append(f.marked, msg.Offset)
}
func (f *fakeConsumer) Close() error { f.closed = true; close(f.msgs); return nil }

func TestTriggerWait(t *testing.T) {
	fc := newFakeConsumer()
	log, hook := logtest.NewNullLogger()
	trig := NewTrigger()
	trig.SetLogger(log)
	trig.consumer = fc

	fc.errs <- errors.New("leader not available")
	for i := int64(1); i <= 3; i++ {
		fc.msgs <- &sarama.ConsumerMessage{Topic: "essync-changes", Offset: i, Value: []byte("content.film_work")}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := trig.Wait(ctx); err != nil {
		t.Fatalf("waiting: %v", err)
	}
	if len(fc.marked) != 3 {
		t.Fatalf("expected every waiting message to be marked, got %v", fc.marked)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := trig.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no further pass, got %v", err)
	}
	if len(hook.Entries) == 0 {
		t.Fatalf("consumer errors should be logged")
	}

	if err := trig.Close(); err != nil || !fc.closed {
		t.Fatalf("closing: %v", err)
	}
	if err := trig.Wait(context.Background()); err == nil {
		t.Fatalf("expected an error once the consumer is closed")
	}
}

func TestTriggerNotOpened(t *testing.T) {
	if err := NewTrigger().Wait(context.Background()); err == nil {
		t.Fatalf("expected an error waiting on an unopened trigger")
	}
}
