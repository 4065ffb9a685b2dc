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
	"io"
	"log"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// consumer is the part of *cluster.Consumer the trigger uses.
type consumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan error
	MarkOffset(msg *sarama.ConsumerMessage, metadata string)
	Close() error
}

var _ essync.Trigger = &Trigger{}

// Trigger is an essync.Trigger which fires when a message arrives on any of
// its topics, typically change events published by the source database.
// Message contents are ignored and every message already waiting when it
// fires is consumed with it.
type Trigger struct {
	Hosts  []string
	Topics []string
	Group  string

	consumer consumer
	log      logrus.FieldLogger
}

// NewTrigger gets a new Trigger with default hosts, topic and group.
func NewTrigger() *Trigger {
	return &Trigger{
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"essync-changes"},
		Group:  "essync",
		log:    essync.Log("kafka"),
	}
}

// SetLogger sets the logger.
func (t *Trigger) SetLogger(log logrus.FieldLogger) {
	t.log = log
}

// Open joins the consumer group.
func (t *Trigger) Open() error {
	sarama.Logger = log.New(io.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	// only changes made after the group first joined need a pass; the
	// first pass catches up on everything before
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	c, err := cluster.NewConsumer(t.Hosts, t.Group, t.Topics, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}
	t.consumer = c
	return nil
}

// Wait implements essync.Trigger.
func (t *Trigger) Wait(ctx context.Context) error {
	if t.consumer == nil {
		return errors.New("kafka trigger not opened")
	}
	errs := t.consumer.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-t.consumer.Messages():
			if !ok {
				return errors.New("messages channel closed")
			}
			t.consumer.MarkOffset(msg, "")
			t.drain()
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.log.WithError(err).Warn("consuming change events")
		}
	}
}

// drain marks every message which is already waiting.
func (t *Trigger) drain() {
	for {
		select {
		case msg, ok := <-t.consumer.Messages():
			if !ok {
				return
			}
			t.consumer.MarkOffset(msg, "")
		default:
			return
		}
	}
}

// Close closes the underlying kafka consumer.
func (t *Trigger) Close() error {
	if t.consumer == nil {
		return nil
	}
	return errors.Wrap(t.consumer.Close(), "closing kafka consumer")
}
