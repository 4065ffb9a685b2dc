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

package essync

import (
	"sync/atomic"
)

// Nexter hands out increasing sequence numbers; it is safe for concurrent
// use.
type Nexter struct {
	id atomic.Uint64
}

// NexterOption configures a Nexter.
type NexterOption func(n *Nexter)

// OptNexterStartFrom sets the first number Next returns.
func OptNexterStartFrom(start uint64) NexterOption {
	return func(n *Nexter) {
		n.id.Store(start)
	}
}

// NewNexter returns a Nexter starting at 0 unless configured otherwise.
func NewNexter(opts ...NexterOption) *Nexter {
	n := &Nexter{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next returns the next number.
func (n *Nexter) Next() uint64 {
	return n.id.Add(1) - 1
}

// Last returns the number most recently returned by Next.
func (n *Nexter) Last() uint64 {
	return n.id.Load() - 1
}
