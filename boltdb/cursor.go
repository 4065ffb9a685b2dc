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

package boltdb

import (
	"context"
	"time"

	"github.com/boltdb/bolt"
	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
)

var cursorBucket = []byte("cursors")

var _ essync.CursorStore = &CursorStore{}

// CursorStore is an essync.CursorStore which keeps one key per kind in a bolt
// bucket. Every Set is its own transaction, synced to disk before it returns.
type CursorStore struct {
	Db *bolt.DB
}

// NewCursorStore opens (creating if necessary) the bolt file at filename.
func NewCursorStore(filename string) (cs *CursorStore, err error) {
	cs = &CursorStore{}
	cs.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = cs.Db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cursorBucket)
		return errors.Wrap(err, "creating cursor bucket")
	})
	if err != nil {
		cs.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return cs, nil
}

// Get implements essync.CursorStore.
func (cs *CursorStore) Get(ctx context.Context, key string) (wm time.Time, ok bool, err error) {
	var val string
	err = cs.Db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cursorBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid within the transaction
		val, ok = string(v), true
		return nil
	})
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "reading %s", key)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	wm, err = essync.ParseWatermark(val)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "decoding %s", key)
	}
	return wm, true, nil
}

// Set implements essync.CursorStore.
func (cs *CursorStore) Set(ctx context.Context, key string, wm time.Time) error {
	err := cs.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cursorBucket).Put([]byte(key), []byte(essync.FormatWatermark(wm)))
	})
	return errors.Wrapf(err, "writing %s", key)
}

// Delete implements essync.CursorStore.
func (cs *CursorStore) Delete(ctx context.Context, key string) error {
	err := cs.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cursorBucket).Delete([]byte(key))
	})
	return errors.Wrapf(err, "deleting %s", key)
}

// Close syncs and closes the underlying bolt db.
func (cs *CursorStore) Close() error {
	err := cs.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return cs.Db.Close()
}
