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

package leveldb

import (
	"context"
	"time"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ essync.CursorStore = &CursorStore{}

var syncWrites = &opt.WriteOptions{Sync: true}

// CursorStore is an essync.CursorStore backed by a leveldb directory.
type CursorStore struct {
	dirname string
	db      *leveldb.DB
}

// NewCursorStore opens (creating if necessary) the leveldb at dirname.
func NewCursorStore(dirname string) (*CursorStore, error) {
	db, err := leveldb.OpenFile(dirname, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return &CursorStore{dirname: dirname, db: db}, nil
}

// Get implements essync.CursorStore.
func (cs *CursorStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := cs.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "reading %s", key)
	}
	wm, err := essync.ParseWatermark(string(v))
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "decoding %s", key)
	}
	return wm, true, nil
}

// Set implements essync.CursorStore.
func (cs *CursorStore) Set(ctx context.Context, key string, wm time.Time) error {
	err := cs.db.Put([]byte(key), []byte(essync.FormatWatermark(wm)), syncWrites)
	return errors.Wrapf(err, "writing %s", key)
}

// Delete implements essync.CursorStore.
func (cs *CursorStore) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(cs.db.Delete([]byte(key), syncWrites), "deleting %s", key)
}

// Close closes the underlying leveldb instance.
func (cs *CursorStore) Close() error {
	return errors.Wrapf(cs.db.Close(), "closing leveldb at %v", cs.dirname)
}
