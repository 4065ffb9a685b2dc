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

package s3

import (
	"bytes"
	"context"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
)

var _ essync.CursorStore = &CursorStore{}

// StoreOption is a functional option type for s3.CursorStore.
type StoreOption func(cs *CursorStore)

// OptStoreBucket sets the bucket cursors are written to.
func OptStoreBucket(bucket string) StoreOption {
	return func(cs *CursorStore) {
		cs.bucket = bucket
	}
}

// OptStorePrefix sets the key prefix of the cursor objects.
func OptStorePrefix(prefix string) StoreOption {
	return func(cs *CursorStore) {
		cs.prefix = prefix
	}
}

// OptStoreRegion sets the AWS region.
func OptStoreRegion(region string) StoreOption {
	return func(cs *CursorStore) {
		cs.region = region
	}
}

// OptStoreClient uses svc instead of a client built from the default AWS
// session.
func OptStoreClient(svc s3iface.S3API) StoreOption {
	return func(cs *CursorStore) {
		cs.s3 = svc
	}
}

// CursorStore is an essync.CursorStore which keeps each key in its own S3
// object, <prefix>/<key>, holding the timestamp as text. A PUT replaces an
// object atomically, so keys never hold a torn value.
type CursorStore struct {
	bucket string
	prefix string
	region string

	s3 s3iface.S3API
}

// NewCursorStore returns a CursorStore with the options applied.
func NewCursorStore(opts ...StoreOption) (*CursorStore, error) {
	cs := &CursorStore{}
	for _, opt := range opts {
		opt(cs)
	}
	if cs.bucket == "" {
		return nil, essync.NewConfigError("no bucket configured for s3 cursor store")
	}
	if cs.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cs.region),
		})
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		cs.s3 = s3.New(sess)
	}
	return cs, nil
}

func (cs *CursorStore) objectKey(key string) string {
	if cs.prefix == "" {
		return key
	}
	return path.Join(cs.prefix, key)
}

// Get implements essync.CursorStore.
func (cs *CursorStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	out, err := cs.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cs.bucket),
		Key:    aws.String(cs.objectKey(key)),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "getting s3://%s/%s", cs.bucket, cs.objectKey(key))
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "reading s3://%s/%s", cs.bucket, cs.objectKey(key))
	}
	wm, err := essync.ParseWatermark(string(b))
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "decoding %s", key)
	}
	return wm, true, nil
}

// Set implements essync.CursorStore.
func (cs *CursorStore) Set(ctx context.Context, key string, wm time.Time) error {
	_, err := cs.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(cs.bucket),
		Key:         aws.String(cs.objectKey(key)),
		Body:        bytes.NewReader([]byte(essync.FormatWatermark(wm))),
		ContentType: aws.String("text/plain"),
	})
	return errors.Wrapf(err, "putting s3://%s/%s", cs.bucket, cs.objectKey(key))
}

// Delete implements essync.CursorStore.
func (cs *CursorStore) Delete(ctx context.Context, key string) error {
	_, err := cs.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cs.bucket),
		Key:    aws.String(cs.objectKey(key)),
	})
	return errors.Wrapf(err, "deleting s3://%s/%s", cs.bucket, cs.objectKey(key))
}

// Close implements essync.CursorStore.
func (cs *CursorStore) Close() error { return nil }
