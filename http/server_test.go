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

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cinemadb/essync"
	"github.com/cinemadb/essync/mock"
	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStatus []essync.KindStatus

func (f fixedStatus) Status() []essync.KindStatus { return f }

func setupServer(t *testing.T) (*Server, *mock.CursorStore, *essync.ManualTrigger) {
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()
	store := mock.NewCursorStore()
	trig := essync.NewManualTrigger()
	status := fixedStatus{{Kind: "movies", State: essync.StateIdle}, {Kind: "genres", State: essync.StateFailed, LastError: "boom"}}
	return NewServer(":0", status, store, []string{"movies", "genres"}, trig, log), store, trig
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _, _ := setupServer(t)
	w := do(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	s, _, _ := setupServer(t)
	w := do(s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)
	var got []essync.KindStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, essync.StateFailed, got[1].State)
	assert.Equal(t, "boom", got[1].LastError)
}

func TestCursors(t *testing.T) {
	s, store, _ := setupServer(t)
	wm := time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)
	require.NoError(t, store.Set(context.Background(), "movies_last_updated", wm))

	w := do(s, http.MethodGet, "/cursors")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"kind":"movies","key":"movies_last_updated","watermark":"2021-06-16T20:14:09Z"},
		{"kind":"genres","key":"genres_last_updated","watermark":null}
	]`, w.Body.String())

	w = do(s, http.MethodDelete, "/cursors/movies")
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := store.Value("movies_last_updated")
	assert.False(t, ok)

	w = do(s, http.MethodDelete, "/cursors/songs")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCursorsStoreError(t *testing.T) {
	s, store, _ := setupServer(t)
	store.GetErr = assert.AnError
	w := do(s, http.MethodGet, "/cursors")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestPass(t *testing.T) {
	s, _, trig := setupServer(t)
	w := do(s, http.MethodPost, "/passes")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":true}`, w.Body.String())

	w = do(s, http.MethodPost, "/passes")
	assert.JSONEq(t, `{"queued":false}`, w.Body.String(), "a second request joins the pending pass")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, trig.Wait(ctx))
}
