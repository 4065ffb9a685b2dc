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
	"net/http"
	"time"

	"github.com/cinemadb/essync"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StatusReporter reports the state of every kind; *essync.Driver is one.
type StatusReporter interface {
	Status() []essync.KindStatus
}

// Server exposes health, pipeline status and cursors over HTTP, and lets
// operators request a pass or reset a kind's cursor.
type Server struct {
	bind    string
	status  StatusReporter
	store   essync.CursorStore
	kinds   []string
	trigger *essync.ManualTrigger
	log     logrus.FieldLogger

	engine *gin.Engine
	srv    *http.Server
}

// NewServer returns a Server listening on bind once Serve is called. kinds
// are the names whose cursors can be listed and reset.
func NewServer(bind string, status StatusReporter, store essync.CursorStore, kinds []string, trig *essync.ManualTrigger, log logrus.FieldLogger) *Server {
	if log == nil {
		log = essync.Log("http")
	}
	s := &Server{
		bind:    bind,
		status:  status,
		store:   store,
		kinds:   kinds,
		trigger: trig,
		log:     log,
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.RegisterRoutes(s.engine)
	return s
}

// RegisterRoutes adds the server's routes to router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", s.healthHandler)
	router.GET("/status", s.statusHandler)
	router.GET("/cursors", s.listCursorsHandler)
	router.DELETE("/cursors/:kind", s.resetCursorHandler)
	router.POST("/passes", s.requestPassHandler)
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.bind, Handler: s.engine}
	errs := make(chan error, 1)
	go func() {
		s.log.WithField("bind", s.bind).Info("listening")
		errs <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return errors.Wrap(err, "serving http")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Wrap(s.srv.Shutdown(sctx), "shutting down http")
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.WithFields(logrus.Fields{
		"method":   c.Request.Method,
		"path":     c.Request.URL.Path,
		"status":   c.Writer.Status(),
		"duration": time.Since(start),
	}).Debug("request")
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

type cursor struct {
	Kind      string     `json:"kind"`
	Key       string     `json:"key"`
	Watermark *time.Time `json:"watermark"`
}

func (s *Server) listCursorsHandler(c *gin.Context) {
	out := make([]cursor, 0, len(s.kinds))
	for _, kind := range s.kinds {
		cur := cursor{Kind: kind, Key: essync.CursorKey(kind)}
		wm, ok, err := s.store.Get(c.Request.Context(), cur.Key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cursor: " + err.Error()})
			return
		}
		if ok {
			cur.Watermark = &wm
		}
		out = append(out, cur)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) knownKind(kind string) bool {
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *Server) resetCursorHandler(c *gin.Context) {
	kind := c.Param("kind")
	if !s.knownKind(kind) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kind not found"})
		return
	}
	if err := s.store.Delete(c.Request.Context(), essync.CursorKey(kind)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset cursor: " + err.Error()})
		return
	}
	s.log.WithField("kind", kind).Warn("cursor reset, kind will be reloaded from the beginning")
	c.Status(http.StatusNoContent)
}

func (s *Server) requestPassHandler(c *gin.Context) {
	queued := s.trigger.Fire()
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}
