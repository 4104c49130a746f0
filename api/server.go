// Package api exposes the auction engine over HTTP. The surface is thin:
// requests are translated into commands for the execution pipeline, and
// rejections map onto status codes (422 bad bid, 409 wrong state, 404
// unknown auction, 503 contention).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/eventstore"
	"github.com/gavelworks/gavel/pipeline"
)

// CommandRunner executes one auction command; the pipeline executor
// satisfies it.
type CommandRunner interface {
	Execute(ctx context.Context, cmd core.Command) ([]core.Event, error)
}

type Server struct {
	runner CommandRunner
	store  eventstore.Store
	seq    pipeline.Sequencer
	log    *slog.Logger

	// defaultRevealWindow applies to sealed auctions created without one.
	defaultRevealWindow time.Duration
	now                 func() time.Time
}

func NewServer(runner CommandRunner, store eventstore.Store, seq pipeline.Sequencer, log *slog.Logger, defaultRevealWindow time.Duration) *Server {
	if log == nil {
		log = slog.Default()
	}
	if defaultRevealWindow <= 0 {
		defaultRevealWindow = time.Hour
	}
	return &Server{
		runner:              runner,
		store:               store,
		seq:                 seq,
		log:                 log,
		defaultRevealWindow: defaultRevealWindow,
		now:                 time.Now,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	v1 := r.Group("/v1")
	{
		v1.POST("/auctions", s.createAuction)
		v1.GET("/auctions/:id", s.getAuction)
		v1.POST("/auctions/:id/bids", s.placeBid)
		v1.POST("/auctions/:id/commits", s.commitBid)
		v1.POST("/auctions/:id/reveals", s.revealBid)
		v1.POST("/auctions/:id/extend", s.extendAuction)
	}
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// fail maps a pipeline error onto an HTTP response.
func (s *Server) fail(c *gin.Context, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Msg, "rule": verr.Rule})
	case core.IsState(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrLockTimeout), eventstore.IsVersionConflict(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auction is busy, retry shortly"})
	default:
		s.log.Error("command failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) auctionID(c *gin.Context) (core.AuctionID, bool) {
	id, err := core.ParseAuctionID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid auction id")
		return core.AuctionID{}, false
	}
	return id, true
}
