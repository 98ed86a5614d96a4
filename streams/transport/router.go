package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/livekit"
	"github.com/imtaco/stream-coordinator/internal/log"
	"github.com/imtaco/stream-coordinator/internal/validation"
	"github.com/imtaco/stream-coordinator/streams"
)

type Router struct {
	streamService streams.StreamService
	broadcaster   streams.Broadcaster
	receiver      livekit.WebhookReceiver
	gatherer      prometheus.Gatherer
	cfg           Config
	engine        *gin.Engine
	logger        *log.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewRouter(
	streamService streams.StreamService,
	broadcaster streams.Broadcaster,
	receiver livekit.WebhookReceiver,
	gatherer prometheus.Gatherer,
	cfg *Config,
	logger *log.Logger,
) *Router {
	conf := cfg.withDefaults()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("stream-coordinator"))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     conf.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	r := &Router{
		streamService: streamService,
		broadcaster:   broadcaster,
		receiver:      receiver,
		gatherer:      gatherer,
		cfg:           conf,
		engine:        engine,
		logger:        logger,
		closing:       make(chan struct{}),
	}

	// Request logging middleware
	r.engine.Use(func(c *gin.Context) {
		r.logger.Info("Incoming request",
			log.String("method", c.Request.Method),
			log.String("url", c.Request.URL.String()))
		c.Next()
	})

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

// Close ends every open SSE and WebSocket stream. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (r *Router) Close() {
	r.closeOnce.Do(func() { close(r.closing) })
}

func (r *Router) setupRoutes() {
	r.engine.POST("/streams", r.createStream)
	r.engine.GET("/streams", r.listStreams)
	r.engine.DELETE("/streams/:id", r.deleteStream)
	r.engine.POST("/streams/:id/join", r.joinStream)
	r.engine.GET("/streams/:id/state", r.getState)

	// observers
	r.engine.GET("/streams/:id/updates", r.streamUpdates)
	r.engine.GET("/streams/:id/ws", r.streamWebSocket)

	r.engine.POST("/webhook", r.webhook)

	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	r.engine.GET("/health", r.healthCheck)
}

func (r *Router) bindFailed(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Validation failed",
		"details": validation.FormatValidationError(err),
	})
}

// fail maps error codes to statuses. Unexpected errors are logged and hidden.
func (r *Router) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case streams.ErrNotFound:
		status = http.StatusNotFound
	case streams.ErrInvalidRequest:
		status = http.StatusBadRequest
	case streams.ErrRoomService:
		status = http.StatusBadGateway
	case streams.ErrStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		r.logger.Error(msg, log.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (r *Router) createStream(c *gin.Context) {
	var req CreateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.bindFailed(c, err)
		return
	}

	streamID, created, err := r.streamService.CreateStream(c.Request.Context(), req.Name)
	if err != nil {
		r.fail(c, "Failed to create stream", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, StreamIDResponse{StreamID: streamID})
}

func (r *Router) listStreams(c *gin.Context) {
	list, err := r.streamService.ListActive(c.Request.Context())
	if err != nil {
		r.fail(c, "Failed to list streams", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (r *Router) deleteStream(c *gin.Context) {
	var uri StreamURI
	if err := c.ShouldBindUri(&uri); err != nil {
		r.bindFailed(c, err)
		return
	}

	if err := r.streamService.DeleteStream(c.Request.Context(), uri.StreamID); err != nil {
		r.fail(c, "Failed to delete stream", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) joinStream(c *gin.Context) {
	var uri StreamURI
	if err := c.ShouldBindUri(&uri); err != nil {
		r.bindFailed(c, err)
		return
	}
	var req JoinStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.bindFailed(c, err)
		return
	}

	token, err := r.streamService.JoinStream(c.Request.Context(), uri.StreamID, req.UserID)
	if err != nil {
		r.fail(c, "Failed to issue token", err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (r *Router) getState(c *gin.Context) {
	var uri StreamURI
	if err := c.ShouldBindUri(&uri); err != nil {
		r.bindFailed(c, err)
		return
	}

	state, err := r.streamService.GetState(c.Request.Context(), uri.StreamID)
	if err != nil {
		r.fail(c, "Failed to get stream state", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// webhook answers 200 for accepted and ignored notifications so the room
// service does not retry them. Store failures return 5xx to get a redelivery.
func (r *Router) webhook(c *gin.Context) {
	event, err := r.receiver.Receive(c.Request)
	if err != nil {
		webhookDenied.Add(c.Request.Context(), 1)
		r.logger.Warn("webhook rejected", log.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook"})
		return
	}

	if err := r.streamService.HandleWebhook(c.Request.Context(), event); err != nil {
		webhookFailed.Add(c.Request.Context(), 1)
		r.fail(c, "Failed to apply webhook", err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "stream-coordinator",
		"timestamp": time.Now().Unix(),
	})
}
