// Package web serves the REST and websocket API of pagerd.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v2"

	"github.com/dougsko/pagerd/pkg/config"
	"github.com/dougsko/pagerd/pkg/engine"
	"github.com/dougsko/pagerd/pkg/logging"
	"github.com/dougsko/pagerd/pkg/options"
	"github.com/dougsko/pagerd/pkg/session"
	"github.com/dougsko/pagerd/pkg/storage"
)

const (
	requestTimeout      = 10 * time.Second
	spectrumInterval    = 100 * time.Millisecond
	defaultHistoryLimit = 50
)

// Server holds the handlers of the web API
type Server struct {
	config *config.Config
	engine *engine.CoreEngine
	ctx    context.Context
}

// NewServer creates handlers for e. Websocket streams end when ctx is done.
func NewServer(ctx context.Context, cfg *config.Config, e *engine.CoreEngine) *Server {
	return &Server{config: cfg, engine: e, ctx: ctx}
}

// Router builds the gin engine with every route
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.handleGetStatus)
		api.GET("/status/recent", s.handleRecentStatus)
		api.GET("/config", s.handleGetConfig)

		api.GET("/form", s.handleGetForm)
		api.PUT("/form/fields/:field", s.handleEditField)
		api.PUT("/form/type", s.handleSetType)
		api.PUT("/form/options", s.handleSetOption)
		api.PUT("/form/amplifier", s.handleSetAmplifier)
		api.POST("/send", s.handleSend)

		api.GET("/history", s.handleGetHistory)
		api.GET("/history/stats", s.handleGetHistoryStats)
		api.GET("/history/capcodes", s.handleGetCapcodes)
		api.GET("/history/:id", s.handleGetTransmission)

		api.GET("/monitor", s.handleGetMonitor)
		api.GET("/monitor/stats", s.handleGetMonitorStats)
	}

	router.GET("/ws/status", s.handleStatusWebSocket)
	router.GET("/ws/spectrum", s.handleSpectrumWebSocket)

	return router
}

// requestLogger logs each request through the daemon logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logging.WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("web", "request")
	}
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func errorJSON(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}

// resultCode maps controller errors to HTTP status codes
func resultCode(err error) int {
	var failure *session.Failure
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotReady),
		errors.Is(err, session.ErrUnknownField),
		errors.Is(err, options.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.As(err, &failure):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

// writeResult answers a form change with the resulting view
func writeResult(c *gin.Context, res session.Result, err error) {
	if err != nil {
		body := gin.H{"error": err.Error()}
		var failure *session.Failure
		if errors.As(err, &failure) {
			body["kind"] = failure.Kind.String()
			body["view"] = res.View
		}
		c.JSON(resultCode(err), body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"view":     res.View,
		"accepted": res.Accepted,
		"shown":    res.Shown,
	})
}

// handleGetStatus returns daemon status
func (s *Server) handleGetStatus(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	status, err := s.engine.Status(ctx)
	if err != nil {
		errorJSON(c, resultCode(err), err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleRecentStatus returns the latest status lines
func (s *Server) handleRecentStatus(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		limit = 10
	}

	recent := s.engine.Bus().Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"statuses": recent,
		"count":    len(recent),
	})
}

// handleGetConfig returns the running configuration with YAML key names
func (s *Server) handleGetConfig(c *gin.Context) {
	yamlData, err := yaml.Marshal(s.config)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, fmt.Errorf("failed to marshal config: %w", err))
		return
	}

	var yamlConfig interface{}
	if err := yaml.Unmarshal(yamlData, &yamlConfig); err != nil {
		errorJSON(c, http.StatusInternalServerError, fmt.Errorf("failed to unmarshal config: %w", err))
		return
	}

	c.JSON(http.StatusOK, convertYamlToJSON(yamlConfig))
}

// convertYamlToJSON converts YAML map[interface{}]interface{} values to
// JSON compatible map[string]interface{}
func convertYamlToJSON(i interface{}) interface{} {
	switch x := i.(type) {
	case map[interface{}]interface{}:
		m := map[string]interface{}{}
		for k, v := range x {
			m[fmt.Sprint(k)] = convertYamlToJSON(v)
		}
		return m
	case []interface{}:
		for i, v := range x {
			x[i] = convertYamlToJSON(v)
		}
	}
	return i
}

// handleGetForm returns the form view
func (s *Server) handleGetForm(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	view, err := s.engine.View(ctx)
	if err != nil {
		errorJSON(c, resultCode(err), err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleEditField replaces the text of one field
func (s *Server) handleEditField(c *gin.Context) {
	var req struct {
		Text *string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.engine.Edit(ctx, c.Param("field"), *req.Text)
	if errors.Is(err, session.ErrUnknownField) {
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	writeResult(c, res, err)
}

// handleSetType selects the message type
func (s *Server) handleSetType(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.engine.SelectType(ctx, *req.Index)
	writeResult(c, res, err)
}

// handleSetOption selects one option by selector name
func (s *Server) handleSetOption(c *gin.Context) {
	var req struct {
		Selector string `json:"selector" binding:"required"`
		Index    *int   `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.engine.SelectOption(ctx, req.Selector, *req.Index)
	writeResult(c, res, err)
}

// handleSetAmplifier switches the front end amplifier
func (s *Server) handleSetAmplifier(c *gin.Context) {
	var req struct {
		On *bool `json:"on" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.engine.SetAmplifier(ctx, *req.On)
	writeResult(c, res, err)
}

// handleSend starts a transmission. The outcome arrives on /ws/status.
func (s *Server) handleSend(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.engine.Send(ctx)
	if err != nil {
		writeResult(c, res, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "transmitting",
		"view":   res.View,
	})
}

// handleGetHistory queries stored transmissions
func (s *Server) handleGetHistory(c *gin.Context) {
	query, err := parseHistoryQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	transmissions, err := s.engine.History(query)
	if err != nil {
		errorJSON(c, resultCode(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transmissions": transmissions,
		"count":         len(transmissions),
		"limit":         query.Limit,
		"offset":        query.Offset,
	})
}

func parseHistoryQuery(c *gin.Context) (storage.TransmissionQuery, error) {
	query := storage.TransmissionQuery{Limit: defaultHistoryLimit}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return query, fmt.Errorf("invalid limit %q", v)
		}
		query.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return query, fmt.Errorf("invalid offset %q", v)
		}
		query.Offset = offset
	}
	if v := c.Query("capcode"); v != "" {
		capcode, err := strconv.Atoi(v)
		if err != nil {
			return query, fmt.Errorf("invalid capcode %q", v)
		}
		query.Capcode = &capcode
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return query, fmt.Errorf("invalid since %q: %w", v, err)
		}
		query.Since = &since
	}
	if v := c.Query("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return query, fmt.Errorf("invalid until %q: %w", v, err)
		}
		query.Until = &until
	}

	switch outcome := storage.Outcome(c.Query("outcome")); outcome {
	case storage.OutcomeAny, storage.OutcomeSuccess, storage.OutcomeFailed:
		query.Outcome = outcome
	default:
		return query, fmt.Errorf("invalid outcome %q", outcome)
	}

	query.Search = c.Query("q")
	return query, nil
}

// handleGetTransmission returns one stored transmission
func (s *Server) handleGetTransmission(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid id %q", c.Param("id")))
		return
	}

	transmission, err := s.engine.Transmission(id)
	if err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			errorJSON(c, http.StatusServiceUnavailable, err)
			return
		}
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, transmission)
}

// handleGetHistoryStats returns lifetime counters
func (s *Server) handleGetHistoryStats(c *gin.Context) {
	stats, err := s.engine.HistoryStats()
	if err != nil {
		errorJSON(c, resultCode(err), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleGetCapcodes returns per capcode summaries
func (s *Server) handleGetCapcodes(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		limit = 50
	}

	capcodes, err := s.engine.Capcodes(limit)
	if err != nil {
		errorJSON(c, resultCode(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"capcodes": capcodes,
		"count":    len(capcodes),
	})
}

// handleGetMonitor returns levels and spectrum of the last bitstream
func (s *Server) handleGetMonitor(c *gin.Context) {
	txMonitor := s.engine.TxMonitor()
	if txMonitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "monitor not available",
		})
		return
	}
	c.JSON(http.StatusOK, txMonitor.VisualizationData())
}

// handleGetMonitorStats returns monitor counters
func (s *Server) handleGetMonitorStats(c *gin.Context) {
	txMonitor := s.engine.TxMonitor()
	if txMonitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "monitor not available",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statistics":     txMonitor.Statistics(),
		"current_levels": txMonitor.Levels(),
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// readLoop discards client messages and closes done when the peer goes
// away
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleStatusWebSocket streams status lines and send button changes. The
// first message is the current view.
func (s *Server) handleStatusWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("web", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.engine.Bus().Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	view, err := s.engine.View(ctx)
	cancel()
	if err != nil {
		conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
		return
	}
	if err := conn.WriteJSON(gin.H{"type": "view", "view": view}); err != nil {
		return
	}

	done := make(chan struct{})
	go readLoop(conn, done)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				logging.Debugf("web", "WebSocket write error: %v", err)
				return
			}

		case <-done:
			return

		case <-s.ctx.Done():
			return
		}
	}
}

// handleSpectrumWebSocket pushes monitor data whenever a new bitstream has
// been measured
func (s *Server) handleSpectrumWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("web", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	txMonitor := s.engine.TxMonitor()
	if txMonitor == nil {
		conn.WriteJSON(gin.H{"type": "error", "error": "monitor not available"})
		return
	}

	done := make(chan struct{})
	go readLoop(conn, done)

	ticker := time.NewTicker(spectrumInterval)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-ticker.C:
			if txMonitor.Sequence() == sent {
				continue
			}
			data := txMonitor.VisualizationData()
			sent = data.Sequence

			if err := conn.WriteJSON(gin.H{"type": "spectrum", "data": data}); err != nil {
				logging.Debugf("web", "WebSocket write error: %v", err)
				return
			}

		case <-done:
			return

		case <-s.ctx.Done():
			return
		}
	}
}
