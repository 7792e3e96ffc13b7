package api

import (
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/muletrace-engine/internal/alerts"
	"github.com/rawblock/muletrace-engine/internal/db"
	"github.com/rawblock/muletrace-engine/internal/pipeline"
	"github.com/rawblock/muletrace-engine/internal/stream"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

type APIHandler struct {
	pipe     *pipeline.Pipeline
	runner   *stream.Runner
	dbStore  *db.PostgresStore
	alertMgr *alerts.Manager
	wsHub    *Hub

	feedMu sync.Mutex
	feed   *stream.Feed
}

func SetupRouter(pipe *pipeline.Pipeline, runner *stream.Runner, dbStore *db.PostgresStore, alertMgr *alerts.Manager, wsHub *Hub, limiter *RateLimiter) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{pipe: pipe, runner: runner, dbStore: dbStore, alertMgr: alertMgr, wsHub: wsHub}

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)
		api.GET("/results", handler.handleResults)

		protected := api.Group("", AuthMiddleware())
		if limiter != nil {
			protected.Use(limiter.Middleware())
		}
		protected.POST("/analyze", handler.handleAnalyze)
		protected.POST("/feed/connect", handler.handleFeedConnect)
		protected.POST("/feed/disconnect", handler.handleFeedDisconnect)
		protected.GET("/runs", handler.handleGetRuns)
		protected.GET("/alerts", handler.handleGetAlerts)
	}

	// Serve Static Dashboard
	r.Static("/dashboard", "./public")

	return r
}

// analyzeRequest is the JSON form of an analysis submission. Raw CSV bodies
// are accepted too; content type selects the decoder.
type analyzeRequest struct {
	Rows []models.Row `json:"rows"`
	Mode string       `json:"mode"` // "replace" (default) or "append"
}

// handleAnalyze runs a full batch analysis over the submitted transactions.
// POST /api/v1/analyze with either a text/csv body or
// {"rows": [...], "mode": "replace"|"append"}.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	var rows []models.Row
	mode := models.ModeReplace

	contentType := c.ContentType()
	if contentType == "application/json" {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {rows, mode?}"})
			return
		}
		rows = req.Rows
		switch req.Mode {
		case "", "replace":
			mode = models.ModeReplace
		case "append":
			mode = models.ModeAppend
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode, expected replace or append"})
			return
		}
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
			return
		}
		rows, err = h.pipe.ParseDocument(string(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse CSV", "details": err.Error()})
			return
		}
	}

	started := time.Now()
	result, err := h.runner.Analyze(rows, mode)
	if err != nil {
		// The previous result stays served; only this submission fails.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Analysis failed",
			"details":   err.Error(),
			"elapsedMs": float64(time.Since(started).Microseconds()) / 1000.0,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleResults returns the most recent analysis result.
func (h *APIHandler) handleResults(c *gin.Context) {
	result := h.runner.Latest()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No analysis has been run yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleFeedConnect subscribes the engine to an external websocket row feed.
// POST /api/v1/feed/connect { "url": "wss://..." }
func (h *APIHandler) handleFeedConnect(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {url}"})
		return
	}

	h.feedMu.Lock()
	defer h.feedMu.Unlock()

	if h.feed != nil {
		h.feed.Stop()
		h.feed = nil
	}

	feed := stream.NewFeed(req.URL, h.runner.Buffer())
	if err := feed.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to connect to feed", "details": err.Error()})
		return
	}
	h.feed = feed

	log.Printf("[Feed] Connected to %s", req.URL)
	c.JSON(http.StatusOK, gin.H{"status": "connected", "url": req.URL})
}

// handleFeedDisconnect tears down the active feed, discarding any rows that
// have not been flushed into an analysis yet.
func (h *APIHandler) handleFeedDisconnect(c *gin.Context) {
	h.feedMu.Lock()
	defer h.feedMu.Unlock()

	if h.feed == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not_connected"})
		return
	}

	h.feed.Stop()
	h.feed = nil
	log.Println("[Feed] Disconnected")
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// handleGetRuns returns persisted run history, most recent first.
func (h *APIHandler) handleGetRuns(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, totalCount, err := h.dbStore.GetRecentRuns(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       runs,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handleGetAlerts returns recent fraud alerts.
func (h *APIHandler) handleGetAlerts(c *gin.Context) {
	if h.alertMgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alerting not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	c.JSON(http.StatusOK, gin.H{"alerts": h.alertMgr.GetRecentAlerts(limit)})
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	dbConnected := h.dbStore != nil

	h.feedMu.Lock()
	feedConnected := h.feed != nil
	h.feedMu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RawBlock Mule Trace Engine v1.0",
		"capabilities": gin.H{
			"cycle_detection":  true,
			"smurfing_fan_in":  true,
			"smurfing_fan_out": true,
			"layered_shells":   true,
			"streaming_feed":   true,
			"hub_suppression":  true,
		},
		"dbConnected":   dbConnected,
		"feedConnected": feedConnected,
		"bufferedRows":  h.runner.Buffer().Len(),
	})
}
