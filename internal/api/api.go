// Package api exposes a Scanner over HTTP: start a scan, follow its
// progress, wait for it and fetch the devices or the printable report.
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marcuoli/go-camscan/pkg/camscan"
	"github.com/marcuoli/go-camscan/pkg/camscan/catalog"
)

const (
	// DefaultWait is used when the wait endpoint gets no timeout.
	DefaultWait = 5 * time.Second
	// MaxWait caps a single wait request.
	MaxWait = time.Minute
)

// ScanRequest starts a scan. Zero timeout or concurrency keep the scanner's setting.
type ScanRequest struct {
	Range       string `json:"range" binding:"required"`
	TimeoutMs   int    `json:"timeout_ms"`
	Concurrency int    `json:"concurrency"`
	Ports       string `json:"ports"` // inline catalog override, "37777=Dahua,554=RTSP"
}

// Handler serves one Scanner.
type Handler struct {
	Scanner *camscan.Scanner
	Logger  *zap.Logger

	// serializes the option update and start of one request against another
	mu sync.Mutex
}

// NewHandler creates a handler for s. A nil logger discards logs.
func NewHandler(s *camscan.Scanner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Scanner: s, Logger: logger.With(zap.String("component", "api"))}
}

// Router returns the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/api/version", h.Version)
	r.POST("/api/scans", h.StartScan)
	r.GET("/api/scans/current", h.Current)
	r.GET("/api/scans/current/wait", h.Wait)
	r.GET("/api/scans/current/results", h.Results)
	r.GET("/api/scans/current/report", h.Report)
	return r
}

// StartScan starts a background scan and answers 202 with its snapshot.
func (h *Handler) StartScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ports catalog.Catalog
	if req.Ports != "" {
		var err error
		if ports, err = catalog.Parse(req.Ports); err == nil {
			err = ports.Validate()
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ports: " + err.Error()})
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Scanner.IsScanning() {
		c.JSON(http.StatusConflict, gin.H{"error": camscan.ErrAlreadyScanning.Error()})
		return
	}
	opts := h.Scanner.GetOptions()
	if req.TimeoutMs > 0 {
		opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if req.Concurrency > 0 {
		opts.MaxConcurrent = req.Concurrency
	}
	if ports != nil {
		opts.Catalog = ports
	}
	h.Scanner.SetOptions(opts)

	err := h.Scanner.ScanNetwork(req.Range)
	switch {
	case err == nil:
	case errors.Is(err, camscan.ErrAlreadyScanning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, camscan.ErrInvalidRange), errors.Is(err, catalog.ErrInvalidPort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		h.Logger.Error("start scan", zap.String("range", req.Range), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	snap := h.Scanner.Snapshot()
	h.Logger.Info("scan requested", zap.String("scan_id", snap.ID), zap.String("range", req.Range))
	c.JSON(http.StatusAccepted, snap)
}

// Current returns the snapshot of the current or last scan.
func (h *Handler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, h.Scanner.Snapshot())
}

// Wait blocks up to ?timeout= (default 5s) for the scan to finish.
func (h *Handler) Wait(c *gin.Context) {
	timeout := DefaultWait
	if s := c.Query("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeout: " + s})
			return
		}
		timeout = min(d, MaxWait)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	done := h.Scanner.WaitContext(ctx)
	c.JSON(http.StatusOK, gin.H{"completed": done, "scan": h.Scanner.Snapshot()})
}

// Results returns the device list of the last finished scan.
func (h *Handler) Results(c *gin.Context) {
	results := h.Scanner.Results()
	if results == nil {
		results = []camscan.DeviceResult{}
	}
	c.JSON(http.StatusOK, results)
}

// Report returns the printable results table.
func (h *Handler) Report(c *gin.Context) {
	var buf bytes.Buffer
	h.Scanner.WriteResults(&buf)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

// Version reports the library version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": camscan.Version, "info": camscan.VersionInfo()})
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
