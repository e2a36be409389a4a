package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/moex-iss-client/internal/config"
	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/metrics"
	"github.com/Sternrassler/moex-iss-client/pkg/sink"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// Handler serves the gateway routes.
type Handler struct {
	iss    *client.Client
	cfg    config.GatewayConfig
	logger zerolog.Logger
}

// NewHandler creates a gateway handler.
func NewHandler(iss *client.Client, cfg config.GatewayConfig, logger zerolog.Logger) *Handler {
	return &Handler{iss: iss, cfg: cfg, logger: logger}
}

// Router registers all routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/instruments", h.Instruments)
	r.GET("/history", h.History)
	r.GET("/history/:secid", h.History)
	return r
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Instruments lists the selected instruments as JSON.
//
//	GET /instruments?level=1&secids=SBER,GAZP
func (h *Handler) Instruments(c *gin.Context) {
	sel, err := selectionFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set, err := h.iss.SelectInstruments(c.Request.Context(), sel)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":       len(set),
		"instruments": set.Sorted(),
	})
}

// History streams the history of one or more instruments as ';'-separated
// CSV with a single header line.
//
//	GET /history/SBER?from=2024-01-01&till=2024-03-31&primary_board=1
//	GET /history?secids=SBER,GAZP
func (h *Handler) History(c *gin.Context) {
	req, err := h.historyRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The status line goes out with the first data batch; a request that
	// fails before any data gets an error status instead.
	var header string
	started := false
	begin := func() error {
		started = true
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		_, err := c.Writer.WriteString(header + "\n")
		return err
	}

	out := sink.NewFunc(func(_ context.Context, b sink.Batch) error {
		if b.Header {
			if header == "" && len(b.Rows) > 0 {
				header = b.Rows[0]
			}
			return nil
		}
		if !started {
			if err := begin(); err != nil {
				return err
			}
		}
		for _, row := range b.Rows {
			if _, err := c.Writer.WriteString(row + "\n"); err != nil {
				return err
			}
		}
		c.Writer.Flush()
		return nil
	})

	stats, err := h.iss.StreamHistory(c.Request.Context(), req, out)
	if err == nil {
		if !started {
			_ = begin()
		}
		return
	}
	if !started {
		h.fail(c, err)
		return
	}

	event := h.logger.Warn().Err(err).Strs("secids", req.SecIDs)
	if stats != nil {
		event = event.Int("failed", stats.Failed).Int("rows", stats.Rows)
	}
	event.Msg("History stream incomplete")
}

func (h *Handler) historyRequest(c *gin.Context) (client.HistoryRequest, error) {
	var req client.HistoryRequest

	if id := c.Param("secid"); id != "" {
		req.SecIDs = []string{strings.ToUpper(id)}
	} else {
		req.SecIDs = splitList(c.Query("secids"))
	}
	if len(req.SecIDs) == 0 {
		return req, errors.New("at least one secid is required")
	}
	if len(req.SecIDs) > h.cfg.MaxInstruments {
		return req, errors.New("too many secids (max " + strconv.Itoa(h.cfg.MaxInstruments) + ")")
	}

	var err error
	if v := c.Query("from"); v != "" {
		if req.From, err = time.Parse(dateLayout, v); err != nil {
			return req, errors.New("from must be YYYY-MM-DD")
		}
	}
	if v := c.Query("till"); v != "" {
		if req.Till, err = time.Parse(dateLayout, v); err != nil {
			return req, errors.New("till must be YYYY-MM-DD")
		}
	}
	req.PrimaryBoardOnly = c.Query("primary_board") == "1" || c.Query("primary_board") == "true"
	req.Columns = splitList(c.Query("columns"))
	return req, nil
}

func selectionFromQuery(c *gin.Context) (client.Selection, error) {
	sel := client.Selection{SecIDs: splitList(c.Query("secids"))}
	if v := c.Query("level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			return sel, errors.New("level must be an integer")
		}
		sel.ListLevel = level
	}
	return sel, nil
}

// fail maps a client error to a JSON error response.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var issErr *client.ISSError
	switch {
	case errors.Is(err, client.ErrInvalidArgs):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, client.ErrContextCancelled):
		status = 499
	case errors.As(err, &issErr) && issErr.StatusCode == http.StatusNotFound:
		status = http.StatusNotFound
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("ISS request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
