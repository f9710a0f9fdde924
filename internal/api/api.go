// Package api serves the read-only query API over the listing store.
// It is stateless; every request maps to one store query.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatewatch/crawler/internal/config"
	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
	"github.com/estatewatch/crawler/internal/storage"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxPageSize       = 500
	defaultSoldDays   = 7
)

// Server hosts the query API.
type Server struct {
	store storage.Store
	log   logger.Interface
	cfg   config.APIConfig
	http  *http.Server
}

func NewServer(cfg config.APIConfig, store storage.Store, log logger.Interface) *Server {
	return &Server{store: store, log: log, cfg: cfg}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	api := router.Group("/api")
	api.GET("/health", s.health)
	api.GET("/stats", s.stats)
	api.GET("/stats/categories", s.categoryStats)
	api.GET("/stats/prices", s.priceStats)
	api.GET("/stats/timeline", s.timeline)
	api.GET("/properties", s.properties)
	api.GET("/properties/new", s.newProperties)
	api.GET("/properties/sold", s.soldProperties)

	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.Info("api listening", logger.String("addr", s.http.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	ctx := c.Request.Context()

	active, err := s.store.ActiveCount(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	cats, err := s.store.CategoryStats(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	total := 0
	for _, cs := range cats {
		total += cs.Total
	}
	c.JSON(http.StatusOK, gin.H{
		"total_listings":  total,
		"active_listings": active,
		"categories":      cats,
	})
}

func (s *Server) categoryStats(c *gin.Context) {
	stats, err := s.store.CategoryStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": stats})
}

func (s *Server) priceStats(c *gin.Context) {
	stats, err := s.store.PriceStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": stats})
}

func (s *Server) timeline(c *gin.Context) {
	days := intQuery(c, "days", 30)
	points, err := s.store.Timeline(c.Request.Context(), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": points})
}

func (s *Server) properties(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	listings, err := s.store.Listings(c.Request.Context(), storage.ListingFilter{
		Category:   c.Query("category"),
		Type:       c.Query("category_type"),
		ActiveOnly: c.DefaultQuery("active", "true") == "true",
		Limit:      limit,
		Offset:     intQuery(c, "offset", 0),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(listings), "properties": listings})
}

func (s *Server) newProperties(c *gin.Context) {
	day := c.DefaultQuery("date", domain.Today())
	listings, err := s.store.NewListings(c.Request.Context(), day, c.Query("category"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "count": len(listings), "properties": listings})
}

func (s *Server) soldProperties(c *gin.Context) {
	days := intQuery(c, "days", defaultSoldDays)
	since := time.Now().AddDate(0, 0, -days).Format(domain.DayFormat)

	listings, err := s.store.SoldListings(c.Request.Context(), since, c.Query("category"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "count": len(listings), "properties": listings})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("query failed",
		logger.String("path", c.Request.URL.Path),
		logger.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
