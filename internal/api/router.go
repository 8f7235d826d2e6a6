package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/LJTian/NewsHub/internal/storage"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

type Server struct {
	store  *storage.Store
	logger *slog.Logger
}

func NewServer(store *storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger.With("component", "api")}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/articles/:id", s.getArticle)
		v1.GET("/sources", s.listSources)
		v1.GET("/categories", s.listCategories)
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn("health stats failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "connected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"database":       "connected",
		"articles_count": stats.ArticlesCount,
		"latest_article": stats.LatestArticle,
		"timestamp":      time.Now().UTC(),
	})
}

func (s *Server) listArticles(c *gin.Context) {
	filter := storage.ArticleFilter{
		Search:   c.Query("search"),
		Source:   c.Query("source"),
		Category: c.Query("category"),
		Author:   c.Query("author"),
		Page:     queryInt(c, "page", 1),
		PerPage:  queryInt(c, "per_page", 15),
	}

	var err error
	if filter.From, err = queryTime(c, "from"); err != nil {
		badRequest(c, "invalid from date")
		return
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		badRequest(c, "invalid to date")
		return
	}
	// 只给日期时 to 包含当天
	if raw := c.Query("to"); len(raw) == len(time.DateOnly) {
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}

	page, err := s.store.ListArticles(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "list articles failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    page.Data,
		"meta": gin.H{
			"total":     page.Total,
			"page":      page.Page,
			"per_page":  page.PerPage,
			"last_page": page.LastPage,
		},
	})
}

func (s *Server) getArticle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid article id")
		return
	}

	article, err := s.store.GetArticle(c.Request.Context(), uint(id))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "article not found",
		})
		return
	}
	if err != nil {
		s.internalError(c, "get article failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    article,
	})
}

func (s *Server) listSources(c *gin.Context) {
	items, err := s.store.ListSources(c.Request.Context())
	if err != nil {
		s.internalError(c, "list sources failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) listCategories(c *gin.Context) {
	items, err := s.store.ListCategories(c.Request.Context())
	if err != nil {
		s.internalError(c, "list categories failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, "err", err, "path", c.Request.URL.Path)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "bad_request",
		"message": msg,
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// queryTime 接受 RFC3339 或 YYYY-MM-DD，参数缺失时返回零值
func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
