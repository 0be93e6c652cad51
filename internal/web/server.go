package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"newsradar/internal/ports"
)

// Server exposes search, trends, and subscription management over HTTP.
type Server struct {
	repository   ports.NewsRepository
	logger       *slog.Logger
	templateGlob string
}

// NewServer wires the repository into the HTTP layer. templateGlob may be
// empty, in which case the dashboard route is not registered.
func NewServer(repository ports.NewsRepository, templateGlob string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		repository:   repository,
		logger:       logger.With("component", "web"),
		templateGlob: templateGlob,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if s.templateGlob != "" {
		router.LoadHTMLGlob(s.templateGlob)
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/dashboard")
		})
		router.GET("/dashboard", s.dashboard)
	}

	api := router.Group("/api")
	{
		api.GET("/news", s.searchNews)
		api.GET("/trends", s.trends)
		api.GET("/hot-dates", s.hotDates)
		api.GET("/stats", s.stats)
		api.POST("/subscriptions", s.createSubscription)
		api.GET("/subscriptions", s.listSubscriptions)
		api.DELETE("/subscriptions/:id", s.deleteSubscription)
	}

	return router
}

// Run serves the router on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("web server starting", "addr", addr)
	return s.Router().Run(addr)
}
