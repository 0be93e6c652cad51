package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"newsradar/internal/domain"
)

const (
	defaultSearchLimit = 50
	defaultTrendDays   = 30
	defaultHotDates    = 10
)

type newsItemDTO struct {
	IdentityKey string    `json:"identity_key"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	Keywords    []string  `json:"keywords"`
	PublishedAt time.Time `json:"published_at"`
}

type trendPointDTO struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

func toNewsDTO(items []domain.NewsItem) []newsItemDTO {
	out := make([]newsItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, newsItemDTO{
			IdentityKey: item.Key(),
			Title:       item.Title,
			Body:        item.Body,
			URL:         item.URL,
			Source:      string(item.Source),
			Category:    item.Category,
			Keywords:    item.Keywords,
			PublishedAt: item.PublishedAt,
		})
	}
	return out
}

func toTrendDTO(points []domain.TrendPoint) []trendPointDTO {
	out := make([]trendPointDTO, 0, len(points))
	for _, p := range points {
		out = append(out, trendPointDTO{
			Day:   p.Day.Format("2006-01-02"),
			Count: p.Count,
		})
	}
	return out
}

func (s *Server) searchNews(c *gin.Context) {
	keyword := c.Query("keyword")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSearchLimit)))
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))

	var source domain.Source
	if raw := c.Query("source"); raw != "" {
		parsed, ok := domain.ParseSource(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source: " + raw})
			return
		}
		source = parsed
	}

	var since time.Time
	if days > 0 {
		since = time.Now().AddDate(0, 0, -days)
	}

	items, err := s.repository.Search(c.Request.Context(), keyword, source, since, limit)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": toNewsDTO(items), "count": len(items)})
}

func (s *Server) trends(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultTrendDays)))
	if days <= 0 {
		days = defaultTrendDays
	}

	points, err := s.repository.Trend(c.Request.Context(), keyword, time.Now().AddDate(0, 0, -days))
	if err != nil {
		s.logger.Error("trend failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keyword": keyword, "days": days, "points": toTrendDTO(points)})
}

func (s *Server) hotDates(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}
	top, _ := strconv.Atoi(c.DefaultQuery("top", strconv.Itoa(defaultHotDates)))
	if top <= 0 {
		top = defaultHotDates
	}

	points, err := s.repository.HotDates(c.Request.Context(), keyword, top)
	if err != nil {
		s.logger.Error("hot dates failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keyword": keyword, "points": toTrendDTO(points)})
}

func (s *Server) stats(c *gin.Context) {
	total, bySource, categories, err := s.repository.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sources := map[string]int64{}
	for source, count := range bySource {
		sources[string(source)] = count
	}

	c.JSON(http.StatusOK, gin.H{
		"total":      total,
		"by_source":  sources,
		"categories": categories,
	})
}

type createSubscriptionRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	Keyword        string `json:"keyword" binding:"required"`
	TelegramChatID string `json:"telegram_chat_id"`
}

func (s *Server) createSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.repository.CreateSubscription(c.Request.Context(), domain.Subscription{
		UserID:         req.UserID,
		Keyword:        req.Keyword,
		TelegramChatID: req.TelegramChatID,
	})
	if err != nil {
		s.logger.Error("create subscription failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) listSubscriptions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	subs, err := s.repository.Subscriptions(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list subscriptions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type subscriptionDTO struct {
		ID             int64  `json:"id"`
		Keyword        string `json:"keyword"`
		TelegramChatID string `json:"telegram_chat_id"`
		IsActive       bool   `json:"is_active"`
	}
	out := make([]subscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionDTO{
			ID:             sub.ID,
			Keyword:        sub.Keyword,
			TelegramChatID: sub.TelegramChatID,
			IsActive:       sub.IsActive,
		})
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (s *Server) deleteSubscription(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	changed, err := s.repository.DeactivateSubscription(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("deactivate subscription failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !changed {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found or already inactive"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

func (s *Server) dashboard(c *gin.Context) {
	total, bySource, categories, err := s.repository.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("dashboard stats failed", "error", err)
		c.String(http.StatusInternalServerError, "stats unavailable")
		return
	}

	latest, err := s.repository.Search(c.Request.Context(), "", "", time.Time{}, 20)
	if err != nil {
		s.logger.Error("dashboard items failed", "error", err)
		c.String(http.StatusInternalServerError, "items unavailable")
		return
	}

	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Total":      total,
		"BySource":   bySource,
		"Categories": categories,
		"Latest":     toNewsDTO(latest),
	})
}
