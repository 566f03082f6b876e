package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/internal/sweep"
	"go.uber.org/zap"
)

func (s *Server) DashboardStats(c *gin.Context) {
	stats, err := s.inventorySvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) TopCategories(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	categories, err := s.inventorySvc.TopCategories(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": categories})
}

func (s *Server) RecentActivity(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
		return
	}
	n := changelogdomain.DefaultRecentActivityLimit
	if limit != nil {
		n = *limit
	}

	entries, err := s.changelogSvc.RecentActivity(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []changelogdomain.ActivityEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type checkAlertsResponse struct {
	RunID         string   `json:"run_id"`
	Trigger       string   `json:"trigger"`
	LowStockCount int      `json:"low_stock_count"`
	Notified      bool     `json:"notified"`
	Shared        bool     `json:"shared"`
	SKUs          []string `json:"skus"`
}

// CheckAlerts runs the manual sweep and waits for it. A concurrent caller joins
// the run already in flight.
func (s *Server) CheckAlerts(c *gin.Context) {
	res := s.alerts.Run(c.Request.Context(), sweep.TriggerManual)

	skus := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		skus = append(skus, item.SKU)
	}
	s.log.Info("manual low stock check",
		zap.String("run_id", res.RunID),
		zap.String("actor_id", actorFrom(c)),
		zap.Int("low_stock_count", len(res.Items)),
		zap.Bool("shared", res.Shared),
	)

	c.JSON(http.StatusOK, gin.H{"data": checkAlertsResponse{
		RunID:         res.RunID,
		Trigger:       string(res.Trigger),
		LowStockCount: len(res.Items),
		Notified:      res.Notified,
		Shared:        res.Shared,
		SKUs:          skus,
	}})
}

func (s *Server) Reconcile(c *gin.Context) {
	found, err := s.changelogSvc.Reconcile(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if found == nil {
		found = []changelogdomain.Discrepancy{}
	}

	c.JSON(http.StatusOK, gin.H{"data": found, "count": len(found)})
}
