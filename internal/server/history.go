package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
)

func (s *Server) ItemHistory(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.changelogSvc.HistoryOf(c.Request.Context(), strings.TrimSpace(c.Param("id")), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
}

func (s *Server) AllHistory(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.changelogSvc.AllHistory(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
}

func (s *Server) HistoryByRange(c *gin.Context) {
	start, err := parseOptionalTime(c.Query("start"), false)
	if err != nil || start == nil {
		AbortWithError(c, newValidationError("start", "invalid_start", "start must be RFC3339 or YYYY-MM-DD"))
		return
	}
	end, err := parseOptionalTime(c.Query("end"), true)
	if err != nil || end == nil {
		AbortWithError(c, newValidationError("end", "invalid_end", "end must be RFC3339 or YYYY-MM-DD"))
		return
	}

	records, err := s.changelogSvc.ByDateRange(c.Request.Context(), *start, *end)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if records == nil {
		records = []changelogdomain.ChangeRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) HistoryByActor(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.changelogSvc.ByActor(c.Request.Context(), c.Param("actor"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
}

func (s *Server) HistoryByChangeType(c *gin.Context) {
	changeType, err := changelogdomain.ParseChangeType(c.Param("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.changelogSvc.ByChangeType(c.Request.Context(), changeType, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
}
