package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
)

func (s *Server) CreateItem(c *gin.Context) {
	var req inventorydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.inventorySvc.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("sku", item.SKU)
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListItems(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.inventorySvc.List(c.Request.Context(), inventorydomain.ListRequest{
		Page:    page,
		SortBy:  strings.TrimSpace(c.Query("sort_by")),
		SortDir: strings.TrimSpace(c.Query("sort_dir")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) GetItem(c *gin.Context) {
	item, err := s.inventorySvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetItemBySKU(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	c.Set("sku", sku)

	item, err := s.inventorySvc.GetBySKU(c.Request.Context(), sku)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateItem(c *gin.Context) {
	var req inventorydomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.inventorySvc.UpdateMetadata(c.Request.Context(), actorFrom(c), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateStock(c *gin.Context) {
	var req inventorydomain.StockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RequestID = c.GetString("request_id")

	item, err := s.inventorySvc.UpdateStock(c.Request.Context(), actorFrom(c), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("sku", item.SKU)
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteItem(c *gin.Context) {
	if err := s.inventorySvc.SoftDelete(c.Request.Context(), actorFrom(c), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) SearchItems(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.inventorySvc.Search(c.Request.Context(), c.Query("q"), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) FilterItems(c *gin.Context) {
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.inventorySvc.Filter(c.Request.Context(), inventorydomain.FilterRequest{
		Category: strings.TrimSpace(c.Query("category")),
		Supplier: strings.TrimSpace(c.Query("supplier")),
		Location: strings.TrimSpace(c.Query("location")),
	}, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) ListLowStockItems(c *gin.Context) {
	items, err := s.inventorySvc.LowStockItems(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListCategories(c *gin.Context) {
	s.distinct(c, s.inventorySvc.DistinctCategories)
}

func (s *Server) ListSuppliers(c *gin.Context) {
	s.distinct(c, s.inventorySvc.DistinctSuppliers)
}

func (s *Server) ListLocations(c *gin.Context) {
	s.distinct(c, s.inventorySvc.DistinctLocations)
}

func (s *Server) distinct(c *gin.Context, load func(ctx context.Context) ([]string, error)) {
	values, err := load(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if values == nil {
		values = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"data": values})
}
