package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/stockledger/pkg/db/pagination"
)

type Service interface {
	HistoryOf(ctx context.Context, itemID string, page pagination.Pagination) (ListResponse, error)
	AllHistory(ctx context.Context, page pagination.Pagination) (ListResponse, error)
	ByDateRange(ctx context.Context, start, end time.Time) ([]ChangeRecord, error)
	ByActor(ctx context.Context, actor string, page pagination.Pagination) (ListResponse, error)
	ByChangeType(ctx context.Context, changeType ChangeType, page pagination.Pagination) (ListResponse, error)
	RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
	Reconcile(ctx context.Context) ([]Discrepancy, error)
}

type ListResponse struct {
	Records  []ChangeRecord      `json:"records"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

const (
	DefaultRecentActivityLimit = 10
	MaxRecentActivityLimit     = 100
)

var (
	ErrInvalidChangeType = errors.New("invalid_change_type")
	ErrInvalidRange      = errors.New("invalid_range")
	ErrInvalidActor      = errors.New("invalid_actor")
	ErrItemNotFound      = errors.New("not_found")
)
