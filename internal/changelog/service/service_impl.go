package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stockledger/internal/changelog/domain"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/smallbiznis/stockledger/internal/observability/logger"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Items inventorydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	items inventorydomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("changelog.service"),
		repo:  p.Repo,
		items: p.Items,
	}
}

// HistoryOf lists an item's records newest first. Deactivated items keep their history.
func (s *Service) HistoryOf(ctx context.Context, itemID string, page pagination.Pagination) (domain.ListResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(itemID))
	if err != nil || id.Int64() <= 0 {
		return domain.ListResponse{}, inventorydomain.ErrInvalidID
	}

	item, err := s.items.FindByID(ctx, s.db, id.Int64())
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	if item == nil {
		return domain.ListResponse{}, domain.ErrItemNotFound
	}

	page = page.Normalize()
	records, total, err := s.repo.FindByItem(ctx, s.db, item.ID, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return newListResponse(records, page, total), nil
}

func (s *Service) AllHistory(ctx context.Context, page pagination.Pagination) (domain.ListResponse, error) {
	page = page.Normalize()
	records, total, err := s.repo.FindAll(ctx, s.db, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return newListResponse(records, page, total), nil
}

func (s *Service) ByDateRange(ctx context.Context, start, end time.Time) ([]domain.ChangeRecord, error) {
	if start.IsZero() || end.IsZero() || start.After(end) {
		return nil, domain.ErrInvalidRange
	}
	records, err := s.repo.FindByDateRange(ctx, s.db, start, end)
	if err != nil {
		return nil, persistenceErr(err)
	}
	if records == nil {
		records = []domain.ChangeRecord{}
	}
	return records, nil
}

func (s *Service) ByActor(ctx context.Context, actor string, page pagination.Pagination) (domain.ListResponse, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" || len(actor) > inventorydomain.MaxActorLength {
		return domain.ListResponse{}, domain.ErrInvalidActor
	}
	page = page.Normalize()
	records, total, err := s.repo.FindByActor(ctx, s.db, actor, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return newListResponse(records, page, total), nil
}

func (s *Service) ByChangeType(ctx context.Context, changeType domain.ChangeType, page pagination.Pagination) (domain.ListResponse, error) {
	if !changeType.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidChangeType
	}
	page = page.Normalize()
	records, total, err := s.repo.FindByChangeType(ctx, s.db, changeType, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return newListResponse(records, page, total), nil
}

func (s *Service) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultRecentActivityLimit
	}
	if limit > domain.MaxRecentActivityLimit {
		limit = domain.MaxRecentActivityLimit
	}
	entries, err := s.repo.FindRecentActivity(ctx, s.db, limit)
	if err != nil {
		return nil, persistenceErr(err)
	}
	if entries == nil {
		entries = []domain.ActivityEntry{}
	}
	return entries, nil
}

// Reconcile compares every active item's quantity with the newest quantity its change
// log recorded. Drift means a write bypassed the ledger.
func (s *Service) Reconcile(ctx context.Context) ([]domain.Discrepancy, error) {
	snapshots, err := s.repo.QuantitySnapshots(ctx, s.db)
	if err != nil {
		return nil, persistenceErr(err)
	}

	log := logger.WithContext(ctx, s.log)
	discrepancies := []domain.Discrepancy{}
	for _, snap := range snapshots {
		var kind domain.DiscrepancyKind
		switch {
		case snap.LoggedQuantity == nil:
			kind = domain.DiscrepancyMissingHistory
		case *snap.LoggedQuantity != snap.Quantity:
			kind = domain.DiscrepancyQuantityMismatch
		default:
			continue
		}

		d := domain.Discrepancy{
			ItemID:         snap.ItemID,
			SKU:            snap.SKU,
			Kind:           kind,
			Quantity:       snap.Quantity,
			LoggedQuantity: snap.LoggedQuantity,
		}
		discrepancies = append(discrepancies, d)
		log.Warn("change log drift detected",
			zap.String("item_id", snowflake.ID(d.ItemID).String()),
			zap.String("sku", d.SKU),
			zap.String("kind", string(d.Kind)),
			zap.Int("quantity", d.Quantity),
		)
	}
	return discrepancies, nil
}

func newListResponse(records []domain.ChangeRecord, page pagination.Pagination, total int64) domain.ListResponse {
	if records == nil {
		records = []domain.ChangeRecord{}
	}
	return domain.ListResponse{Records: records, PageInfo: pagination.BuildPageInfo(page, total)}
}

func persistenceErr(err error) error {
	return fmt.Errorf("%w: %w", inventorydomain.ErrPersistence, err)
}
