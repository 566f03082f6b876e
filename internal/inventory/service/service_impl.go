package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/internal/clock"
	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/smallbiznis/stockledger/internal/inventory/domain"
	obscontext "github.com/smallbiznis/stockledger/internal/observability/context"
	"github.com/smallbiznis/stockledger/internal/observability/logger"
	"github.com/smallbiznis/stockledger/internal/observability/metrics"
	"github.com/smallbiznis/stockledger/pkg/db"
	"github.com/smallbiznis/stockledger/pkg/db/option"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxStockUpdateAttempts = 3
	initialStockReason     = "Initial stock entry"
	defaultNotifyTimeout   = 10 * time.Second
	defaultTopCategories   = 5
	maxTopCategories       = 50
)

var sortableColumns = map[string]bool{
	"name":       true,
	"sku":        true,
	"quantity":   true,
	"category":   true,
	"created_at": true,
	"updated_at": true,
}

// errStaleQuantity marks a lost compare-and-set; the whole read-modify-write is retried.
var errStaleQuantity = errors.New("stale_quantity")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	ChangeLog changelogdomain.Repository
	Notifier  domain.Notifier
	Clock     clock.Clock
	Cfg       config.Config
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	changelog     changelogdomain.Repository
	notifier      domain.Notifier
	clock         clock.Clock
	metrics       *metrics.Metrics
	notifyTimeout time.Duration
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	m := p.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	notifyTimeout := p.Cfg.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("inventory.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		changelog:     p.ChangeLog,
		notifier:      p.Notifier,
		clock:         c,
		metrics:       m,
		notifyTimeout: notifyTimeout,
	}
}

func (s *Service) Create(ctx context.Context, actor string, req domain.CreateRequest) (*domain.Item, error) {
	actor, err := normalizeActor(actor)
	if err != nil {
		return nil, err
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" || len(sku) > domain.MaxSKULength {
		return nil, domain.ErrInvalidSKU
	}
	if req.Quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	item := &domain.Item{
		ID:        s.genID.Generate().Int64(),
		SKU:       sku,
		Quantity:  req.Quantity,
		Active:    true,
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyDescriptive(item, descriptiveFields{
		Name:             req.Name,
		Description:      req.Description,
		ReorderThreshold: req.ReorderThreshold,
		UnitPrice:        req.UnitPrice,
		Category:         req.Category,
		SupplierName:     req.SupplierName,
		SupplierEmail:    req.SupplierEmail,
		SupplierPhone:    req.SupplierPhone,
		Location:         req.Location,
	}); err != nil {
		return nil, err
	}

	reason := initialStockReason
	record := changelogdomain.NewChangeRecord(
		s.genID.Generate().Int64(),
		item.ID,
		0,
		item.Quantity,
		changelogdomain.ChangeTypeInitialStock,
		&reason,
		actor,
		now,
	)
	record.Metadata = requestMetadata(ctx, "")

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.ExistsBySKU(ctx, tx, sku)
		if err != nil {
			return persistenceErr(err)
		}
		if exists {
			return domain.ErrDuplicateSKU
		}
		if err := s.repo.Insert(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSKU
			}
			return persistenceErr(err)
		}
		if err := s.changelog.Append(ctx, tx, &record); err != nil {
			return persistenceErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordItemCreated(ctx, ptrToString(item.Category))
	s.metrics.RecordStockMutation(ctx, string(record.ChangeType), record.Delta)
	logger.WithContext(ctx, s.log).Info("inventory item created",
		zap.String("item_id", snowflake.ID(item.ID).String()),
		zap.String("sku", item.SKU),
		zap.Int("quantity", item.Quantity),
	)
	return item, nil
}

func (s *Service) UpdateMetadata(ctx context.Context, actor string, id string, req domain.UpdateRequest) (*domain.Item, error) {
	actor, err := normalizeActor(actor)
	if err != nil {
		return nil, err
	}
	itemID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var updated *domain.Item
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindActiveByIDForUpdate(ctx, tx, itemID)
		if err != nil {
			return persistenceErr(err)
		}
		if item == nil {
			return domain.ErrNotFound
		}

		if err := applyDescriptive(item, descriptiveFields{
			Name:             req.Name,
			Description:      req.Description,
			ReorderThreshold: req.ReorderThreshold,
			UnitPrice:        req.UnitPrice,
			Category:         req.Category,
			SupplierName:     req.SupplierName,
			SupplierEmail:    req.SupplierEmail,
			SupplierPhone:    req.SupplierPhone,
			Location:         req.Location,
		}); err != nil {
			return err
		}
		item.UpdatedBy = actor
		item.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateMetadata(ctx, tx, item); err != nil {
			return persistenceErr(err)
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStock sets an item's quantity and appends the matching change record in one
// transaction. The low-stock alert runs after commit and never affects the result.
func (s *Service) UpdateStock(ctx context.Context, actor string, id string, req domain.StockUpdateRequest) (*domain.Item, error) {
	actor, err := normalizeActor(actor)
	if err != nil {
		return nil, err
	}
	itemID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if req.Quantity == nil || *req.Quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	newQuantity := *req.Quantity

	changeType, err := changelogdomain.ParseChangeType(req.ChangeType)
	if err != nil || changeType == changelogdomain.ChangeTypeInitialStock {
		return nil, domain.ErrInvalidChangeType
	}
	reason, err := normalizeOptional(req.Reason, domain.MaxReasonLength, domain.ErrInvalidReason)
	if err != nil {
		return nil, err
	}

	var (
		updated *domain.Item
		record  changelogdomain.ChangeRecord
	)
	for attempt := 1; attempt <= maxStockUpdateAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			item, err := s.repo.FindActiveByIDForUpdate(ctx, tx, itemID)
			if err != nil {
				return persistenceErr(err)
			}
			if item == nil {
				return domain.ErrNotFound
			}

			now := s.clock.Now()
			oldQuantity := item.Quantity
			ok, err := s.repo.CompareAndSetQuantity(ctx, tx, item.ID, oldQuantity, newQuantity, actor, now)
			if err != nil {
				return persistenceErr(err)
			}
			if !ok {
				return errStaleQuantity
			}

			record = changelogdomain.NewChangeRecord(
				s.genID.Generate().Int64(),
				item.ID,
				oldQuantity,
				newQuantity,
				changeType,
				reason,
				actor,
				now,
			)
			record.Metadata = requestMetadata(ctx, req.RequestID)
			if err := s.changelog.Append(ctx, tx, &record); err != nil {
				return persistenceErr(err)
			}

			item.Quantity = newQuantity
			item.UpdatedBy = actor
			item.UpdatedAt = now
			updated = item
			return nil
		})
		if !errors.Is(err, errStaleQuantity) {
			break
		}
		s.log.Debug("stock update lost compare-and-set, retrying",
			zap.Int64("item_id", itemID),
			zap.Int("attempt", attempt),
		)
	}
	if errors.Is(err, errStaleQuantity) {
		return nil, domain.ErrConcurrentUpdate
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStockMutation(ctx, string(changeType), record.Delta)
	log := logger.WithContext(ctx, s.log)
	log.Info("stock updated",
		zap.String("item_id", snowflake.ID(updated.ID).String()),
		zap.String("sku", updated.SKU),
		zap.Int("old_quantity", record.OldQuantity),
		zap.Int("new_quantity", record.NewQuantity),
		zap.String("change_type", string(changeType)),
	)

	if updated.IsLowStock() {
		s.metrics.RecordLowStockDetected(ctx, "ledger")
		s.notifyLowStock(ctx, log, *updated)
	}
	return updated, nil
}

func (s *Service) notifyLowStock(ctx context.Context, log *zap.Logger, item domain.Item) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyLowStock(notifyCtx, item); err != nil {
		log.Warn("low stock alert failed",
			zap.String("sku", item.SKU),
			zap.Error(err),
		)
	}
}

func (s *Service) SoftDelete(ctx context.Context, actor string, id string) error {
	actor, err := normalizeActor(actor)
	if err != nil {
		return err
	}
	itemID, err := parseID(id)
	if err != nil {
		return err
	}

	ok, err := s.repo.Deactivate(ctx, s.db, itemID, actor, s.clock.Now())
	if err != nil {
		return persistenceErr(err)
	}
	if !ok {
		return domain.ErrNotFound
	}

	logger.WithContext(ctx, s.log).Info("inventory item deactivated",
		zap.String("item_id", snowflake.ID(itemID).String()),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Item, error) {
	itemID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindActiveByID(ctx, s.db, itemID)
	if err != nil {
		return nil, persistenceErr(err)
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" || len(sku) > domain.MaxSKULength {
		return nil, domain.ErrInvalidSKU
	}
	item, err := s.repo.FindActiveBySKU(ctx, s.db, sku)
	if err != nil {
		return nil, persistenceErr(err)
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := req.Page.Normalize()
	sort := option.WithQuerySortBy(req.SortBy, req.SortDir, sortableColumns)
	items, total, err := s.repo.FindActive(ctx, s.db, sort, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return domain.ListResponse{Items: items, PageInfo: pagination.BuildPageInfo(page, total)}, nil
}

// LowStockItems is the single low-stock query shared by the ledger and the sweep.
func (s *Service) LowStockItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.repo.FindLowStock(ctx, s.db)
	if err != nil {
		return nil, persistenceErr(err)
	}
	return items, nil
}

func (s *Service) Search(ctx context.Context, term string, page pagination.Pagination) (domain.ListResponse, error) {
	page = page.Normalize()
	term = strings.TrimSpace(term)
	if term == "" {
		return s.List(ctx, domain.ListRequest{Page: page, SortBy: "name"})
	}
	items, total, err := s.repo.Search(ctx, s.db, term, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return domain.ListResponse{Items: items, PageInfo: pagination.BuildPageInfo(page, total)}, nil
}

func (s *Service) Filter(ctx context.Context, filter domain.FilterRequest, page pagination.Pagination) (domain.ListResponse, error) {
	page = page.Normalize()
	filter = domain.FilterRequest{
		Category: strings.TrimSpace(filter.Category),
		Supplier: strings.TrimSpace(filter.Supplier),
		Location: strings.TrimSpace(filter.Location),
	}
	if filter.Empty() {
		return s.List(ctx, domain.ListRequest{Page: page, SortBy: "name"})
	}
	items, total, err := s.repo.FindByFilters(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListResponse{}, persistenceErr(err)
	}
	return domain.ListResponse{Items: items, PageInfo: pagination.BuildPageInfo(page, total)}, nil
}

func (s *Service) DistinctCategories(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "category")
}

func (s *Service) DistinctSuppliers(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "supplier_name")
}

func (s *Service) DistinctLocations(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "location")
}

func (s *Service) distinct(ctx context.Context, column string) ([]string, error) {
	values, err := s.repo.DistinctValues(ctx, s.db, column)
	if err != nil {
		return nil, persistenceErr(err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	totals, err := s.repo.Totals(ctx, s.db)
	if err != nil {
		return nil, persistenceErr(err)
	}
	counts, err := s.repo.CategoryCounts(ctx, s.db)
	if err != nil {
		return nil, persistenceErr(err)
	}

	distribution := make(map[string]int64, len(counts))
	for _, c := range counts {
		distribution[c.Category] = c.Count
	}

	return &domain.Stats{
		TotalItems:           totals.TotalItems,
		LowStockItems:        totals.LowStock,
		OutOfStockItems:      totals.OutOfStock,
		TotalStockUnits:      totals.TotalUnits,
		TotalInventoryValue:  totals.TotalValue.Round(2),
		CategoryDistribution: distribution,
		StockStatus: map[string]int64{
			domain.StockStatusOutOfStock: totals.OutOfStock,
			domain.StockStatusLowStock:   totals.LowStock - totals.OutOfStock,
			domain.StockStatusInStock:    totals.TotalItems - totals.LowStock,
		},
	}, nil
}

func (s *Service) TopCategories(ctx context.Context, limit int) ([]domain.CategoryCount, error) {
	if limit <= 0 {
		limit = defaultTopCategories
	}
	if limit > maxTopCategories {
		limit = maxTopCategories
	}
	counts, err := s.repo.CategoryCounts(ctx, s.db)
	if err != nil {
		return nil, persistenceErr(err)
	}
	if len(counts) > limit {
		counts = counts[:limit]
	}
	for i := range counts {
		counts[i].Slug = slug.Make(counts[i].Category)
	}
	return counts, nil
}

type descriptiveFields struct {
	Name             string
	Description      *string
	ReorderThreshold int
	UnitPrice        decimal.Decimal
	Category         *string
	SupplierName     *string
	SupplierEmail    *string
	SupplierPhone    *string
	Location         *string
}

func applyDescriptive(item *domain.Item, f descriptiveFields) error {
	name := strings.TrimSpace(f.Name)
	if name == "" || len(name) > domain.MaxNameLength {
		return domain.ErrInvalidName
	}
	if f.ReorderThreshold < 0 {
		return domain.ErrInvalidThreshold
	}
	if f.UnitPrice.IsNegative() {
		return domain.ErrInvalidUnitPrice
	}

	description, err := normalizeOptional(f.Description, domain.MaxDescriptionLength, domain.ErrInvalidField)
	if err != nil {
		return err
	}
	category, err := normalizeOptional(f.Category, domain.MaxCategoryLength, domain.ErrInvalidField)
	if err != nil {
		return err
	}
	supplierName, err := normalizeOptional(f.SupplierName, domain.MaxSupplierNameLength, domain.ErrInvalidField)
	if err != nil {
		return err
	}
	supplierEmail, err := normalizeOptional(f.SupplierEmail, domain.MaxSupplierEmailLength, domain.ErrInvalidField)
	if err != nil {
		return err
	}
	if supplierEmail != nil {
		if _, err := mail.ParseAddress(*supplierEmail); err != nil {
			return domain.ErrInvalidField
		}
	}
	supplierPhone, err := normalizeOptional(f.SupplierPhone, domain.MaxSupplierPhoneLength, domain.ErrInvalidField)
	if err != nil {
		return err
	}
	location, err := normalizeOptional(f.Location, domain.MaxLocationLength, domain.ErrInvalidField)
	if err != nil {
		return err
	}

	item.Name = name
	item.Description = description
	item.ReorderThreshold = f.ReorderThreshold
	item.UnitPrice = f.UnitPrice.Round(2)
	item.Category = category
	item.SupplierName = supplierName
	item.SupplierEmail = supplierEmail
	item.SupplierPhone = supplierPhone
	item.Location = location
	return nil
}

func normalizeActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" || len(actor) > domain.MaxActorLength {
		return "", domain.ErrInvalidActor
	}
	return actor, nil
}

func normalizeOptional(value *string, limit int, invalid error) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > limit {
		return nil, invalid
	}
	return &trimmed, nil
}

func parseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed.Int64() <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func requestMetadata(ctx context.Context, requestID string) datatypes.JSONMap {
	if requestID == "" {
		requestID = obscontext.RequestIDFromContext(ctx)
	}
	if requestID == "" {
		return nil
	}
	return datatypes.JSONMap{"request_id": requestID}
}

func persistenceErr(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

func ptrToString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
