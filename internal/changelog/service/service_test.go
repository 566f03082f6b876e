package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stockledger/internal/changelog/domain"
	"github.com/smallbiznis/stockledger/internal/changelog/repository"
	"github.com/smallbiznis/stockledger/internal/dbtest"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	inventoryrepo "github.com/smallbiznis/stockledger/internal/inventory/repository"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type seeded struct {
	db      *gorm.DB
	svc     domain.Service
	repo    domain.Repository
	drifter *dbtest.Drifter
	logs    *observer.ObservedLogs
	nextID  int64
}

func newSeeded(t *testing.T) *seeded {
	t.Helper()
	db := dbtest.Open(t)
	core, logs := observer.New(zap.WarnLevel)
	repo := repository.Provide()
	svc := New(Params{
		DB:    db,
		Log:   zap.New(core),
		Repo:  repo,
		Items: inventoryrepo.Provide(),
	})
	return &seeded{db: db, svc: svc, repo: repo, drifter: dbtest.NewDrifter(db), logs: logs, nextID: 1000}
}

func (s *seeded) item(t *testing.T, id int64, sku string, quantity int) {
	t.Helper()
	require.NoError(t, s.drifter.InsertBareItem(context.Background(), id, sku, quantity, 2))
}

func (s *seeded) record(t *testing.T, itemID int64, oldQty, newQty int, changeType domain.ChangeType, actor string, at time.Time) domain.ChangeRecord {
	t.Helper()
	s.nextID++
	rec := domain.NewChangeRecord(s.nextID, itemID, oldQty, newQty, changeType, nil, actor, at)
	require.NoError(t, s.repo.Append(context.Background(), s.db, &rec))
	return rec
}

func TestHistoryOfOrdersNewestFirst(t *testing.T) {
	s := newSeeded(t)
	s.item(t, 1, "A1", 4)
	s.record(t, 1, 0, 10, domain.ChangeTypeInitialStock, "alice", base)
	s.record(t, 1, 10, 7, domain.ChangeTypeSold, "bob", base.Add(time.Minute))
	s.record(t, 1, 7, 4, domain.ChangeTypeDamaged, "bob", base.Add(time.Minute))

	resp, err := s.svc.HistoryOf(context.Background(), snowflake.ID(1).String(), pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, resp.Records, 3)
	for i := 1; i < len(resp.Records); i++ {
		assert.False(t, resp.Records[i].CreatedAt.After(resp.Records[i-1].CreatedAt))
	}
	assert.Equal(t, domain.ChangeTypeDamaged, resp.Records[0].ChangeType)
	assert.Equal(t, domain.ChangeTypeInitialStock, resp.Records[2].ChangeType)
	assert.Equal(t, int64(3), resp.PageInfo.TotalItems)
}

func TestHistoryOfUnknownItem(t *testing.T) {
	s := newSeeded(t)

	_, err := s.svc.HistoryOf(context.Background(), "42", pagination.Pagination{})
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	_, err = s.svc.HistoryOf(context.Background(), "nope", pagination.Pagination{})
	require.ErrorIs(t, err, inventorydomain.ErrInvalidID)
}

func TestHistoryQueries(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()
	s.item(t, 1, "A1", 8)
	s.item(t, 2, "B1", 3)
	s.record(t, 1, 0, 10, domain.ChangeTypeInitialStock, "alice", base)
	s.record(t, 2, 0, 5, domain.ChangeTypeInitialStock, "alice", base.Add(time.Hour))
	s.record(t, 1, 10, 8, domain.ChangeTypeSold, "bob", base.Add(2*time.Hour))
	s.record(t, 2, 5, 3, domain.ChangeTypeSold, "bob", base.Add(3*time.Hour))

	all, err := s.svc.AllHistory(ctx, pagination.Pagination{Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, all.Records, 3)
	assert.True(t, all.PageInfo.HasMore)
	assert.Equal(t, 2, all.PageInfo.TotalPages)

	ranged, err := s.svc.ByDateRange(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, int64(1), ranged[0].ItemID)

	_, err = s.svc.ByDateRange(ctx, base.Add(time.Hour), base)
	require.ErrorIs(t, err, domain.ErrInvalidRange)

	byActor, err := s.svc.ByActor(ctx, "bob", pagination.Pagination{})
	require.NoError(t, err)
	assert.Len(t, byActor.Records, 2)

	byType, err := s.svc.ByChangeType(ctx, domain.ChangeTypeInitialStock, pagination.Pagination{})
	require.NoError(t, err)
	assert.Len(t, byType.Records, 2)

	_, err = s.svc.ByChangeType(ctx, domain.ChangeType("LOST"), pagination.Pagination{})
	require.ErrorIs(t, err, domain.ErrInvalidChangeType)

	recent, err := s.svc.RecentActivity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "B1", recent[0].ItemSKU)
	assert.Equal(t, "A1", recent[1].ItemSKU)
}

func TestReconcileReportsDrift(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	s.item(t, 1, "OK1", 10)
	s.record(t, 1, 0, 10, domain.ChangeTypeInitialStock, "alice", base)

	s.item(t, 2, "DRIFT", 10)
	s.record(t, 2, 0, 10, domain.ChangeTypeInitialStock, "alice", base)
	s.record(t, 2, 10, 6, domain.ChangeTypeSold, "bob", base.Add(time.Minute))
	require.NoError(t, s.drifter.ForceQuantity(ctx, 2, 9))

	s.item(t, 3, "BARE", 4)

	found, err := s.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "DRIFT", found[0].SKU)
	assert.Equal(t, domain.DiscrepancyQuantityMismatch, found[0].Kind)
	require.NotNil(t, found[0].LoggedQuantity)
	assert.Equal(t, 6, *found[0].LoggedQuantity)
	assert.Equal(t, 9, found[0].Quantity)

	assert.Equal(t, "BARE", found[1].SKU)
	assert.Equal(t, domain.DiscrepancyMissingHistory, found[1].Kind)
	assert.Nil(t, found[1].LoggedQuantity)

	assert.Equal(t, 2, s.logs.FilterMessage("change log drift detected").Len())
}

func TestParseChangeType(t *testing.T) {
	got, err := domain.ParseChangeType(" stock_in ")
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeTypeStockIn, got)

	_, err = domain.ParseChangeType("")
	require.ErrorIs(t, err, domain.ErrInvalidChangeType)

	rec := domain.NewChangeRecord(1, 2, 10, 3, domain.ChangeTypeSold, nil, "bob", base)
	assert.Equal(t, -7, rec.Delta)
}
