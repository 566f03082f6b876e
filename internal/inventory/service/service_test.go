package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	changelogrepo "github.com/smallbiznis/stockledger/internal/changelog/repository"
	"github.com/smallbiznis/stockledger/internal/clock"
	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/smallbiznis/stockledger/internal/dbtest"
	"github.com/smallbiznis/stockledger/internal/inventory/domain"
	"github.com/smallbiznis/stockledger/internal/inventory/repository"
	"github.com/smallbiznis/stockledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyLowStock(ctx context.Context, item domain.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *mockNotifier) NotifyLowStockBatch(ctx context.Context, items []domain.Item) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

// failingChangeLog rejects appends once fail is set.
type failingChangeLog struct {
	changelogdomain.Repository
	fail bool
}

func (l *failingChangeLog) Append(ctx context.Context, db *gorm.DB, record *changelogdomain.ChangeRecord) error {
	if l.fail {
		return errors.New("disk full")
	}
	return l.Repository.Append(ctx, db, record)
}

// contendedRepo loses the next `losses` compare-and-set calls, as if another writer got there first.
type contendedRepo struct {
	domain.Repository
	losses   int
	attempts int
}

func (r *contendedRepo) CompareAndSetQuantity(ctx context.Context, db *gorm.DB, id int64, oldQuantity, newQuantity int, actor string, at time.Time) (bool, error) {
	r.attempts++
	if r.losses > 0 {
		r.losses--
		return false, nil
	}
	return r.Repository.CompareAndSetQuantity(ctx, db, id, oldQuantity, newQuantity, actor, at)
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	notifier *mockNotifier
	clock    *clock.FakeClock
	logs     changelogdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, repository.Provide(), changelogrepo.Provide())
}

func newFixtureWith(t *testing.T, repo domain.Repository, logs changelogdomain.Repository) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	notifier := &mockNotifier{}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repo,
		ChangeLog: logs,
		Notifier:  notifier,
		Clock:     fake,
		Cfg:       config.Config{NotifyTimeout: time.Second},
	})
	return &fixture{db: db, svc: svc, notifier: notifier, clock: fake, logs: logs}
}

func (f *fixture) create(t *testing.T, sku string, quantity, threshold int) *domain.Item {
	t.Helper()
	item, err := f.svc.Create(context.Background(), "alice", domain.CreateRequest{
		SKU:              sku,
		Name:             "Item " + sku,
		Quantity:         quantity,
		ReorderThreshold: threshold,
		UnitPrice:        decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return item
}

func (f *fixture) history(t *testing.T, itemID int64) []changelogdomain.ChangeRecord {
	t.Helper()
	records, _, err := f.logs.FindByItem(context.Background(), f.db, itemID, pagination.Pagination{Page: 1, PageSize: 100})
	require.NoError(t, err)
	return records
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func idOf(item *domain.Item) string { return snowflake.ID(item.ID).String() }

func TestCreateRecordsInitialStock(t *testing.T) {
	f := newFixture(t)

	item := f.create(t, "a1", 10, 5)
	assert.Equal(t, "A1", item.SKU)
	assert.True(t, item.Active)
	assert.False(t, item.IsLowStock())

	low, err := f.svc.LowStockItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, low)

	records := f.history(t, item.ID)
	require.Len(t, records, 1)
	assert.Equal(t, changelogdomain.ChangeTypeInitialStock, records[0].ChangeType)
	assert.Equal(t, 0, records[0].OldQuantity)
	assert.Equal(t, 10, records[0].NewQuantity)
	assert.Equal(t, 10, records[0].Delta)
	assert.Equal(t, "alice", records[0].ChangedBy)
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)
}

func TestCreateAtThresholdDoesNotAlert(t *testing.T) {
	f := newFixture(t)

	item := f.create(t, "B2", 3, 5)
	assert.True(t, item.IsLowStock())
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)
}

func TestUpdateStockBelowThresholdAlertsOnce(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)

	f.notifier.On("NotifyLowStock", mock.Anything, mock.MatchedBy(func(got domain.Item) bool {
		return got.ID == item.ID && got.Quantity == 3
	})).Return(nil).Once()

	updated, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(3),
		ChangeType: "STOCK_OUT",
		Reason:     strPtr("sale"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	assert.True(t, updated.IsLowStock())
	assert.Equal(t, "bob", updated.UpdatedBy)

	records := f.history(t, item.ID)
	require.Len(t, records, 2)
	latest := records[0]
	assert.Equal(t, changelogdomain.ChangeTypeStockOut, latest.ChangeType)
	assert.Equal(t, 10, latest.OldQuantity)
	assert.Equal(t, 3, latest.NewQuantity)
	assert.Equal(t, -7, latest.Delta)
	require.NotNil(t, latest.Reason)
	assert.Equal(t, "sale", *latest.Reason)

	f.notifier.AssertNumberOfCalls(t, "NotifyLowStock", 1)
}

func TestUpdateStockNotifierFailureKeepsMutation(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)

	f.notifier.On("NotifyLowStock", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	updated, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(0),
		ChangeType: "sold",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Quantity)

	stored, err := f.svc.Get(context.Background(), idOf(item))
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Quantity)
	assert.Len(t, f.history(t, item.ID), 2)
}

func TestUpdateStockAboveThresholdDoesNotAlert(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)

	_, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(25),
		ChangeType: "STOCK_IN",
	})
	require.NoError(t, err)
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)
}

func TestCreateDuplicateSKU(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)

	_, err := f.svc.Create(context.Background(), "alice", domain.CreateRequest{
		SKU:      " a1 ",
		Name:     "Other",
		Quantity: 4,
	})
	require.ErrorIs(t, err, domain.ErrDuplicateSKU)

	var items, records int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM inventory_items`).Scan(&items).Error)
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM stock_change_logs`).Scan(&records).Error)
	assert.Equal(t, int64(1), items)
	assert.Equal(t, int64(1), records)
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestCreateRejectsReusedSKUOfDeletedItem(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)
	require.NoError(t, f.svc.SoftDelete(context.Background(), "alice", idOf(item)))

	_, err := f.svc.Create(context.Background(), "alice", domain.CreateRequest{SKU: "A1", Name: "Again"})
	require.ErrorIs(t, err, domain.ErrDuplicateSKU)
}

func TestUpdateStockOnDeletedItem(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)
	require.NoError(t, f.svc.SoftDelete(context.Background(), "alice", idOf(item)))

	_, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(1),
		ChangeType: "STOCK_OUT",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	var quantity int
	require.NoError(t, f.db.Raw(`SELECT quantity FROM inventory_items WHERE id = ?`, item.ID).Scan(&quantity).Error)
	assert.Equal(t, 10, quantity)
	assert.Len(t, f.history(t, item.ID), 1)
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)
}

func TestUpdateStockValidation(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)
	long := make([]byte, domain.MaxReasonLength+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name  string
		actor string
		id    string
		req   domain.StockUpdateRequest
		want  error
	}{
		{"negative quantity", "bob", idOf(item), domain.StockUpdateRequest{Quantity: intPtr(-1), ChangeType: "ADJUSTMENT"}, domain.ErrInvalidQuantity},
		{"missing quantity", "bob", idOf(item), domain.StockUpdateRequest{ChangeType: "ADJUSTMENT"}, domain.ErrInvalidQuantity},
		{"unknown type", "bob", idOf(item), domain.StockUpdateRequest{Quantity: intPtr(1), ChangeType: "LOST"}, domain.ErrInvalidChangeType},
		{"initial stock reserved", "bob", idOf(item), domain.StockUpdateRequest{Quantity: intPtr(1), ChangeType: "INITIAL_STOCK"}, domain.ErrInvalidChangeType},
		{"reason too long", "bob", idOf(item), domain.StockUpdateRequest{Quantity: intPtr(1), ChangeType: "ADJUSTMENT", Reason: strPtr(string(long))}, domain.ErrInvalidReason},
		{"missing actor", " ", idOf(item), domain.StockUpdateRequest{Quantity: intPtr(1), ChangeType: "ADJUSTMENT"}, domain.ErrInvalidActor},
		{"bad id", "bob", "abc", domain.StockUpdateRequest{Quantity: intPtr(1), ChangeType: "ADJUSTMENT"}, domain.ErrInvalidID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.UpdateStock(context.Background(), tc.actor, tc.id, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestConcurrentUpdatesChainOldQuantities(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 100, 0)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := f.svc.UpdateStock(context.Background(), "worker", idOf(item), domain.StockUpdateRequest{
				Quantity:   intPtr(q),
				ChangeType: "ADJUSTMENT",
			})
			errs <- err
		}(50 + i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records := f.history(t, item.ID)
	require.Len(t, records, workers+1)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].NewQuantity, records[i].OldQuantity, "record %d", i)
		assert.Equal(t, records[i].NewQuantity-records[i].OldQuantity, records[i].Delta)
	}

	stored, err := f.svc.Get(context.Background(), idOf(item))
	require.NoError(t, err)
	assert.Equal(t, records[len(records)-1].NewQuantity, stored.Quantity)
}

func TestLowStockItemsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.create(t, "A1", 10, 5)
	f.create(t, "B1", 5, 5)
	f.create(t, "C1", 0, 2)
	deleted := f.create(t, "D1", 1, 5)
	require.NoError(t, f.svc.SoftDelete(context.Background(), "alice", idOf(deleted)))

	first, err := f.svc.LowStockItems(context.Background())
	require.NoError(t, err)
	second, err := f.svc.LowStockItems(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, skus(first), []string{"B1", "C1"})
	assert.ElementsMatch(t, skus(first), skus(second))
	for _, item := range first {
		assert.True(t, item.IsLowStock())
	}
}

func TestUpdateMetadataLeavesQuantityAndLog(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)

	updated, err := f.svc.UpdateMetadata(context.Background(), "carol", idOf(item), domain.UpdateRequest{
		Name:             "Renamed",
		ReorderThreshold: 12,
		UnitPrice:        decimal.RequireFromString("4.25"),
		Category:         strPtr("Tools"),
		SupplierEmail:    strPtr("sales@acme.test"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 10, updated.Quantity)
	assert.Equal(t, "carol", updated.UpdatedBy)
	assert.True(t, updated.IsLowStock())
	assert.Len(t, f.history(t, item.ID), 1)
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)

	_, err = f.svc.UpdateMetadata(context.Background(), "carol", idOf(item), domain.UpdateRequest{
		Name:          "Renamed",
		SupplierEmail: strPtr("not-an-email"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidField)
}

func TestSoftDeleteHidesItemAndEmitsNoRecord(t *testing.T) {
	f := newFixture(t)
	item := f.create(t, "A1", 10, 5)

	require.NoError(t, f.svc.SoftDelete(context.Background(), "alice", idOf(item)))
	require.ErrorIs(t, f.svc.SoftDelete(context.Background(), "alice", idOf(item)), domain.ErrNotFound)

	_, err := f.svc.Get(context.Background(), idOf(item))
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetBySKU(context.Background(), "a1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, f.history(t, item.ID), 1)
}

func TestCatalogueReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, req := range []domain.CreateRequest{
		{SKU: "HAM-1", Name: "Claw Hammer", Quantity: 4, ReorderThreshold: 5, UnitPrice: decimal.RequireFromString("10.00"), Category: strPtr("Tools"), Location: strPtr("A1")},
		{SKU: "SAW-1", Name: "Hand Saw", Description: strPtr("fine teeth"), Quantity: 0, ReorderThreshold: 1, UnitPrice: decimal.RequireFromString("20.00"), Category: strPtr("Tools"), Location: strPtr("B2")},
		{SKU: "GLU-1", Name: "Wood Glue", Quantity: 10, ReorderThreshold: 2, UnitPrice: decimal.RequireFromString("1.50"), SupplierName: strPtr("Acme")},
	} {
		_, err := f.svc.Create(ctx, "alice", req)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	list, err := f.svc.List(ctx, domain.ListRequest{Page: pagination.Pagination{Page: 1, PageSize: 2}, SortBy: "sku", SortDir: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GLU-1", "HAM-1"}, skus(list.Items))
	assert.Equal(t, int64(3), list.PageInfo.TotalItems)
	assert.True(t, list.PageInfo.HasMore)

	found, err := f.svc.Search(ctx, "TEETH", pagination.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"SAW-1"}, skus(found.Items))

	filtered, err := f.svc.Filter(ctx, domain.FilterRequest{Category: "Tools", Location: "A1"}, pagination.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"HAM-1"}, skus(filtered.Items))

	categories, err := f.svc.DistinctCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tools"}, categories)
	suppliers, err := f.svc.DistinctSuppliers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, suppliers)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, int64(2), stats.LowStockItems)
	assert.Equal(t, int64(1), stats.OutOfStockItems)
	assert.Equal(t, int64(14), stats.TotalStockUnits)
	assert.True(t, decimal.RequireFromString("55").Equal(stats.TotalInventoryValue), stats.TotalInventoryValue.String())
	assert.Equal(t, map[string]int64{"Tools": 2, domain.UncategorizedLabel: 1}, stats.CategoryDistribution)
	assert.Equal(t, int64(1), stats.StockStatus[domain.StockStatusOutOfStock])
	assert.Equal(t, int64(1), stats.StockStatus[domain.StockStatusLowStock])
	assert.Equal(t, int64(1), stats.StockStatus[domain.StockStatusInStock])

	top, err := f.svc.TopCategories(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Tools", top[0].Category)
	assert.Equal(t, "tools", top[0].Slug)
	assert.Equal(t, int64(2), top[0].Count)
}

func skus(items []domain.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.SKU)
	}
	return out
}

func TestCreateRollsBackWhenChangeRecordFails(t *testing.T) {
	logs := &failingChangeLog{Repository: changelogrepo.Provide(), fail: true}
	f := newFixtureWith(t, repository.Provide(), logs)

	_, err := f.svc.Create(context.Background(), "alice", domain.CreateRequest{
		SKU:      "A1",
		Name:     "Widget",
		Quantity: 10,
	})
	require.ErrorIs(t, err, domain.ErrPersistence)

	_, err = f.svc.GetBySKU(context.Background(), "A1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	var items int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM inventory_items`).Scan(&items).Error)
	assert.Zero(t, items)
}

func TestUpdateStockRollsBackWhenChangeRecordFails(t *testing.T) {
	logs := &failingChangeLog{Repository: changelogrepo.Provide()}
	f := newFixtureWith(t, repository.Provide(), logs)
	item := f.create(t, "A1", 10, 5)

	logs.fail = true
	_, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(2),
		ChangeType: "STOCK_OUT",
	})
	require.ErrorIs(t, err, domain.ErrPersistence)

	stored, err := f.svc.Get(context.Background(), idOf(item))
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Quantity)
	assert.Equal(t, "alice", stored.UpdatedBy)

	assert.Len(t, f.history(t, item.ID), 1)
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)
}

func TestUpdateStockRetriesLostCompareAndSet(t *testing.T) {
	repo := &contendedRepo{Repository: repository.Provide()}
	f := newFixtureWith(t, repo, changelogrepo.Provide())
	item := f.create(t, "A1", 10, 5)

	repo.losses = 2
	repo.attempts = 0
	updated, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(7),
		ChangeType: "STOCK_OUT",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)
	assert.Equal(t, 3, repo.attempts)

	records := f.history(t, item.ID)
	require.Len(t, records, 2)
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	assert.Equal(t, 10, records[1].OldQuantity)
	assert.Equal(t, 7, records[1].NewQuantity)
	assert.Equal(t, -3, records[1].Delta)
}

func TestUpdateStockGivesUpAfterRepeatedContention(t *testing.T) {
	repo := &contendedRepo{Repository: repository.Provide()}
	f := newFixtureWith(t, repo, changelogrepo.Provide())
	item := f.create(t, "A1", 10, 5)

	repo.losses = maxStockUpdateAttempts
	repo.attempts = 0
	_, err := f.svc.UpdateStock(context.Background(), "bob", idOf(item), domain.StockUpdateRequest{
		Quantity:   intPtr(1),
		ChangeType: "STOCK_OUT",
	})
	require.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, maxStockUpdateAttempts, repo.attempts)

	stored, err := f.svc.Get(context.Background(), idOf(item))
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Quantity)
	assert.Len(t, f.history(t, item.ID), 1)
	f.notifier.AssertNotCalled(t, "NotifyLowStock", mock.Anything, mock.Anything)
}
