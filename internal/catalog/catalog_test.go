package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imrishuroy/marketplace-orderflow/internal/marketplace"
)

const createProductos = `CREATE TABLE productos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	id_publicacion TEXT,
	titulo TEXT,
	sku TEXT,
	precio DECIMAL(12,2),
	stock INTEGER,
	estado TEXT,
	ultima_actualizacion DATETIME
)`

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(createProductos).Error)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, p Product) Product {
	t.Helper()
	require.NoError(t, db.Create(&p).Error)
	return p
}

type fakeItems struct {
	items map[string]*marketplace.Item
	err   error
}

func (f *fakeItems) FetchItem(_ context.Context, itemID string) (*marketplace.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[itemID], nil
}

type fakeStock struct {
	calls map[string]int
	err   error
}

func (f *fakeStock) UpdateItemStock(_ context.Context, itemID string, quantity int) error {
	if f.err != nil {
		return f.err
	}
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[itemID] = quantity
	return nil
}

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func TestRepository_FindByListingID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	seedProduct(t, db, Product{ListingID: "MLA1", Title: "Lamp", Price: decimal.NewFromInt(100), Stock: 3, Status: "active"})

	p, err := repo.FindByListingID(context.Background(), "MLA1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Lamp", p.Title)
	assert.Equal(t, 3, p.Stock)

	missing, err := repo.FindByListingID(context.Background(), "MLA2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDriftDetector_Sync(t *testing.T) {
	t.Run("updates only changed fields", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRepository(db)
		seeded := seedProduct(t, db, Product{ListingID: "MLA1", Title: "Lamp", Price: decimal.NewFromInt(100), Stock: 3, Status: "active"})

		items := &fakeItems{items: map[string]*marketplace.Item{
			"MLA1": {ID: "MLA1", Title: "Renamed lamp", Price: 120.5, AvailableQuantity: 3, Status: "active"},
		}}
		d := NewDriftDetector(items, repo, zap.NewNop())
		d.nowFunc = func() time.Time { return fixedNow }

		res, err := d.Sync(context.Background(), "MLA1")
		require.NoError(t, err)
		assert.Equal(t, SyncUpdated, res)

		var got Product
		require.NoError(t, db.First(&got, seeded.ID).Error)
		assert.True(t, got.Price.Equal(decimal.RequireFromString("120.5")), "price %s", got.Price)
		assert.Equal(t, 3, got.Stock)
		assert.Equal(t, "Lamp", got.Title, "title is not monitored")
		require.NotNil(t, got.LastUpdated)
		assert.True(t, got.LastUpdated.Equal(fixedNow))
	})

	t.Run("unchanged writes nothing", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRepository(db)
		seeded := seedProduct(t, db, Product{ListingID: "MLA1", Price: decimal.NewFromInt(100), Stock: 3, Status: "active"})

		items := &fakeItems{items: map[string]*marketplace.Item{
			"MLA1": {ID: "MLA1", Price: 100, AvailableQuantity: 3, Status: "active"},
		}}
		res, err := NewDriftDetector(items, repo, zap.NewNop()).Sync(context.Background(), "MLA1")
		require.NoError(t, err)
		assert.Equal(t, SyncUnchanged, res)

		var got Product
		require.NoError(t, db.First(&got, seeded.ID).Error)
		assert.Nil(t, got.LastUpdated)
	})

	t.Run("untracked listing", func(t *testing.T) {
		db := setupTestDB(t)
		items := &fakeItems{items: map[string]*marketplace.Item{
			"MLA9": {ID: "MLA9", Price: 10, AvailableQuantity: 1, Status: "paused"},
		}}
		res, err := NewDriftDetector(items, NewRepository(db), zap.NewNop()).Sync(context.Background(), "MLA9")
		require.NoError(t, err)
		assert.Equal(t, SyncUntracked, res)
	})

	t.Run("fetch failure", func(t *testing.T) {
		db := setupTestDB(t)
		items := &fakeItems{err: errors.New("upstream down")}
		_, err := NewDriftDetector(items, NewRepository(db), zap.NewNop()).Sync(context.Background(), "MLA1")
		assert.Error(t, err)
	})
}

func TestDiff(t *testing.T) {
	p := &Product{Price: decimal.RequireFromString("99.90"), Stock: 2, Status: "active"}
	assert.Empty(t, Diff(p, &marketplace.Item{Price: 99.9, AvailableQuantity: 2, Status: "active"}))

	d := Diff(p, &marketplace.Item{Price: 99.9, AvailableQuantity: 0, Status: "paused"})
	assert.Equal(t, map[string]any{ColumnStock: 0, ColumnStatus: "paused"}, d)
}

type fakeListings struct {
	*fakeItems
	*fakeStock
}

func listingWith(available int) fakeListings {
	return fakeListings{
		fakeItems: &fakeItems{items: map[string]*marketplace.Item{
			"MLA1": {ID: "MLA1", AvailableQuantity: available, Status: "active"},
		}},
		fakeStock: &fakeStock{},
	}
}

func TestInventory_ApplySale(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		listing   int // available quantity after the marketplace applied the sale
		sold      int
		wantStock int
		wantPush  bool
	}{
		{"listing already decremented is not decremented again", 5, 3, 2, 3, false},
		{"listing ahead of catalog is capped", 5, 10, 2, 3, true},
		{"floors at zero", 1, 0, 4, 0, false},
		{"floors at zero and caps listing", 1, 2, 4, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			seeded := seedProduct(t, db, Product{ListingID: "MLA1", Price: decimal.NewFromInt(1), Stock: tt.stock, Status: "active"})
			listings := listingWith(tt.listing)
			inv := NewInventory(NewRepository(db), listings, zap.NewNop())
			inv.nowFunc = func() time.Time { return fixedNow }

			require.NoError(t, inv.ApplySale(context.Background(), "MLA1", tt.sold))
			pushed, ok := listings.calls["MLA1"]
			assert.Equal(t, tt.wantPush, ok)
			if tt.wantPush {
				assert.Equal(t, tt.wantStock, pushed)
			}

			var got Product
			require.NoError(t, db.First(&got, seeded.ID).Error)
			assert.Equal(t, tt.wantStock, got.Stock)
		})
	}

	t.Run("untracked listing untouched", func(t *testing.T) {
		db := setupTestDB(t)
		listings := listingWith(3)
		inv := NewInventory(NewRepository(db), listings, zap.NewNop())
		require.NoError(t, inv.ApplySale(context.Background(), "MLA404", 1))
		assert.Empty(t, listings.calls)
	})

	t.Run("marketplace failure leaves catalog alone", func(t *testing.T) {
		db := setupTestDB(t)
		seeded := seedProduct(t, db, Product{ListingID: "MLA1", Price: decimal.NewFromInt(1), Stock: 5, Status: "active"})
		listings := listingWith(10)
		listings.fakeStock.err = errors.New("403")
		inv := NewInventory(NewRepository(db), listings, zap.NewNop())
		assert.Error(t, inv.ApplySale(context.Background(), "MLA1", 1))

		var got Product
		require.NoError(t, db.First(&got, seeded.ID).Error)
		assert.Equal(t, 5, got.Stock)
	})

	t.Run("listing read failure leaves catalog alone", func(t *testing.T) {
		db := setupTestDB(t)
		seeded := seedProduct(t, db, Product{ListingID: "MLA1", Price: decimal.NewFromInt(1), Stock: 5, Status: "active"})
		listings := fakeListings{fakeItems: &fakeItems{err: errors.New("upstream down")}, fakeStock: &fakeStock{}}
		inv := NewInventory(NewRepository(db), listings, zap.NewNop())
		assert.Error(t, inv.ApplySale(context.Background(), "MLA1", 1))
		assert.Empty(t, listings.calls)

		var got Product
		require.NoError(t, db.First(&got, seeded.ID).Error)
		assert.Equal(t, 5, got.Stock)
	})
}

func TestRepository_Postgres_NotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	dialector := postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"})
	db, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "productos" WHERE id_publicacion = $1`)).
		WithArgs("MLA404", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "id_publicacion"}))

	p, err := NewRepository(db).FindByListingID(context.Background(), "MLA404")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}
