package sync

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MHMDHIDR/expenses-tracker/internal/config"
	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/remote"
	"github.com/MHMDHIDR/expenses-tracker/internal/server"
	"github.com/MHMDHIDR/expenses-tracker/internal/store"
)

// startFacade runs the real server facade over a temporary sqlite database
// and returns a client pointed at it.
func startFacade(t *testing.T) *remote.Client {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DatabasePath: filepath.Join(dir, "facade.db"),
		ImageStorage: config.ImageStorage{
			BasePath:          filepath.Join(dir, "images"),
			MaxFileSizeMB:     5,
			AllowedExtensions: []string{".jpg"},
		},
		Security: config.Security{
			APIKey:       "integration-test-key",
			APIKeyHeader: "X-API-Key",
		},
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return remote.NewClient(ts.URL, "integration-test-key")
}

func TestEngine_AgainstRealFacade(t *testing.T) {
	ctx := context.Background()
	client := startFacade(t)
	require.NoError(t, client.Health(ctx))

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	engine := New(st, client, NewManualConnectivity(true), testOptions())

	// Local receipt with one item, pushed through queue replay.
	merchant := "Integration Mart"
	r, err := models.NewReceipt(time.Now().UTC(), 2350, &merchant)
	require.NoError(t, err)
	receiptID, err := st.AddReceipt(ctx, r)
	require.NoError(t, err)
	it, err := models.NewItem("Coffee", 1, 2350, time.Now().UTC(), &receiptID)
	require.NoError(t, err)
	_, err = st.AddItem(ctx, it)
	require.NoError(t, err)

	require.True(t, engine.Sync(ctx))

	remoteReceipts, err := client.ListReceipts(ctx)
	require.NoError(t, err)
	require.Len(t, remoteReceipts, 1)
	assert.Equal(t, int64(2350), remoteReceipts[0].TotalCents)

	remoteItems, err := client.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, remoteItems, 1)
	require.NotNil(t, remoteItems[0].ReceiptID)
	assert.Equal(t, remoteReceipts[0].ID, *remoteItems[0].ReceiptID)

	// A change made by another client lands locally via full sync.
	total := int64(9999)
	_, err = client.UpdateReceipt(ctx, remoteReceipts[0].ID, models.ReceiptPatch{TotalCents: &total})
	require.NoError(t, err)

	require.True(t, engine.FullSync(ctx))

	got, err := st.GetReceipt(ctx, receiptID)
	require.NoError(t, err)
	assert.Equal(t, total, got.TotalCents)

	// A remote delete propagates on the next full sync.
	require.NoError(t, client.DeleteReceipt(ctx, remoteReceipts[0].ID))
	require.True(t, engine.FullSync(ctx))

	_, err = st.GetReceipt(ctx, receiptID)
	assert.ErrorIs(t, err, models.ErrReceiptNotFound)

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEngine_ReceiptDeleteRemovesItemsEverywhere(t *testing.T) {
	ctx := context.Background()
	client := startFacade(t)

	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	engine := New(st, client, NewManualConnectivity(true), testOptions())

	merchant := "Corner Shop"
	r, err := models.NewReceipt(time.Now().UTC(), 1800, &merchant)
	require.NoError(t, err)
	receiptID, err := st.AddReceipt(ctx, r)
	require.NoError(t, err)
	it, err := models.NewItem("Bread", 2, 900, time.Now().UTC(), &receiptID)
	require.NoError(t, err)
	itemID, err := st.AddItem(ctx, it)
	require.NoError(t, err)

	require.True(t, engine.Sync(ctx))

	// Deleting the receipt cascades locally and queues only the parent
	// delete; the facade must drop the items with it, or the next pull
	// would bring the user's deleted items back.
	require.NoError(t, st.DeleteReceipt(ctx, receiptID))
	require.True(t, engine.Sync(ctx))

	remoteReceipts, err := client.ListReceipts(ctx)
	require.NoError(t, err)
	assert.Empty(t, remoteReceipts)

	remoteItems, err := client.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, remoteItems)

	require.True(t, engine.FullSync(ctx))

	_, err = st.GetItem(ctx, itemID)
	assert.ErrorIs(t, err, models.ErrItemNotFound)
	localItems, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, localItems)
}
