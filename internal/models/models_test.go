package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReceipt(t *testing.T) {
	t.Run("rejects a negative total", func(t *testing.T) {
		_, err := NewReceipt(time.Now(), -1, nil)
		assert.ErrorIs(t, err, ErrNegativeAmount)
	})

	t.Run("normalizes a blank merchant to nil", func(t *testing.T) {
		blank := "   "
		r, err := NewReceipt(time.Now(), 100, &blank)
		require.NoError(t, err)
		assert.Nil(t, r.Merchant)
	})

	t.Run("starts pending without a cloud id", func(t *testing.T) {
		r, err := NewReceipt(time.Now(), 100, nil)
		require.NoError(t, err)
		assert.True(t, r.Sync.Pending)
		assert.False(t, r.Sync.Synced())
		assert.NotEmpty(t, r.Sync.SyncID)
	})
}

func TestNewItem(t *testing.T) {
	tests := []struct {
		name     string
		itemName string
		quantity int
		price    int64
		wantErr  error
	}{
		{"valid", "Milk", 2, 300, nil},
		{"empty name", "  ", 1, 100, ErrEmptyItemName},
		{"negative quantity", "Milk", -1, 100, ErrInvalidQuantity},
		{"negative price", "Milk", 1, -100, ErrNegativeAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewItem(tt.itemName, tt.quantity, tt.price, time.Now(), nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("zero quantity defaults to one", func(t *testing.T) {
		it, err := NewItem("Milk", 0, 100, time.Now(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, it.Quantity)
	})
}

func TestItem_Remote(t *testing.T) {
	it, err := NewItem("Milk", 1, 100, time.Now(), nil)
	require.NoError(t, err)

	assert.Nil(t, it.Remote("").ReceiptID)

	remote := it.Remote("rc-1")
	require.NotNil(t, remote.ReceiptID)
	assert.Equal(t, "rc-1", *remote.ReceiptID)
}

func TestSyncQueueItem_DeleteCloudID(t *testing.T) {
	payload, err := json.Marshal(DeletePayload{CloudID: "c-9"})
	require.NoError(t, err)

	assert.Equal(t, "c-9", SyncQueueItem{Payload: payload}.DeleteCloudID())
	assert.Empty(t, SyncQueueItem{}.DeleteCloudID())
	assert.Empty(t, SyncQueueItem{Payload: []byte("not json")}.DeleteCloudID())
}

func TestSettingsUpdate_Apply(t *testing.T) {
	s := DefaultSettings()

	SettingsUpdate{}.Apply(s)
	assert.Equal(t, int64(DefaultWeeklyBudgetCents), s.WeeklyBudgetCents)

	budget := int64(300_00)
	SettingsUpdate{WeeklyBudgetCents: &budget}.Apply(s)
	assert.Equal(t, budget, s.WeeklyBudgetCents)
}
