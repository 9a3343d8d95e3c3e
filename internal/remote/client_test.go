package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

func TestClient_ErrorNormalization(t *testing.T) {
	ctx := context.Background()

	t.Run("non-2xx carries the server message verbatim", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Receipt not found."})
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, "").GetReceipt(ctx, "missing")
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "Receipt not found.", apiErr.Error())
		assert.False(t, IsNetworkError(err))
	})

	t.Run("unparseable error body falls back to the status code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer srv.Close()

		err := NewClient(srv.URL, "").Health(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "request failed with status 502", apiErr.Message)
	})

	t.Run("unreachable host is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		err := NewClient(srv.URL, "").Health(ctx)
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))

		var ne *NetworkError
		require.ErrorAs(t, err, &ne)
		assert.NotNil(t, ne.Unwrap())
	})
}

func TestClient_SendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "secret").Health(context.Background()))
	assert.Equal(t, "secret", gotKey)
}

func TestClient_ReceiptRoundTrips(t *testing.T) {
	ctx := context.Background()
	merchant := "Grocer"
	stored := models.RemoteReceipt{
		ID:         "rc-1",
		Date:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		TotalCents: 1500,
		Merchant:   &merchant,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/receipts":
			var in models.RemoteReceipt
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			in.ID = "rc-1"
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(in)
		case r.Method == http.MethodGet && r.URL.Path == "/receipts":
			json.NewEncoder(w).Encode([]models.RemoteReceipt{stored})
		case r.Method == http.MethodPatch && r.URL.Path == "/receipts/rc-1":
			var patch models.ReceiptPatch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			out := stored
			if patch.TotalCents != nil {
				out.TotalCents = *patch.TotalCents
			}
			json.NewEncoder(w).Encode(out)
		case r.Method == http.MethodDelete && r.URL.Path == "/receipts/rc-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")

	created, err := c.CreateReceipt(ctx, models.RemoteReceipt{Date: stored.Date, TotalCents: 1500, Merchant: &merchant})
	require.NoError(t, err)
	assert.Equal(t, "rc-1", created.ID)

	list, err := c.ListReceipts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1500), list[0].TotalCents)

	total := int64(1750)
	updated, err := c.UpdateReceipt(ctx, "rc-1", models.ReceiptPatch{TotalCents: &total})
	require.NoError(t, err)
	assert.Equal(t, total, updated.TotalCents)

	require.NoError(t, c.DeleteReceipt(ctx, "rc-1"))
}

func TestClient_FetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/all", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.SyncSnapshot{
			Receipts: []models.RemoteReceipt{{ID: "rc-1", TotalCents: 100}},
			Items:    []models.RemoteItem{{ID: "it-1", Name: "Milk", Quantity: 1, UnitPriceCents: 100}},
			Settings: &models.RemoteSettings{ID: "st-1", WeeklyBudgetCents: 5000},
		})
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL, "").FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Receipts, 1)
	assert.Len(t, snap.Items, 1)
	require.NotNil(t, snap.Settings)
	assert.Equal(t, int64(5000), snap.Settings.WeeklyBudgetCents)
}
