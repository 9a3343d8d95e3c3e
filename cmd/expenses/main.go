package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MHMDHIDR/expenses-tracker/internal/config"
	"github.com/MHMDHIDR/expenses-tracker/internal/models"
	"github.com/MHMDHIDR/expenses-tracker/internal/observability"
	"github.com/MHMDHIDR/expenses-tracker/internal/remote"
	"github.com/MHMDHIDR/expenses-tracker/internal/server"
	"github.com/MHMDHIDR/expenses-tracker/internal/store"
	"github.com/MHMDHIDR/expenses-tracker/internal/sync"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "expenses",
	Short: "Offline-first expenses tracker with cloud sync",
}

// openStore opens the local durable store from configuration. The caller
// must close the returned database.
func openStore(cfg *config.Config) (*store.Store, func() error, error) {
	db, err := store.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening local store: %w", err)
	}
	return store.New(db), db.Close, nil
}

func engineOptions(cfg *config.Config) sync.Options {
	return sync.Options{
		PeriodicInterval:       time.Duration(cfg.Sync.PeriodicSeconds) * time.Second,
		DebounceWindow:         time.Duration(cfg.Sync.DebounceMillis) * time.Millisecond,
		MinSyncInterval:        time.Duration(cfg.Sync.MinIntervalSeconds) * time.Second,
		MaxRetryCount:          cfg.Sync.MaxRetryCount,
		MaxConsecutiveFailures: cfg.Sync.MaxConsecutiveFailures,
	}
}

// parseAmount converts a decimal money string like "12.34" to cents.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	whole, frac, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	total := dollars*100 + cents
	if neg {
		total = -total
	}
	return total, nil
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote store server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		telemetry, err := observability.Initialize(ctx, observability.NewConfig("expenses-tracker", "1.0.0"))
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			telemetry.Shutdown(shutdownCtx)
		}()

		srv, err := server.New(cfg)
		if err != nil {
			return fmt.Errorf("initializing server: %w", err)
		}
		return srv.Run(ctx)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine as a daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)
		conn := sync.NewProbeConnectivity(client, time.Duration(cfg.Sync.ProbeIntervalSeconds)*time.Second)
		conn.Start(ctx)
		defer conn.Stop()

		engine := sync.New(st, client, conn, engineOptions(cfg))
		if metrics, err := observability.NewSyncMetrics(); err == nil {
			engine.SetMetrics(metrics)
		}
		unsubscribe := engine.Subscribe(func(ev sync.Event, status models.SyncStatus) {
			if ev != sync.EventStatusChange {
				return
			}
			line := fmt.Sprintf("online=%v syncing=%v pending=%d", status.Online, status.Syncing, status.PendingCount)
			if status.LastError != "" {
				line += " error=" + status.LastError
			}
			observability.Info(line)
		})
		defer unsubscribe()

		engine.Start(ctx)
		defer engine.Stop()

		<-ctx.Done()
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes and exit; --full also pulls and reconciles",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)
		ctx := context.Background()
		if err := client.Health(ctx); err != nil {
			return fmt.Errorf("remote store unreachable: %w", err)
		}

		engine := sync.New(st, client, sync.NewManualConnectivity(true), engineOptions(cfg))
		var ok bool
		if full {
			ok = engine.FullSync(ctx)
		} else {
			ok = engine.Sync(ctx)
		}
		status := engine.Status()
		if !ok && status.LastError != "" {
			return fmt.Errorf("sync failed: %s", status.LastError)
		}
		fmt.Printf("Synced. Pending changes: %d\n", status.PendingCount)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		pending, err := st.PendingCount(ctx)
		if err != nil {
			return err
		}
		receipts, err := st.ListReceipts(ctx)
		if err != nil {
			return err
		}
		items, err := st.ListItems(ctx)
		if err != nil {
			return err
		}
		settings, err := st.GetSettings(ctx)
		if err != nil {
			return err
		}

		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)
		online := client.Health(ctx) == nil

		fmt.Printf("Remote:          %s (online=%v)\n", cfg.Remote.BaseURL, online)
		fmt.Printf("Receipts:        %d\n", len(receipts))
		fmt.Printf("Items:           %d\n", len(items))
		fmt.Printf("Pending changes: %d\n", pending)
		fmt.Printf("Weekly budget:   %s\n", formatAmount(settings.WeeklyBudgetCents))
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add records to the local store",
}

var addReceiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Add a receipt",
	RunE: func(cmd *cobra.Command, args []string) error {
		total, _ := cmd.Flags().GetString("total")
		merchant, _ := cmd.Flags().GetString("merchant")
		dateStr, _ := cmd.Flags().GetString("date")

		cents, err := parseAmount(total)
		if err != nil {
			return err
		}
		date := time.Now().UTC()
		if dateStr != "" {
			date, err = time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", dateStr)
			}
		}
		var merchantPtr *string
		if merchant != "" {
			merchantPtr = &merchant
		}
		receipt, err := models.NewReceipt(date, cents, merchantPtr)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		localID, err := st.AddReceipt(context.Background(), receipt)
		if err != nil {
			return err
		}
		fmt.Printf("Added receipt #%d (%s)\n", localID, formatAmount(cents))
		return nil
	},
}

var addItemCmd = &cobra.Command{
	Use:   "item NAME",
	Short: "Add an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, _ := cmd.Flags().GetString("price")
		quantity, _ := cmd.Flags().GetInt("quantity")
		receiptID, _ := cmd.Flags().GetInt64("receipt")

		cents, err := parseAmount(price)
		if err != nil {
			return err
		}
		var parent *int64
		if receiptID > 0 {
			parent = &receiptID
		}
		item, err := models.NewItem(args[0], quantity, cents, time.Now().UTC(), parent)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		localID, err := st.AddItem(context.Background(), item)
		if err != nil {
			return err
		}
		fmt.Printf("Added item #%d (%s x%d)\n", localID, formatAmount(cents), item.Quantity)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List local records",
}

var listReceiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "List receipts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		receipts, err := st.ListReceipts(context.Background())
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			fmt.Println("No receipts.")
			return nil
		}
		for _, r := range receipts {
			merchant := ""
			if r.Merchant != nil {
				merchant = "  " + *r.Merchant
			}
			synced := " "
			if r.Sync.Synced() {
				synced = "S"
			}
			fmt.Printf("#%-4d %s  %s  %10s%s\n",
				r.LocalID, synced, r.Date.Format("2006-01-02"), formatAmount(r.TotalCents), merchant)
		}
		return nil
	},
}

var listItemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List items",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		items, err := st.ListItems(context.Background())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No items.")
			return nil
		}
		for _, it := range items {
			receipt := ""
			if it.ReceiptLocalID != nil {
				receipt = fmt.Sprintf("  (receipt #%d)", *it.ReceiptLocalID)
			}
			synced := " "
			if it.Sync.Synced() {
				synced = "S"
			}
			fmt.Printf("#%-4d %s  %s  %10s x%-3d %s%s\n",
				it.LocalID, synced, it.Date.Format("2006-01-02"),
				formatAmount(it.UnitPriceCents), it.Quantity, it.Name, receipt)
		}
		return nil
	},
}

var budgetCmd = &cobra.Command{
	Use:   "budget [AMOUNT]",
	Short: "Show or set the weekly budget",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		st, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		if len(args) == 0 {
			settings, err := st.GetSettings(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Weekly budget: %s\n", formatAmount(settings.WeeklyBudgetCents))
			return nil
		}

		cents, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		if cents < 0 {
			return models.ErrNegativeAmount
		}
		settings, err := st.UpdateSettings(ctx, models.SettingsUpdate{WeeklyBudgetCents: &cents})
		if err != nil {
			return err
		}
		fmt.Printf("Weekly budget set to %s\n", formatAmount(settings.WeeklyBudgetCents))
		return nil
	},
}

func init() {
	addReceiptCmd.Flags().String("total", "", "Total amount, e.g. 12.34")
	addReceiptCmd.Flags().String("merchant", "", "Merchant name")
	addReceiptCmd.Flags().String("date", "", "Purchase date (YYYY-MM-DD, default today)")
	addReceiptCmd.MarkFlagRequired("total")

	addItemCmd.Flags().String("price", "", "Unit price, e.g. 2.50")
	addItemCmd.Flags().Int("quantity", 1, "Quantity")
	addItemCmd.Flags().Int64("receipt", 0, "Local id of the parent receipt")
	addItemCmd.MarkFlagRequired("price")

	syncCmd.Flags().Bool("full", false, "Run the full three-phase reconciliation instead of a queue push")

	addCmd.AddCommand(addReceiptCmd)
	addCmd.AddCommand(addItemCmd)

	listCmd.AddCommand(listReceiptsCmd)
	listCmd.AddCommand(listItemsCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(budgetCmd)
}
