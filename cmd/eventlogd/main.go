// Command eventlogd runs the Event Log service: it applies schema
// migrations, then starts the per-category subscriber registries, finders,
// senders and dispatch loops, the zombie cleaner, and the HTTP endpoint,
// shutting all of it down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/renku-io/event-log/internal/clock"
	"github.com/renku-io/event-log/internal/config"
	"github.com/renku-io/event-log/internal/domain"
	"github.com/renku-io/event-log/internal/eventbus"
	"github.com/renku-io/event-log/internal/eventdb"
	"github.com/renku-io/event-log/internal/finder"
	"github.com/renku-io/event-log/internal/gauges"
	"github.com/renku-io/event-log/internal/httpapi"
	"github.com/renku-io/event-log/internal/migrations"
	"github.com/renku-io/event-log/internal/registry"
	"github.com/renku-io/event-log/internal/sender"
	"github.com/renku-io/event-log/internal/statuschange"
	"github.com/renku-io/event-log/internal/zombie"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	log := slog.Default()

	cfg, err := config.Load(filepath.Join(*configDir, ".env"))
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.DatabaseURL)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := migrations.Apply(ctx, db, log); err != nil {
		log.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	store := eventdb.New(db)
	metrics := gauges.NewPrometheus()
	changer := statuschange.New(store, metrics, log)
	realClock := clock.Real{}

	categories := []domain.Category{
		domain.CategoryAwaitingGeneration,
		domain.CategoryAwaitingTransformation,
		domain.CategoryStatusChange,
	}

	registries := make(map[domain.Category]*registry.Registry, len(categories))
	senders := make(map[domain.Category]*sender.Sender, len(categories))
	for _, category := range categories {
		reg := registry.New(category, cfg.Registry.BusySleep, realClock, log)
		registries[category] = reg

		var deliveryID int64 = 1
		for _, url := range cfg.Sender.BootstrapEndpoints[string(category)] {
			reg.Add(domain.Subscriber{DeliveryID: deliveryID, DeliveryURL: url, SourceURL: url})
			deliveryID++
		}

		senders[category] = sender.New(cfg.Sender.RequestTimeout)
	}

	notifier := eventbus.NewNotifier(registries[domain.CategoryStatusChange], senders[domain.CategoryStatusChange], log)

	consumers := map[domain.Category]*httpapi.Consumer{
		domain.CategoryAwaitingGeneration: httpapi.NewConsumer(changer, map[string]statuschange.Updater{
			"ToFailure":      statuschange.NewToFailureUpdater(cfg.Finder.RetryInterval),
			"RollbackToNew":  statuschange.RollbackToNewUpdater{},
		}, cfg.Finder.PerCategoryConcurrencyLimit),
		domain.CategoryAwaitingTransformation: httpapi.NewConsumer(changer, map[string]statuschange.Updater{
			"ToTriplesGenerated":         statuschange.ToTriplesGeneratedUpdater{},
			"ToTriplesStore":             statuschange.ToTriplesStoreUpdater{},
			"ToFailure":                  statuschange.NewToFailureUpdater(cfg.Finder.RetryInterval),
			"RollbackToTriplesGenerated": statuschange.RollbackToTriplesGeneratedUpdater{},
			"RedoProjectTransformation":  statuschange.RedoProjectTransformationUpdater{},
		}, cfg.Finder.PerCategoryConcurrencyLimit),
		domain.CategoryStatusChange: httpapi.NewConsumer(changer, map[string]statuschange.Updater{
			"ToAwaitingDeletion":         statuschange.ToAwaitingDeletionUpdater{},
			"RollbackToAwaitingDeletion": statuschange.RollbackToAwaitingDeletionUpdater{},
			"ProjectEventsToNew":         statuschange.ProjectEventsToNewUpdater{},
			"AllEventsToNew": statuschange.AllEventsToNewUpdater{
				Publish: notifier.Publish,
				Log:     log,
			},
		}, cfg.Finder.PerCategoryConcurrencyLimit),
	}

	var wg sync.WaitGroup

	if err := zombie.CleanupStartupZombies(ctx, store, cfg.Finder.ZombieThreshold, realClock, log); err != nil {
		log.Error("startup zombie cleanup failed", "error", err)
	}
	zombieCleaner := zombie.New(store, cfg.Finder.ZombieThreshold, realClock, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		zombieCleaner.Run(ctx, cfg.Finder.ZombieScanInterval)
	}()

	dispatchCategories := []domain.Category{domain.CategoryAwaitingGeneration, domain.CategoryAwaitingTransformation}
	for _, category := range dispatchCategories {
		reg := registries[category]
		wg.Add(1)
		go func(category domain.Category, reg *registry.Registry) {
			defer wg.Done()
			reg.Run(ctx, cfg.Registry.CheckupInterval)
		}(category, reg)

		f := finder.New(category, store, finder.LeastOccupiedFirst{}, cfg.Finder.ProjectsFetchingLimit, realClock, log)
		dispatcher := eventbus.New(category, store, f, reg, senders[category], metrics, cfg.Finder.RetryInterval, realClock, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		registries[domain.CategoryStatusChange].Run(ctx, cfg.Registry.CheckupInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reportSubscriberPools(ctx, registries, metrics, cfg.Registry.CheckupInterval)
	}()

	server := httpapi.NewServer(cfg.HTTP.GinMode, ":"+cfg.HTTP.Port, store, consumers, metrics, log)
	log.Info("starting http server", "port", cfg.HTTP.Port)
	if err := server.Run(ctx); err != nil {
		log.Error("http server error", "error", err)
	}

	wg.Wait()
	log.Info("shutdown complete")
}

// reportSubscriberPools periodically mirrors each category registry's size
// and declared capacity into the metrics gauges.
func reportSubscriberPools(ctx context.Context, registries map[domain.Category]*registry.Registry, metrics gauges.GaugesUpdater, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for category, reg := range registries {
				count := reg.SubscriberCount()
				if total, ok := reg.TotalCapacity(); ok {
					metrics.RecordSubscriberPool(category, count, &total)
				} else {
					metrics.RecordSubscriberPool(category, count, nil)
				}
			}
		}
	}
}
