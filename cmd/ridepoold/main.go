// README: Entry point; loads config, wires services, starts HTTP server and
// the background dispatch ticker.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/events"
	httptransport "ridepool/internal/http"
	"ridepool/internal/infra"
	"ridepool/internal/logging"
	"ridepool/internal/maps"
	"ridepool/internal/modules/assignment"
	"ridepool/internal/modules/dispatch"
	"ridepool/internal/modules/driver"
	"ridepool/internal/modules/location"
	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/passenger"
	"ridepool/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	if cfg.Maps.APIKey == "" {
		log.Fatal("GOOGLE_MAPS_API_KEY is required")
	}
	oracle, err := maps.NewRouteService(cfg.Maps.APIKey)
	if err != nil {
		log.Fatalf("maps init: %v", err)
	}

	passengerStore := passenger.NewStore(dbPool)
	driverStore := driver.NewStore(dbPool)
	tripStore := trip.NewStore(dbPool)
	assignmentStore := assignment.NewStore(dbPool)
	assignmentSvc := assignment.NewService(dbPool, assignmentStore, passengerStore, driverStore, tripStore)

	matchingStore := matching.NewStore(redisClient)

	engine := dispatch.NewEngine(logger, cfg.Dispatch, oracle, driverStore, passengerStore, assignmentSvc).
		WithCandidatePool(matchingStore).
		WithEnhancerStore(assignmentSvc)

	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		engine = engine.WithEvents(producer)
	}

	locationSvc := location.NewService(location.NewStore(dbPool), matchingStore)

	router := httptransport.NewRouter(logger, engine, assignmentSvc, locationSvc)
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go runDispatchTicker(ctx, logger, cfg.Dispatch.TickInterval, engine, matchingStore, driverStore)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// runDispatchTicker runs a planning round every interval. The Redis lock
// keeps concurrent instances from planning over the same snapshot; an
// instance that misses the lock just skips its tick.
func runDispatchTicker(ctx context.Context, logger *slog.Logger, interval time.Duration,
	engine *dispatch.Engine, pool *matching.Store, drivers *driver.Store) {
	owner := lockOwner()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshPool(ctx, logger, pool, drivers)

			ok, err := pool.AcquireCycleLock(ctx, owner)
			if err != nil {
				logger.Warn("cycle lock unavailable", slog.Any("error", err))
				continue
			}
			if !ok {
				continue
			}
			if _, err := engine.RunDispatchCycle(ctx, nil); err != nil {
				logger.Error("dispatch cycle failed", slog.Any("error", err))
			}
			if err := pool.ReleaseCycleLock(ctx, owner); err != nil {
				logger.Warn("cycle lock release failed", slog.Any("error", err))
			}
		}
	}
}

// refreshPool re-indexes available drivers before each round so the GEO
// prefilter sees current positions.
func refreshPool(ctx context.Context, logger *slog.Logger, pool *matching.Store, drivers *driver.Store) {
	list, err := drivers.ListAvailable(ctx)
	if err != nil {
		logger.Warn("pool refresh failed", slog.Any("error", err))
		return
	}
	for _, d := range list {
		if err := pool.AddAvailableDriver(ctx, d.ID, d.Location); err != nil {
			logger.Warn("pool add failed", slog.String("driver", string(d.ID)), slog.Any("error", err))
			return
		}
	}
}

func lockOwner() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
