package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/splitledger/internal/activity"
	"github.com/mmynk/splitledger/internal/api"
	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/realtime"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
	"github.com/mmynk/splitledger/internal/storage/postgres"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/logging"
)

const tokenDuration = 24 * time.Hour

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.DBDriver)

	ldgr := ledger.New(store)
	emitter := activity.NewEmitter(store)

	balances := service.NewBalanceService(store, ldgr)
	registry := realtime.NewRegistry(balances.SyncState)

	expenses := service.NewExpenseService(store, ldgr, emitter, registry)
	settlements := service.NewSettlementService(store, ldgr, emitter, registry)
	groups := service.NewGroupService(store, ldgr, emitter, registry, cfg.DefaultCurrency)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, tokenDuration)

	mux := http.NewServeMux()
	api.NewServer(expenses, settlements, balances, groups, store).Routes(mux)
	mux.Handle("GET /ws", realtime.NewHandler(registry, authorizeChannel(store)))

	protected := middleware.RequireAuth(jwtManager)(mux)

	root := http.NewServeMux()
	root.Handle("/", protected)
	root.Handle("GET /metrics", promhttp.Handler())
	root.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := ":" + cfg.Port
	slog.Info("Server starting", "address", addr)
	if err := http.ListenAndServe(addr, middleware.Logging(root)); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// openStore picks the storage backend from configuration.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return sqlite.New(cfg.DBPath)
	case "postgres":
		return postgres.New(cfg.DatabaseURL)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// authorizeChannel restricts group channels to their members. Personal
// channels only admit their owner.
func authorizeChannel(store storage.Store) realtime.AuthorizeFunc {
	return func(ctx context.Context, channelID, userID string) error {
		if owner, ok := realtime.ParseUserChannel(channelID); ok {
			if owner != userID {
				return errors.New("personal channel belongs to another user")
			}
			return nil
		}
		group, err := store.GetGroup(ctx, channelID)
		if err != nil {
			return err
		}
		if !group.HasMember(userID) {
			return errors.New("not a member of this group")
		}
		return nil
	}
}
