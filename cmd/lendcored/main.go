package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendcore/auction"
	"lendcore/config"
	"lendcore/observability/logging"
	"lendcore/oracle"
	"lendcore/pool"
	"lendcore/token"
)

const ownerEnv = "LENDCORE_OWNER"

func main() {
	configFile := flag.String("config", "./lendcore.toml", "Path to the configuration file")
	listenAddr := flag.String("listen", ":9464", "Metrics and health listen address")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debugFlag {
		level = slog.LevelDebug
	}
	logger := logging.Setup("lendcored", level)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	owner, err := resolveOwner(os.Getenv(ownerEnv))
	if err != nil {
		logger.Error("failed to resolve owner principal", slog.Any("error", err))
		os.Exit(1)
	}

	pools, liq, err := buildEngine(cfg, owner, logger)
	if err != nil {
		logger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("engine ready",
		slog.Int("markets", len(pools)),
		slog.String("liquidator", liq.Addr().Hex()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{Addr: *listenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", *listenAddr))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
}

// buildEngine wires one pool per configured market, all registered with a
// single liquidator, against in-memory token ledgers and manual price feeds.
// External token and feed integrations replace these bindings in a real
// deployment; the engine itself only sees the interfaces.
func buildEngine(cfg *config.Config, owner tokenOwner, logger *slog.Logger) (map[string]*pool.Pool, *auction.Liquidator, error) {
	liq, err := auction.NewLiquidator(cfg.Auction.Params())
	if err != nil {
		return nil, nil, err
	}
	liq.SetLogger(logger)

	px := oracle.New()
	px.SetMaxDeviationBps(cfg.Oracle.MaxDeviationBps)
	px.SetLogger(logger)

	pools := make(map[string]*pool.Pool, len(cfg.Markets))
	for _, m := range cfg.Markets {
		borrow := token.NewLedger(m.BorrowSymbol, m.BorrowDecimals)
		collateral := token.NewLedger(m.CollateralSymbol, m.CollateralDecimals)
		receipt := token.NewReceiptLedger("lc"+m.BorrowSymbol, pool.DeriveAddr(m.ID))

		model, err := m.InterestModel()
		if err != nil {
			return nil, nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		p, err := pool.New(m.ID, owner.addr,
			pool.Asset{Token: borrow, Addr: tokenAddr(m.ID, m.BorrowSymbol)},
			pool.Asset{Token: collateral, Addr: tokenAddr(m.ID, m.CollateralSymbol)},
			receipt, px, model, m.RiskParameters())
		if err != nil {
			return nil, nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		p.SetLogger(logger)
		if err := p.SetLiquidator(owner.addr, liq.Addr()); err != nil {
			return nil, nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		caps, err := m.BorrowCaps()
		if err != nil {
			return nil, nil, err
		}
		if err := p.SetBorrowCaps(owner.addr, caps); err != nil {
			return nil, nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		if err := p.SetPauses(owner.addr, m.Pauses()); err != nil {
			return nil, nil, fmt.Errorf("market %s: %w", m.ID, err)
		}
		liq.RegisterPool(p)
		pools[m.ID] = p
	}
	return pools, liq, nil
}
