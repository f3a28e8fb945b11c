package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/ledgercache"
	"github.com/unkn0wn-root/ledgercache/codec"
	"github.com/unkn0wn-root/ledgercache/counter"
	"github.com/unkn0wn-root/ledgercache/genstore"
	asynchook "github.com/unkn0wn-root/ledgercache/hooks/async"
	"github.com/unkn0wn-root/ledgercache/hooks/prom"
	"github.com/unkn0wn-root/ledgercache/internal/config"
	"github.com/unkn0wn-root/ledgercache/ledger"
	"github.com/unkn0wn-root/ledgercache/ledger/rpc"
	logruslog "github.com/unkn0wn-root/ledgercache/log/logrus"
	slogl "github.com/unkn0wn-root/ledgercache/log/slog"
	zaplog "github.com/unkn0wn-root/ledgercache/log/zap"
	"github.com/unkn0wn-root/ledgercache/provider/bigcache"
	redisprov "github.com/unkn0wn-root/ledgercache/provider/redis"
	"github.com/unkn0wn-root/ledgercache/provider/ristretto"
	"github.com/unkn0wn-root/ledgercache/sloghooks"
)

type app struct {
	key     string
	cache   ledgercache.Cache
	invoker *counter.Invoker
	log     ledgercache.Logger

	hooks   *asynchook.Hooks
	metrics *http.Server
	flush   func()
}

func newApp(ctx context.Context, cfg *config.Config, needsSigner bool) (*app, error) {
	log, sl, flush, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{key: cfg.Seed, log: log, flush: flush}

	commitment := ledger.Commitment(cfg.Commitment)
	client, err := rpc.New(cfg.Endpoint,
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		rpc.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		rpc.WithPollInterval(cfg.PollInterval),
		rpc.WithPreflightCommitment(commitment),
		rpc.WithSkipPreflight(cfg.SkipPreflight),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	if err := a.initHooks(cfg, sl); err != nil {
		a.close()
		return nil, err
	}

	snaps, err := newSnapshots(ctx, cfg.Snapshot)
	if err != nil {
		a.close()
		return nil, err
	}

	var hooks ledgercache.Hooks
	if a.hooks != nil {
		hooks = a.hooks
	}
	cache, err := ledgercache.New(ledgercache.Options{
		ProgramID:    cfg.Program(),
		Reader:       client,
		Commitment:   commitment,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
		Hooks:        hooks,
		Snapshots:    snaps,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.cache = cache

	if needsSigner {
		if cfg.Keypair == "" {
			a.close()
			return nil, errors.New("Keypair is required to submit transactions")
		}
		signer, err := ledger.LoadKeypairFile(cfg.Keypair)
		if err != nil {
			a.close()
			return nil, err
		}
		a.invoker, err = counter.NewInvoker(counter.Options{
			ProgramID:  cfg.Program(),
			Key:        a.key,
			Cache:      cache,
			Writer:     client,
			Signer:     signer,
			Commitment: commitment,
			Logger:     log,
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// close tears down in dependency order: cache, hooks, metrics, logger.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.cache != nil {
		if err := a.cache.Close(ctx); err != nil {
			a.log.Warn("cache close failed", ledgercache.Fields{"err": err})
		}
	}
	if a.hooks != nil {
		a.hooks.Close()
	}
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.flush != nil {
		a.flush()
	}
}

func (a *app) initHooks(cfg *config.Config, sl *slog.Logger) error {
	var hs []ledgercache.Hooks
	if sl != nil {
		hs = append(hs, sloghooks.New(sl, sloghooks.Options{SelfHealEvery: 10, DegradedEvery: 10}))
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		ph, err := prom.New(reg, "")
		if err != nil {
			return err
		}
		hs = append(hs, ph)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		a.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server failed", ledgercache.Fields{"addr": cfg.MetricsAddr, "err": err})
			}
		}()
	}
	if len(hs) > 0 {
		a.hooks = asynchook.New(ledgercache.MultiHooks(hs...), 1, 1024)
	}
	return nil
}

func newLogger(cfg config.LogConfig) (ledgercache.Logger, *slog.Logger, func(), error) {
	switch cfg.Backend {
	case "zap":
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, nil, nil, err
		}
		zc := zap.NewProductionConfig()
		zc.Level = lvl
		zc.OutputPaths = []string{"stderr"}
		l, err := zc.Build()
		if err != nil {
			return nil, nil, nil, err
		}
		return zaplog.New(l), nil, func() { _ = l.Sync() }, nil
	case "logrus":
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(lvl)
		l.SetFormatter(&logrus.JSONFormatter{})
		return logruslog.New(l), nil, func() {}, nil
	case "slog":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, nil, err
		}
		l := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})).With("component", "ledgercache")
		return slogl.Logger{L: l}, l, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

func newSnapshots(ctx context.Context, cfg config.SnapshotConfig) (*ledgercache.SnapshotOptions, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	cd, err := ledgercache.SnapshotCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.MaxBytes > 0 {
		cd = codec.Limit[ledgercache.Snapshot]{Inner: cd, MaxDecode: cfg.MaxBytes}
	}
	opts := &ledgercache.SnapshotOptions{Namespace: cfg.Namespace, Codec: cd, TTL: cfg.TTL}

	switch cfg.Provider {
	case "ristretto":
		p, err := ristretto.New(ristretto.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts.Provider = p
	case "bigcache":
		life := cfg.TTL
		if life <= 0 {
			life = 10 * time.Minute
		}
		p, err := bigcache.New(ctx, bigcache.Config{LifeWindow: life, HardMaxCacheSizeMB: 64})
		if err != nil {
			return nil, err
		}
		opts.Provider = p
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		p, err := redisprov.New(redisprov.Config{Client: rdb, CloseClient: true})
		if err != nil {
			return nil, err
		}
		opts.Provider = p
		opts.GenStore = genstore.NewRedisGenStore(rdb, cfg.Namespace, 0)
	default:
		return nil, fmt.Errorf("unknown snapshot provider %q", cfg.Provider)
	}
	return opts, nil
}
