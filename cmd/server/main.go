package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gopkg.in/yaml.v3"

	"github.com/shoplane/shoplane/modules/billing"
	"github.com/shoplane/shoplane/pkg/affiliate"
	billingcore "github.com/shoplane/shoplane/pkg/billing"
	"github.com/shoplane/shoplane/pkg/config"
	"github.com/shoplane/shoplane/pkg/httpserver"
	"github.com/shoplane/shoplane/pkg/logger"
	"github.com/shoplane/shoplane/pkg/mongo"
	"github.com/shoplane/shoplane/pkg/pg"
	"github.com/shoplane/shoplane/pkg/redis"
	"github.com/shoplane/shoplane/pkg/subscription"
)

type appConfig struct {
	ServiceName     string `env:"SERVICE_NAME" envDefault:"shoplane-billing"`
	PlansPath       string `env:"PLANS_PATH" envDefault:"plans.yml"`
	ProgramPath     string `env:"AFFILIATE_PROGRAM_PATH" envDefault:"affiliate.yml"`
	ReferralBaseURL string `env:"REFERRAL_BASE_URL" envDefault:"https://shoplane.app"`

	// CallbackBaseURL is this service's public URL; gateway redirect and IPN
	// endpoints are derived from it.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL,required"`

	PaymentGateway string `env:"PAYMENT_GATEWAY" envDefault:"sslcommerz"` // sslcommerz | paddle
	AffiliateStore string `env:"AFFILIATE_STORE" envDefault:"postgres"`   // postgres | mongo

	// RedisLockEnabled switches ledger serialization from in-process mutexes
	// to a Redis keyed lock for multi-replica deployments.
	RedisLockEnabled bool          `env:"REDIS_LOCK_ENABLED" envDefault:"false"`
	RedisLockTTL     time.Duration `env:"REDIS_LOCK_TTL" envDefault:"30s"`

	InvoiceSweepInterval time.Duration `env:"INVOICE_SWEEP_INTERVAL" envDefault:"1h"`
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		app     appConfig
		logCfg  logger.Config
		httpCfg httpserver.Config
		pgCfg   pg.Config
	)
	if err := config.Load(&app); err != nil {
		return err
	}
	if err := config.Load(&logCfg); err != nil {
		return err
	}
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	if err := config.Load(&pgCfg); err != nil {
		return err
	}

	log := logger.NewFromConfig(logCfg, logger.WithService(app.ServiceName))

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	healthchecks := []func(context.Context) error{pg.Healthcheck(pool)}

	var billingLocker billingcore.Locker = billingcore.NewMemoryLocker()
	var affiliateLocker affiliate.Locker = affiliate.NewMemoryLocker()
	if app.RedisLockEnabled {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		lock := redis.NewKeyedLock(client, app.RedisLockTTL)
		billingLocker, affiliateLocker = lock, lock
		healthchecks = append(healthchecks, redis.Healthcheck(client))
	}

	var gateway billingcore.Gateway
	switch app.PaymentGateway {
	case "paddle":
		var paddleCfg billingcore.PaddleConfig
		if err := config.Load(&paddleCfg); err != nil {
			return err
		}
		gateway, err = billingcore.NewPaddleGateway(paddleCfg)
		if err != nil {
			return err
		}
	default:
		var sslCfg billingcore.SSLCommerzConfig
		if err := config.Load(&sslCfg); err != nil {
			return err
		}
		gateway = billingcore.NewSSLCommerzGateway(sslCfg)
	}

	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource(app.PlansPath))
	if err != nil {
		return err
	}

	subStore := subscription.NewPGStore(pool)
	subs := subscription.NewService(subStore, catalog, subscription.WithLogger(log))

	invoices := billingcore.NewPGInvoiceStore(pool)
	renewals := billingcore.NewRenewalService(invoices, subStore, gateway, billingLocker,
		billingcore.CallbackURLs{
			SuccessURL: app.CallbackBaseURL + "/billing/callbacks/success",
			FailURL:    app.CallbackBaseURL + "/billing/callbacks/fail",
			CancelURL:  app.CallbackBaseURL + "/billing/callbacks/cancel",
			IPNURL:     app.CallbackBaseURL + "/billing/ipn",
		},
		billingcore.WithLogger(log),
	)

	program, err := loadProgramConfig(app.ProgramPath)
	if err != nil {
		return err
	}

	var affiliateStore affiliate.Store
	switch app.AffiliateStore {
	case "mongo":
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return err
		}
		db, err := mongo.Database(ctx, mongoCfg)
		if err != nil {
			return err
		}
		defer db.Client().Disconnect(context.Background())
		store := affiliate.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		affiliateStore = store
		healthchecks = append(healthchecks, mongo.Healthcheck(db.Client()))
	default:
		affiliateStore = affiliate.NewPGStore(pool)
	}
	affiliates := affiliate.NewService(affiliateStore, program, affiliateLocker,
		affiliate.WithLogger(log))

	go sweepStaleInvoices(ctx, renewals, app.InvoiceSweepInterval, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, healthchecks...))
	r.Mount("/billing", billing.Router(billing.RouterOptions{
		Subscriptions:   subs,
		Renewals:        renewals,
		Affiliates:      affiliates,
		ReferralBaseURL: app.ReferralBaseURL,
	}))

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("listening", "addr", httpCfg.Addr, "gateway", app.PaymentGateway)
		}),
	)
	return srv.Run(ctx, r)
}

func loadProgramConfig(path string) (affiliate.ProgramConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return affiliate.ProgramConfig{}, err
	}
	var cfg affiliate.ProgramConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return affiliate.ProgramConfig{}, err
	}
	return cfg, nil
}

func sweepStaleInvoices(ctx context.Context, renewals *billingcore.RenewalService, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := renewals.SweepStale(ctx)
			if err != nil {
				log.ErrorContext(ctx, "invoice sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				log.InfoContext(ctx, "stale invoices swept", "count", swept)
			}
		}
	}
}
