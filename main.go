package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vendwatch/internal/alerts/dispatch"
	alertsrepo "vendwatch/internal/alerts/infrastructure/postgres"
	"vendwatch/internal/alerts/notify"
	apihttp "vendwatch/internal/api/http"
	"vendwatch/internal/audit"
	"vendwatch/internal/auth"
	"vendwatch/internal/baseline"
	baselinerepo "vendwatch/internal/baseline/infrastructure/postgres"
	fleetrepo "vendwatch/internal/fleet/infrastructure/postgres"
	"vendwatch/internal/logging"
	"vendwatch/internal/monitor"
	"vendwatch/internal/observability/metrics"
	"vendwatch/internal/report"
	salesrepo "vendwatch/internal/sales/infrastructure/postgres"
)

func main() {
	logging.Init(getenvDefault("LOG_LEVEL", "info"))
	logger := logging.WithComponent("main")
	cfg := loadConfig(logger)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open error")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("db ping error")
	}

	metrics.Init(db)

	monitorCfg, err := monitor.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("monitor config error")
	}

	partnerRepo := fleetrepo.NewPartnerRepository(db)
	merchantRepo := fleetrepo.NewMerchantRepository(db)
	machineRepo := fleetrepo.NewMachineRepository(db)
	txRepo := salesrepo.NewTransactionRepository(db)
	kindRepo := alertsrepo.NewKindRepository(db)
	ledgerRepo := alertsrepo.NewLedgerRepository(db)
	cursorRepo := alertsrepo.NewCursorRepository(db)
	recipientRepo := alertsrepo.NewRecipientRepository(db)
	baselineRepo, err := baselinerepo.NewHourlyRepository(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("baseline repository error")
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		logger.Fatal().Err(err).Msg("template renderer error")
	}
	channel, err := notify.NewMailGatewayChannel(cfg.MailGatewayURL, cfg.MailFrom)
	if err != nil {
		logger.Fatal().Err(err).Msg("mail gateway error")
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logging.WithComponent("dispatch")),
	}
	if len(cfg.KafkaBrokers) > 0 {
		feed, err := notify.NewEventFeed(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("event feed error")
		}
		defer feed.Close()
		dispatchOpts = append(dispatchOpts, dispatch.WithEventFeed(feed))
	}
	dispatcher, err := dispatch.NewDispatcher(kindRepo, ledgerRepo, recipientRepo, channel, renderer, dispatchOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher error")
	}

	sweeper, err := monitor.NewSweeper(partnerRepo, merchantRepo, machineRepo, logging.WithComponent("sweeper"))
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper error")
	}

	failedSales, err := monitor.NewFailedSalesDetector(monitorCfg.FailedSales, txRepo, dispatcher, sweeper, logging.WithComponent("failed_sales"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed sales detector error")
	}
	voidFailed, err := monitor.NewVoidFailedDetector(monitorCfg.VoidFailed, txRepo, cursorRepo, dispatcher, sweeper, logging.WithComponent("void_failed"))
	if err != nil {
		logger.Fatal().Err(err).Msg("void failed detector error")
	}
	timeout, err := monitor.NewTimeoutDetector(monitorCfg.Timeout, txRepo, dispatcher, sweeper, logging.WithComponent("timeout"))
	if err != nil {
		logger.Fatal().Err(err).Msg("timeout detector error")
	}
	voidComplete, err := monitor.NewVoidCompleteDetector(monitorCfg.VoidComplete, txRepo, dispatcher, sweeper, logging.WithComponent("void_complete"))
	if err != nil {
		logger.Fatal().Err(err).Msg("void complete detector error")
	}
	heartbeat, err := monitor.NewHeartbeatDetector(monitorCfg.Heartbeat, txRepo, dispatcher, sweeper, nil, logging.WithComponent("heartbeat"))
	if err != nil {
		logger.Fatal().Err(err).Msg("heartbeat detector error")
	}

	learner, err := baseline.NewLearner(baselineRepo, txRepo, sweeper, monitorCfg.Baseline.LookbackMonths, monitorCfg.Baseline.MinInterval(), nil, logging.WithComponent("baseline"))
	if err != nil {
		logger.Fatal().Err(err).Msg("baseline learner error")
	}
	drop, err := baseline.NewDropDetector(baselineRepo, txRepo, sweeper, dispatcher,
		monitorCfg.BaselineDrop.DropThreshold, monitorCfg.BaselineDrop.ConsecutiveHours,
		monitorCfg.BaselineDrop.Cooldown(), nil, logging.WithComponent("baseline_drop"))
	if err != nil {
		logger.Fatal().Err(err).Msg("baseline drop detector error")
	}

	ctx := context.Background()
	schedLog := logging.WithComponent("scheduler")
	startDetector(ctx, schedLog, "failed_sales", monitorCfg.FailedSales.Disabled, monitorCfg.FailedSales.Every(), failedSales.RunPass)
	startDetector(ctx, schedLog, "void_failed", monitorCfg.VoidFailed.Disabled, monitorCfg.VoidFailed.Every(), voidFailed.RunPass)
	startDetector(ctx, schedLog, "timeout", monitorCfg.Timeout.Disabled, monitorCfg.Timeout.Every(), timeout.RunPass)
	startDetector(ctx, schedLog, "void_complete", monitorCfg.VoidComplete.Disabled, monitorCfg.VoidComplete.Every(), voidComplete.RunPass)
	startDetector(ctx, schedLog, "heartbeat", monitorCfg.Heartbeat.Disabled, monitorCfg.Heartbeat.Every(), heartbeat.RunPass)

	if !monitorCfg.Baseline.Disabled {
		if !monitorCfg.Baseline.SkipStartRun {
			go func() {
				if err := learner.Run(ctx); err != nil {
					schedLog.Error().Err(err).Msg("startup baseline run error")
				}
			}()
		}
		go monitor.NewDailyScheduler("baseline", monitorCfg.Baseline.DailyAt, func(ctx context.Context, _ time.Time) {
			if err := learner.Run(ctx); err != nil {
				schedLog.Error().Err(err).Msg("baseline run error")
			}
		}, schedLog).Start(ctx)
	}
	if !monitorCfg.BaselineDrop.Disabled {
		go monitor.NewHourlyScheduler("baseline_drop", monitorCfg.BaselineDrop.AtMinute, func(ctx context.Context, _ time.Time) {
			if err := drop.RunPass(ctx); err != nil {
				schedLog.Error().Err(err).Msg("baseline drop pass error")
			}
		}, schedLog).Start(ctx)
	}

	reportBuilder, err := report.NewBuilder(partnerRepo, merchantRepo, machineRepo, txRepo, logging.WithComponent("report"))
	if err != nil {
		logger.Fatal().Err(err).Msg("report builder error")
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	auditRepo := audit.NewRepository(db)
	mux.Handle("/api/v1/monitor/run/", apihttp.NewMonitorRunHandler(auditRepo, failedSales, voidFailed, timeout, voidComplete, heartbeat, drop))
	mux.Handle("/api/v1/baseline/run", apihttp.NewBaselineRunHandler(learner, auditRepo))
	mux.Handle("/api/v1/reports/sales", apihttp.NewSalesReportHandler(reportBuilder))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: accessLog(authMiddleware.Wrap(mux), logging.WithComponent("http"))}
	logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	logger.Fatal().Err(server.ListenAndServe()).Msg("http server stopped")
}

func startDetector(ctx context.Context, log zerolog.Logger, name string, disabled bool, every time.Duration, pass func(context.Context) error) {
	if disabled {
		log.Info().Str("detector", name).Msg("detector disabled")
		return
	}
	go monitor.NewIntervalScheduler(name, every, func(ctx context.Context, _ time.Time) {
		if err := pass(ctx); err != nil {
			log.Error().Err(err).Str("detector", name).Msg("detector pass error")
		}
	}, log).Start(ctx)
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	MailGatewayURL  string
	MailFrom        string
	KafkaBrokers    []string
	KafkaAlertTopic string
	JWTSecret       string
}

func loadConfig(logger zerolog.Logger) config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		MailGatewayURL:  getenvDefault("MAIL_GATEWAY_URL", ""),
		MailFrom:        getenvDefault("MAIL_FROM", "alerts@vendwatch.local"),
		KafkaBrokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic: getenvDefault("KAFKA_ALERT_TOPIC", "vendwatch.alerts"),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL or PG_DSN is required")
	}
	if cfg.MailGatewayURL == "" {
		logger.Fatal().Msg("MAIL_GATEWAY_URL is required")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func accessLog(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
