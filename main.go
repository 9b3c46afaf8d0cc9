package main

import (
	"context"
	"database/sql"
	"log"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/audit"
	"github.com/SergFTM/wealth-os-sub013/internal/auth"
	"github.com/SergFTM/wealth-os-sub013/internal/delivery"
	"github.com/SergFTM/wealth-os-sub013/internal/directory"
	"github.com/SergFTM/wealth-os-sub013/internal/engine"
	escapp "github.com/SergFTM/wealth-os-sub013/internal/escalations/application"
	escrepo "github.com/SergFTM/wealth-os-sub013/internal/escalations/infrastructure/postgres"
	eschttp "github.com/SergFTM/wealth-os-sub013/internal/escalations/interfaces/http"
	"github.com/SergFTM/wealth-os-sub013/internal/eventing"
	eventingrepo "github.com/SergFTM/wealth-os-sub013/internal/eventing/infrastructure/postgres"
	eventinghttp "github.com/SergFTM/wealth-os-sub013/internal/eventing/interfaces/http"
	notifrepo "github.com/SergFTM/wealth-os-sub013/internal/notifications/infrastructure/postgres"
	notifhttp "github.com/SergFTM/wealth-os-sub013/internal/notifications/interfaces/http"
	"github.com/SergFTM/wealth-os-sub013/internal/observability/metrics"
	rulesapp "github.com/SergFTM/wealth-os-sub013/internal/rules/application"
	rulesrepo "github.com/SergFTM/wealth-os-sub013/internal/rules/infrastructure/postgres"
	rulesredis "github.com/SergFTM/wealth-os-sub013/internal/rules/infrastructure/redis"
	ruleshttp "github.com/SergFTM/wealth-os-sub013/internal/rules/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/gomail.v2"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	engineCfg, err := engine.LoadConfig()
	if err != nil {
		logger.Fatalf("engine config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	dir, err := directory.NewPostgresDirectory(db)
	if err != nil {
		logger.Fatalf("directory error: %v", err)
	}

	ruleRepo := rulesrepo.NewRuleRepository(db)
	ruleService, err := rulesapp.NewService(ruleRepo, logger, rulesapp.WithAudit(auditRepo))
	if err != nil {
		logger.Fatalf("rule service error: %v", err)
	}

	var throttle rulesapp.ThrottleStore = rulesrepo.NewThrottleStore(db)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("redis ping error: %v", err)
		}
		redisThrottle, err := rulesredis.NewThrottleStore(client)
		if err != nil {
			logger.Fatalf("redis throttle error: %v", err)
		}
		throttle = redisThrottle
		logger.Printf("throttle backed by redis at %s", cfg.RedisAddr)
	}

	evaluator, err := rulesapp.NewEvaluator(dir, throttle, rulesrepo.NewDigestStore(db), ruleRepo, logger)
	if err != nil {
		logger.Fatalf("evaluator error: %v", err)
	}

	escService, err := escapp.NewService(escrepo.NewEscalationRepository(db), dir, logger)
	if err != nil {
		logger.Fatalf("escalation service error: %v", err)
	}

	channels := []delivery.Channel{delivery.NewLogChannel(logger)}
	if engineCfg.WebhookURL != "" {
		webhook, err := delivery.NewWebhookChannel(engineCfg.WebhookURL)
		if err != nil {
			logger.Fatalf("webhook channel error: %v", err)
		}
		channels = append(channels, webhook)
	}
	if cfg.SMTPHost != "" {
		dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		email, err := delivery.NewEmailChannel(dialer, cfg.MailFromAddr, cfg.MailFromName)
		if err != nil {
			logger.Fatalf("email channel error: %v", err)
		}
		channels = append(channels, email)
	}
	dispatcher := delivery.NewDispatcher(logger, channels,
		delivery.WithSendTimeout(time.Duration(engineCfg.DeliveryTimeoutSeconds)*time.Second))

	broker := notifhttp.NewSSEBroker()
	engineService, err := engine.NewService(
		engineCfg,
		ruleService,
		evaluator,
		notifrepo.NewNotificationRepository(db),
		escService,
		dispatcher,
		dir,
		cfg.TenantID,
		logger,
		engine.WithNotifier(broker),
	)
	if err != nil {
		logger.Fatalf("engine error: %v", err)
	}

	bus := eventing.NewBus(logger)
	processedStore, err := eventingrepo.NewProcessedStore(db)
	if err != nil {
		logger.Fatalf("processed store error: %v", err)
	}
	bus.Subscribe(eventing.MatchAll, eventing.WrapHandler("engine.ingest", func(ctx context.Context, env eventing.Envelope) error {
		_, err := engineService.IngestEvent(ctx, env.EventName, env.SubjectID, env.Fields)
		return err
	}, processedStore))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(cfg.KafkaBrokers) > 0 {
		source, err := eventing.NewKafkaSource(eventing.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, bus, logger)
		if err != nil {
			logger.Fatalf("kafka source error: %v", err)
		}
		go func() {
			if err := source.Run(ctx); err != nil {
				logger.Printf("kafka source stopped: %v", err)
			}
		}()
	}

	scheduler, err := engine.NewScheduler(engineService, time.Duration(engineCfg.TickIntervalSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
	go scheduler.Start(ctx)

	ruleHandler, err := ruleshttp.NewHandler(engineService)
	if err != nil {
		logger.Fatalf("rule handler error: %v", err)
	}
	notifHandler, err := notifhttp.NewHandler(engineService)
	if err != nil {
		logger.Fatalf("notification handler error: %v", err)
	}
	escHandler, err := eschttp.NewHandler(engineService)
	if err != nil {
		logger.Fatalf("escalation handler error: %v", err)
	}
	ingestHandler, err := eventinghttp.NewIngestHandler(bus, cfg.TenantID)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/rules", ruleHandler)
	mux.Handle("/api/v1/rules/", ruleHandler)
	mux.Handle("/api/v1/events", ingestHandler)
	mux.Handle("/api/v1/notifications", notifHandler)
	mux.Handle("/api/v1/notifications/", notifHandler)
	mux.Handle("/api/v1/notifications/stream", notifhttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/escalations", escHandler)
	mux.Handle("/api/v1/escalations/", escHandler)
	mux.Handle("/api/v1/exports/escalations.xlsx", eschttp.NewExportHandler(engineService))
	mux.Handle("/api/v1/exports/escalations.pdf", eschttp.NewExportHandler(engineService))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		logger.Fatalf("http server error: %v", err)
	case <-ctx.Done():
	}

	// Signal received: stop accepting requests, then let the scheduler
	// and the kafka source drain via the cancelled context.
	logger.Print("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Printf("http shutdown error: %v", err)
	}
	<-serveErr
}

type config struct {
	DatabaseURL   string
	HTTPAddr      string
	TenantID      string
	JWTSecret     string
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	MailFromAddr  string
	MailFromName  string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:   getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:      getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:     getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RedisAddr:     getenvDefault("REDIS_ADDR", ""),
		RedisPassword: getenvDefault("REDIS_PASSWORD", ""),
		KafkaTopic:    getenvDefault("KAFKA_EVENTS_TOPIC", "notification-events"),
		KafkaGroupID:  getenvDefault("KAFKA_GROUP_ID", "notification-engine"),
		SMTPHost:      getenvDefault("SMTP_HOST", ""),
		SMTPPort:      getenvIntDefault("SMTP_PORT", 587),
		SMTPUser:      getenvDefault("SMTP_USER", ""),
		SMTPPassword:  getenvDefault("SMTP_PASSWORD", ""),
		MailFromAddr:  getenvDefault("MAIL_FROM_ADDR", ""),
		MailFromName:  getenvDefault("MAIL_FROM_NAME", ""),
	}
	if brokers := getenvDefault("KAFKA_BROKERS", ""); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
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

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
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
