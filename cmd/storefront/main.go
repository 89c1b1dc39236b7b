package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mongoadapter "github.com/blacknight/storefront/internal/adapters/mongo"
	"github.com/blacknight/storefront/internal/adapters/rabbit"
	redisadapter "github.com/blacknight/storefront/internal/adapters/redis"
	"github.com/blacknight/storefront/internal/admin"
	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/checkout"
	"github.com/blacknight/storefront/internal/config"
	httphandler "github.com/blacknight/storefront/internal/http"
	"github.com/blacknight/storefront/internal/idempotency"
	"github.com/blacknight/storefront/internal/observability"
	"github.com/blacknight/storefront/internal/payment"
	"github.com/blacknight/storefront/internal/rateLimit"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// countdown seconds between reservation re-checks against the backend
const refreshEvery = 15

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "storefront")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()
	observability.InitMetrics()

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	var events checkout.Publisher = rabbit.NopPublisher{}
	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		pub, err := rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		defer pub.Close()
		events = pub
	} else {
		logger.Info("RABBIT_URL not set, checkout events are dropped")
	}

	var (
		auditor  admin.Auditor = admin.NopAuditor{}
		activity httphandler.ActivityReader
	)
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		audit := mongoadapter.NewAuditLogger(mongoClient.Database("storefront"), logger)
		if err := audit.EnsureIndexes(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to create audit indexes")
		}
		auditor, activity = audit, audit
	}

	api := backend.New(cfg.BackendURL, cfg.BackendTimeout, logger)
	clk := clockwork.NewRealClock()
	payGuard := idempotency.NewGuard(redisadapter.NewIdempotency(redisClient), idempotency.DefaultTTL)

	renderer, err := httphandler.NewRenderer()
	if err != nil {
		log.Fatalf("failed to parse templates: %v", err)
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}

	handlers := httphandler.NewHandlers(httphandler.Deps{
		Config:   cfg,
		Logger:   logger,
		Backend:  api,
		Carts:    redisadapter.NewCartStore(redisClient, cfg.CartTTL),
		Checkout: checkout.NewService(api, redisadapter.NewReservationTokens(redisClient, clk.Now), payGuard, events, clk, logger, refreshEvery),
		PayFlag:  payGuard,
		Poller:   payment.NewPoller(api, clk, cfg.PaymentPollInterval, cfg.PaymentPollAttempts, logger),
		Tickets:  payment.NewTicketLoader(api, logger),
		Console:  admin.NewConsole(api, auditor, logger),
		Activity: activity,
		Limiter:  rateLimit.NewRateLimiter(redisCache),
		Sessions: sessionStore,
		Renderer: renderer,
		Ready:    redisCache.Ping,
	})

	r := httphandler.SetupRouter(handlers)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// the success page polls the payment before it writes anything
		WriteTimeout: cfg.PaymentPollBudget + 10*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("storefront listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
