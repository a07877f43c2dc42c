package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"walletledger/internal/adapter/api"
	"walletledger/internal/adapter/api/handler"
	apimiddleware "walletledger/internal/adapter/api/middleware"
	"walletledger/internal/adapter/api/router"
	"walletledger/internal/adapter/repository"
	"walletledger/internal/adapter/repository/memory"
	"walletledger/internal/domain/entity"
	domainrepo "walletledger/internal/domain/repository"
	"walletledger/internal/domain/service"
	"walletledger/internal/infrastructure/firebase"
	"walletledger/internal/infrastructure/metrics"
	"walletledger/internal/infrastructure/ratelimit"
	"walletledger/internal/infrastructure/websocket"
	"walletledger/internal/usecase"
	"walletledger/pkg/circuitbreaker"
	"walletledger/pkg/config"
	"walletledger/pkg/logger"
)

const (
	shutdownTimeout     = 10 * time.Second
	limiterSweepEvery   = 10 * time.Minute
	limiterIdleLifetime = 2 * time.Hour
	resolverRetryDelay  = 500 * time.Millisecond
)

type repositories struct {
	wallets      domainrepo.WalletRepository
	escrows      domainrepo.EscrowRepository
	standard     domainrepo.StandardPaymentRepository
	transactions domainrepo.PaymentTransactionRepository
	orders       domainrepo.OrderRepository
	users        domainrepo.UserRepository
	products     domainrepo.ProductRepository
	accounts     domainrepo.PayoutAccountRepository
	close        func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds := firebase.Credentials(cfg.FirebaseServiceAccount, cfg.FirebaseServiceAccountDir)

	verifier, err := newVerifier(ctx, cfg, creds, zl)
	if err != nil {
		zl.Fatal("failed to initialize authentication", zap.Error(err))
	}

	repos, err := newRepositories(ctx, cfg, creds, zl)
	if err != nil {
		zl.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer repos.close()

	wsManager := websocket.NewManager(zl)
	wsManager.Start(ctx)

	walletUseCase := usecase.NewWalletUseCase(repos.wallets, usecase.LedgerConfig{
		Currencies:      cfg.Ledger.SupportedCurrencies,
		PrimaryCurrency: cfg.Ledger.PrimaryCurrency,
		HistoryLimit:    cfg.Ledger.HistoryLimit,
		WriteAttempts:   cfg.Ledger.WriteAttempts,
		Limits: entity.WithdrawalLimits{
			Min:     cfg.Withdrawal.MinAmount,
			Daily:   cfg.Withdrawal.DailyLimit,
			Monthly: cfg.Withdrawal.MonthlyLimit,
		},
	}, zl)

	withdrawalUseCase := usecase.NewWithdrawalUseCase(
		walletUseCase,
		repos.accounts,
		repos.users,
		newPayoutGateways(cfg.Payout, zl),
		cfg.Withdrawal.MinAmount,
		zl,
	)

	resolver := usecase.NewTransactionResolver(repos.escrows, repos.standard, repos.transactions, repos.orders, resolverRetryDelay)
	completionUseCase := usecase.NewPaymentCompletionUseCase(
		resolver,
		walletUseCase,
		repos.escrows,
		repos.standard,
		repos.transactions,
		repos.orders,
		repos.users,
		repos.products,
		wsManager,
		zl,
	)

	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionWithdraw: ratelimit.PerHour(cfg.Withdrawal.RatePerHour),
	})
	limiter.StartCleanupRoutine(ctx, limiterSweepEvery, limiterIdleLifetime)

	handler.Setup(walletUseCase, withdrawalUseCase, completionUseCase, wsManager, zl)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(apimiddleware.RequestID())
	e.Use(apimiddleware.RequestLogger(zl))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORS())
	e.Use(echomw.ContextTimeout(cfg.RequestTimeout))

	e.Validator = api.NewValidator()

	router.Setup(e, apimiddleware.NewAuthMiddleware(verifier), limiter)

	go func() {
		zl.Info("starting server",
			zap.String("port", cfg.ServerPort),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageDriver))
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, creds []option.ClientOption, zl *zap.Logger) (apimiddleware.TokenVerifier, error) {
	if cfg.DevAuth {
		zl.Warn("DEV_AUTH is enabled, accepting dev-<uid> tokens")
		return firebase.DevTokenVerifier{}, nil
	}

	app, err := firebase.NewApp(ctx, cfg.FirebaseProject, creds...)
	if err != nil {
		return nil, err
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return firebase.NewFirebaseAuthClient(authClient), nil
}

func newRepositories(ctx context.Context, cfg *config.Config, creds []option.ClientOption, zl *zap.Logger) (*repositories, error) {
	if cfg.StorageDriver == config.StorageMemory {
		zl.Warn("using in-memory storage, data is lost on restart")
		payments := memory.NewPaymentStore()
		directory := memory.NewDirectoryStore()
		return &repositories{
			wallets:      memory.NewWalletStore(),
			escrows:      payments.Escrows(),
			standard:     payments.Standard(),
			transactions: payments.Transactions(),
			orders:       payments.Orders(),
			users:        directory,
			products:     directory.Products(),
			accounts:     directory.Accounts(),
			close:        func() error { return nil },
		}, nil
	}

	client, err := firestore.NewClient(ctx, cfg.FirebaseProject, creds...)
	if err != nil {
		return nil, err
	}
	return &repositories{
		wallets:      repository.NewFirestoreWalletRepository(client),
		escrows:      repository.NewFirestoreEscrowRepository(client),
		standard:     repository.NewFirestoreStandardPaymentRepository(client),
		transactions: repository.NewFirestorePaymentTransactionRepository(client),
		orders:       repository.NewFirestoreOrderRepository(client),
		users:        repository.NewFirestoreUserRepository(client),
		products:     repository.NewFirestoreProductRepository(client),
		accounts:     repository.NewFirestorePayoutAccountRepository(client),
		close:        client.Close,
	}, nil
}

// newPayoutGateways registers the rails that have credentials. Every rail
// shares one breaker keyed by provider name.
func newPayoutGateways(cfg config.PayoutConfig, zl *zap.Logger) map[entity.PayoutMethod]service.PayoutGateway {
	breaker := circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)
	metrics.TrackBreaker(breaker)

	gateways := make(map[entity.PayoutMethod]service.PayoutGateway)
	if cfg.StripeSecretKey != "" {
		gateways[entity.PayoutMethodBankTransfer] = service.NewGuardedGateway(service.NewStripePayoutService(cfg.StripeSecretKey, zl), breaker)
	} else {
		zl.Warn("STRIPE_SECRET_KEY not set, bank transfers are disabled")
	}
	if cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "" {
		gateways[entity.PayoutMethodPayPal] = service.NewGuardedGateway(
			service.NewPayPalPayoutService(cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.PayPalBaseURL, zl), breaker)
	} else {
		zl.Warn("PayPal credentials not set, PayPal withdrawals are disabled")
	}
	return gateways
}
