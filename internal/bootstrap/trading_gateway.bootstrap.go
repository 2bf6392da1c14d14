package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ibkr-paper-gateway/internal/config"
	"ibkr-paper-gateway/internal/entity"
	httpHandler "ibkr-paper-gateway/internal/handler/trading/http"
	"ibkr-paper-gateway/internal/ibkr"
	"ibkr-paper-gateway/internal/infrastructure"
	"ibkr-paper-gateway/internal/orderstream"
	"ibkr-paper-gateway/internal/repository"
	"ibkr-paper-gateway/internal/service"
	"ibkr-paper-gateway/internal/service/trader"
	"ibkr-paper-gateway/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartTradingGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanups := map[string]operation{}

	// Optional order history persistence.
	var ordersDB *sqlx.DB
	var historyRepo *repository.OrderHistoryRepository
	if dbCfg, ok := config.Env.Database["orders"]; ok && strings.TrimSpace(dbCfg.DSN) != "" {
		var err error
		ordersDB, err = infrastructure.NewPostgresConnection(ctx, dbCfg)
		util.ContinueOrFatal(err)
		infrastructure.StartPostgresHealthCheck(ctx, ordersDB, dbCfg.PingInterval)

		historyRepo = repository.NewOrderHistoryRepository(ordersDB)
		cleanups["orders database"] = func(ctx context.Context) error {
			cancel()
			return ordersDB.Close()
		}
	}

	// Optional order event publishing.
	var nc *nats.Conn
	var js nats.JetStreamContext
	if strings.TrimSpace(config.Env.NatsJetstream.URL) != "" {
		var err error
		nc, js, err = infrastructure.NewJetstream()
		util.ContinueOrFatal(err)
		cleanups["nats connection"] = func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		}
	}

	// Optional contract qualification cache.
	var contractCache service.ContractCache
	if redisCfg, ok := config.Env.Redis["contract_cache"]; ok && strings.TrimSpace(redisCfg.CacheDSN) != "" {
		cache, err := service.NewRedisContractCache(redisCfg.CacheDSN, redisCfg.CacheTTL)
		util.ContinueOrFatal(err)
		contractCache = cache
		cleanups["contract cache"] = func(ctx context.Context) error {
			return cache.Close()
		}
	}

	dial := resolveDialer(cmd)
	policy := resolvePolicy(cmd)

	hub := orderstream.NewHub()

	traderService := trader.New(dial, trader.Options{
		Policy:        policy,
		Host:          config.Env.IBKR.Host,
		Port:          config.Env.IBKR.Port,
		ClientID:      config.Env.IBKR.ClientID,
		SettleDelay:   config.Env.IBKR.SettleDelay,
		HistoryRepo:   historyRepo,
		Jetstream:     js,
		Stream:        hub,
		ContractCache: contractCache,
	})
	cleanups["gateway session"] = func(ctx context.Context) error {
		return traderService.Disconnect()
	}

	if js != nil {
		var publisher entity.Publisher = traderService
		err := publisher.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	if policy == trader.PolicyReuse {
		// Warm the shared session up front; a failure here is reported on
		// first request rather than aborting startup.
		if err := traderService.Connect(ctx); err != nil {
			logrus.Warnf("initial gateway connect failed: %v", err)
		}
	}

	tradingHTTPHandler := httpHandler.NewTradingHTTPHandler(traderService)
	httpMux := http.NewServeMux()
	tradingHTTPHandler.Register(httpMux)
	httpMux.Handle("/ws/orders", hub)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["trading_gateway_http"])
	httpServer := infrastructure.NewHTTPServer(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	cleanups["http"] = func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, cleanups)

	<-wait
}

func resolveDialer(cmd *cobra.Command) ibkr.Dialer {
	simulate, _ := cmd.Flags().GetBool("simulate")
	if simulate {
		logrus.Warn("running against the in-memory simulated gateway")
		return ibkr.NewSimulatorDialer(ibkr.NewSimulator())
	}

	return ibkr.NewTWSDialer(config.Env.IBKR.Host, config.Env.IBKR.Port, config.Env.IBKR.ClientID)
}

func resolvePolicy(cmd *cobra.Command) trader.Policy {
	raw, _ := cmd.Flags().GetString("policy")
	if raw == "" {
		raw = config.Env.IBKR.ConnectionPolicy
	}

	switch trader.Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case trader.PolicyReuse:
		return trader.PolicyReuse
	case trader.PolicyPerRequest, "":
		return trader.PolicyPerRequest
	default:
		logrus.Warnf("unknown connection policy %q, falling back to per_request", raw)
		return trader.PolicyPerRequest
	}
}
