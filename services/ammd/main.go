package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"mercx/native/amm"
	"mercx/observability/logging"
	"mercx/observability/metrics"
	telemetry "mercx/observability/otel"
	"mercx/services/ammd/config"
	"mercx/services/ammd/ledgerclient"
	"mercx/services/ammd/server"
	"mercx/services/ammd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ammd/config.yaml", "path to ammd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MERCX_ENV"))
	logger := logging.Setup("ammd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "ammd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("ammd: load config: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("ammd: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("ammd: open storage: %v", err)
	}
	defer store.Close()

	registry := amm.NewStaticRegistry()
	for _, token := range cfg.Tokens {
		fee := new(big.Int)
		if raw := strings.TrimSpace(token.NetworkFee); raw != "" {
			parsed, ok := new(big.Int).SetString(raw, 10)
			if !ok || parsed.Sign() < 0 {
				log.Fatalf("ammd: token %s: invalid network fee %q", token.Symbol, token.NetworkFee)
			}
			fee = parsed
		}
		err := registry.Register(&amm.Token{
			ID:           token.ID,
			Symbol:       token.Symbol,
			Name:         token.Name,
			Address:      token.Address,
			Decimals:     token.Decimals,
			Fee:          fee,
			SupportsPull: token.SupportsPull,
		})
		if err != nil {
			log.Fatalf("ammd: register token %s: %v", token.Symbol, err)
		}
	}

	ledger := ledgerclient.New(cfg.Ledger.Endpoint, cfg.Ledger.Timeout.Duration)
	engine := amm.NewEngine(store, registry, ledger, cfg.OperatorAccount)
	engine.SetLogger(logger)
	engine.SetMetrics(metrics.AMM())

	if err := syncSettings(engine, registry, cfg); err != nil {
		log.Fatalf("ammd: sync settings: %v", err)
	}
	if err := ensurePools(engine, cfg); err != nil {
		log.Fatalf("ammd: ensure pools: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Limit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, engine, logger)
	if err != nil {
		log.Fatalf("ammd: server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("ammd: serve: %v", err)
	}
}

// syncSettings pushes the configured defaults into the settings record,
// resolving anchor symbols to token ids.
func syncSettings(engine *amm.Engine, registry amm.TokenRegistry, cfg config.Config) error {
	settings, err := engine.Settings()
	if err != nil {
		return err
	}
	settings.FeeRateBps = cfg.Fees.RateBps
	settings.ProtocolShareBps = cfg.Fees.ProtocolShareBps
	settings.MaxSlippagePct = cfg.MaxSlippagePct
	settings.RecencyWindow = cfg.RecencyWindow.Duration
	anchors := make([]uint32, 0, len(cfg.AnchorSymbols))
	for _, symbol := range cfg.AnchorSymbols {
		token, err := registry.Resolve(symbol)
		if err != nil {
			return err
		}
		anchors = append(anchors, token.ID)
	}
	settings.AnchorTokenIDs = anchors
	return engine.UpdateSettings(settings)
}

// ensurePools creates any configured pools that do not exist yet.
func ensurePools(engine *amm.Engine, cfg config.Config) error {
	for _, pair := range cfg.Pools {
		if _, err := engine.CreatePool(pair.Base, pair.Quote); err != nil {
			if errors.Is(err, amm.ErrPoolExists) {
				continue
			}
			return err
		}
	}
	return nil
}
