package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/wyfcoding/pkg/httpclient"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/metrics"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/application"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/domain"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/infrastructure/cache"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/infrastructure/client"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/infrastructure/messaging"
	"github.com/wyfcoding/portfolioanalytics/internal/analytics/infrastructure/persistence/mysql"
	analyticshttp "github.com/wyfcoding/portfolioanalytics/internal/analytics/interfaces/http"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/analytics/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}

	// 2. Logger
	logger := logging.NewLogger("analytics", "main", viper.GetString("log.level"))
	slog.SetDefault(logger.Logger)

	// 3. Database
	dsn := viper.GetString("database.source")
	db, err := gorm.Open(gorm_mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(fmt.Sprintf("connect db failed: %v", err))
	}
	if err := db.AutoMigrate(&domain.Holding{}, &domain.LedgerEntry{}); err != nil {
		panic(fmt.Sprintf("migrate db failed: %v", err))
	}

	holdingRepo := mysql.NewHoldingRepo(db)
	ledgerRepo := mysql.NewLedgerRepo(db)

	// 4. Market data boundary
	metricsInstance := metrics.NewMetrics("analytics")
	httpClient := httpclient.NewClient(httpclient.Config{
		ServiceName: "analytics",
		Timeout:     viper.GetDuration("marketdata.timeout"),
	}, logger, metricsInstance)

	marketData := client.NewMarketDataClient(viper.GetString("marketdata.base_url"), httpClient)

	cacheTTL := viper.GetDuration("marketdata.cache_ttl")
	if cacheTTL == 0 {
		cacheTTL = time.Minute
	}
	cachedMarket := cache.NewMarketDataCache(marketData, cacheTTL)
	returnsProvider := client.NewReturnsAdapter(cachedMarket)

	// 5. Domain engines, 随机源显式注入以便审计复现
	seed := viper.GetUint64("random.seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	varEngine := domain.NewVaREngine(returnsProvider, rand.New(rand.NewPCG(seed, seed+1)))
	stressEngine := domain.NewStressTestEngine(cachedMarket, rand.New(rand.NewPCG(seed+2, seed+3)))
	perfCalc := domain.NewPerformanceCalculator(cachedMarket)

	// 6. Messaging
	publisher := messaging.NewKafkaEventPublisher(
		viper.GetStringSlice("kafka.brokers"),
		viper.GetString("kafka.topic"),
	)
	defer publisher.Close()

	// 7. Application & Interfaces
	appService := application.NewAnalyticsService(
		holdingRepo, ledgerRepo, cachedMarket,
		varEngine, stressEngine, perfCalc,
		publisher, logger.Logger,
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	analyticshttp.NewAnalyticsHandler(appService).RegisterRoutes(r)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "READY"}) })
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	// 8. Start & graceful shutdown
	g, ctx := errgroup.WithContext(context.Background())

	httpPort := viper.GetString("server.http_port")
	if httpPort == "" {
		httpPort = "8090"
	}
	server := &http.Server{Addr: fmt.Sprintf(":%s", httpPort), Handler: r}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down server...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
