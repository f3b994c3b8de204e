package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Depado/ginprom"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/wacrm/app/api/routes"
	"github.com/wacrm/pkg/config"
	"github.com/wacrm/pkg/crypto"
	"github.com/wacrm/pkg/database"
	"github.com/wacrm/pkg/domains/whatsapp"
	"github.com/wacrm/pkg/middleware"
	"github.com/wacrm/pkg/utils"
	"github.com/wacrm/pkg/wa"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func LaunchHttpServer(cfg *config.Config, log *zap.Logger) {
	log.Info("starting HTTP server")
	gin.SetMode(gin.ReleaseMode)
	utils.RegisterBindingValidations()

	app := gin.New()
	app.Use(gin.LoggerWithFormatter(func(log gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] - %s \"%s %s %s %d %s\"\n",
			log.TimeStamp.Format("2006-01-02 15:04:05"),
			log.ClientIP,
			log.Method,
			log.Path,
			log.Request.Proto,
			log.StatusCode,
			log.Latency,
		)
	}))
	app.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	app.Use(gin.Recovery())
	app.Use(otelgin.Middleware(cfg.App.Name))
	app.Use(middleware.ClaimIp())
	app.Use(cors.New(corsConfig(cfg.Allows)))

	p := ginprom.New(
		ginprom.Engine(app),
		ginprom.Subsystem("gin"),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/docs/*any"),
	)
	app.Use(p.Instrument())

	db := database.DBClient()

	gateway, err := crypto.NewGateway(cfg.Crypto.Key)
	if err != nil {
		log.Fatal("failed to initialize message encryption", zap.Error(err))
	}
	creds, err := wa.NewCredentialStore(cfg.WhatsApp.CredentialsDir, log.Named("credentials"))
	if err != nil {
		log.Fatal("failed to initialize credential store", zap.Error(err))
	}
	defer creds.Close()

	repo := whatsapp.NewRepo(db)
	registry := whatsapp.NewRegistry()
	pipeline := whatsapp.NewPipeline(repo, gateway, log.Named("ingest"))
	manager := whatsapp.NewManager(
		whatsapp.OptionsFromConfig(cfg.WhatsApp),
		repo,
		creds,
		wa.NewDialer(cfg.App.Name, log.Named("wa")),
		registry,
		pipeline,
		log.Named("sessions"),
	)

	restorer, err := whatsapp.NewRestorer(manager, repo, cfg.WhatsApp.RestoreWorkers, log.Named("restore"))
	if err != nil {
		log.Fatal("failed to initialize session restorer", zap.Error(err))
	}
	defer restorer.Release()
	queued, err := restorer.RestoreAllSessions(context.Background())
	if err != nil {
		log.Error("failed to restore sessions", zap.Error(err))
	}
	log.Info("session restore started", zap.Int("sessions", queued))

	sweeper, err := whatsapp.NewSweeper(cfg.WhatsApp.SweepSpec, whatsapp.DefaultSweepGrace, repo, registry, log.Named("sweeper"))
	if err != nil {
		log.Fatal("failed to initialize session sweeper", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	api := app.Group("/api/v1")

	// WhatsApp Routes
	whatsapp_service := whatsapp.NewService(manager, repo, gateway)
	routes.WhatsAppRoutes(api.Group("/whatsapp"), whatsapp_service)

	// Admin Routes
	routes.AdminRoutes(api.Group("/admin"), registry)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.App.Host, cfg.App.Port),
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server is listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	// Shutdown rejects new setups first, so pending restores drain quickly.
	manager.Shutdown()
	if err := restorer.Wait(shutdownCtx); err != nil {
		log.Warn("session restores still running at shutdown", zap.Error(err))
	}
}

func corsConfig(allows config.Allows) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Origin", "Accept"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(allows.Methods) > 0 {
		c.AllowMethods = allows.Methods
	}
	if len(allows.Headers) > 0 {
		c.AllowHeaders = allows.Headers
	}
	if len(allows.Origins) > 0 {
		c.AllowOrigins = allows.Origins
	}
	return c
}
