package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	_ "bookingengine/api/swagger" // swagger docs
	"bookingengine/internal/config"
	"bookingengine/internal/database"
	"bookingengine/internal/handler"
	"bookingengine/internal/logger"
	"bookingengine/internal/middleware"
	"bookingengine/internal/repository"
	"bookingengine/internal/service"
	"bookingengine/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// route is implemented by every HTTP handler.
type route interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// asRoute tags a handler constructor so Fx adds it to the "routes" group.
func asRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(route)),
		fx.ResultTags(`group:"routes"`),
	)
}

func newDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.NewConnection(cfg.DSN(), cfg.AutoMigrate, log)
	if err != nil {
		return nil, err
	}
	log.Info("Connected to PostgreSQL successfully", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return db, nil
}

// newRouter builds the gin engine with CORS, swagger, health and websocket endpoints.
func newRouter(cfg *config.Config, hub *websocket.Hub, guard *middleware.Guard) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(hub, c, guard.Secret())
	})

	return router
}

func registerRoutes(router *gin.Engine, routes []route, log *zap.Logger) {
	for _, r := range routes {
		r.RegisterRoutes(router.Group(""))
	}
	log.Info("Routes registered", zap.Int("handlers", len(routes)))
}

var registerRoutesWithAnnotation = fx.Annotate(
	registerRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// startServer runs the hub and the HTTP server for the lifetime of the app.
func startServer(lc fx.Lifecycle, router *gin.Engine, hub *websocket.Hub, cfg *config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	hubCtx, cancelHub := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go hub.Run(hubCtx)
			go func() {
				log.Info("Server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			cancelHub()
			_ = log.Sync()
			return err
		},
	})
}

// @title           Booking Rules Engine API
// @version         1.0
// @description     Booking rule evaluation and approval routing for shared luxury assets.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app := fx.New(
		fx.Provide(
			config.Load,
			logger.New,
			newDatabase,

			repository.NewTransactionManager,
			repository.NewTierRepository,
			repository.NewBookingRuleRepository,
			repository.NewReservationRepository,
			repository.NewRuleApprovalRepository,
			repository.NewAuditRepository,

			websocket.NewHub,
			func(h *websocket.Hub) service.EventPublisher { return h },
			service.NewApprovalNotifier,

			service.NewBookingService,
			service.NewApprovalService,
			service.NewRuleService,
			service.NewAuditService,

			middleware.NewGuard,
			newRouter,

			asRoute(handler.NewBookingHandler),
			asRoute(handler.NewApprovalHandler),
			asRoute(handler.NewRuleHandler),
			asRoute(handler.NewAuditHandler),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			registerRoutesWithAnnotation,
			startServer,
		),
	)

	app.Run()
}
