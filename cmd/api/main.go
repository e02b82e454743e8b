package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/controller"
	"tightship_backend/internal/middleware"
	"tightship_backend/internal/model"
	"tightship_backend/pkg/billing"
	"tightship_backend/pkg/config"
	"tightship_backend/pkg/cron"
	"tightship_backend/pkg/database"
	"tightship_backend/pkg/dunning"
	"tightship_backend/pkg/email"
	"tightship_backend/pkg/idempotency"
	"tightship_backend/pkg/plan"
	"tightship_backend/pkg/ratelimit"
	"tightship_backend/pkg/seed"
	"tightship_backend/pkg/usage"
	"tightship_backend/pkg/utils/jwt"
	"tightship_backend/pkg/utils/storage"
)

type application struct {
	auth         *controller.AuthController
	restaurants  *controller.RestaurantController
	menus        *controller.MenuController
	products     *controller.ProductController
	subscription *controller.SubscriptionController
	webhooks     *controller.WebhookController
	public       *controller.PublicController
	uploads      *controller.UploadController
}

func setupRoutes(app *fiber.App, c *application, db *gorm.DB) {
	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", c.auth.Register)
	auth.Post("/login", c.auth.Login)

	// Protected routes
	protected := api.Group("/", middleware.AuthMiddleware())
	protected.Get("/me", c.auth.GetMe)

	// Restaurant routes with usage gating
	restaurants := protected.Group("/restaurants", middleware.RequireActiveSubscription(db))
	restaurants.Get("/", c.restaurants.ListMyRestaurants)
	restaurants.Post("/", c.restaurants.CreateRestaurant)
	restaurants.Put("/:id", middleware.CheckRestaurantOwnership(db), c.restaurants.UpdateRestaurant)
	restaurants.Delete("/:id", middleware.CheckRestaurantOwnership(db), c.restaurants.DeleteRestaurant)

	// Menu and product routes, scoped under an owned restaurant
	menus := restaurants.Group("/:id/menus", middleware.CheckRestaurantOwnership(db))
	menus.Get("/", c.menus.ListMenus)
	menus.Post("/", c.menus.CreateMenu)
	menus.Get("/export", middleware.CheckFeatureAccess(db, plan.CSVExport), c.menus.ExportMenus)
	menus.Put("/:menu_id", c.menus.UpdateMenu)
	menus.Delete("/:menu_id", c.menus.DeleteMenu)
	menus.Get("/:menu_id/products", c.products.ListProducts)
	menus.Post("/:menu_id/products", c.products.CreateProduct)

	products := protected.Group("/products", middleware.RequireActiveSubscription(db))
	products.Put("/:product_id", c.products.UpdateProduct)
	products.Delete("/:product_id", c.products.DeleteProduct)
	if c.uploads != nil {
		products.Post("/:product_id/photo", c.uploads.UploadProductPhoto)
	}

	// Subscription routes
	subscriptions := api.Group("/subscriptions")
	subscriptions.Get("/plans", c.subscription.ListPlans)

	subProtected := subscriptions.Use(middleware.AuthMiddleware())
	subProtected.Post("/create-checkout-session", c.subscription.CreateCheckoutSession)
	subProtected.Post("/create-portal-session", c.subscription.CreatePortalSession)
	subProtected.Post("/cancel-subscription", c.subscription.CancelSubscription)
	subProtected.Get("/my", c.subscription.GetMySubscription)

	// Public menu API, keyed by X-API-Key
	api.Get("/public/menus/:restaurant_slug", c.public.GetMenu)

	// Stripe webhook
	api.Post("/webhook", c.webhooks.HandleStripeWebhook)

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load configuration")
	}

	jwt.Init(cfg.JWT.Secret)

	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}

	err = database.Migrate(db,
		&model.Organization{},
		&model.User{},
		&model.Plan{},
		&model.Subscription{},
		&model.Restaurant{},
		&model.Menu{},
		&model.Product{},
	)
	if err != nil {
		log.Warn().Err(err).Msg("migration warning")
	}

	if err := seed.Plans(db, cfg.Stripe.Prices, log); err != nil {
		log.Fatal().Err(err).Msg("could not seed plans")
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)

	var mailer *email.Service
	if cfg.Email.ResendAPIKey != "" {
		mailer, err = email.NewService(cfg.Email.ResendAPIKey, cfg.Email.From, log)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize email service")
		}
	} else {
		log.Warn().Msg("RESEND_API_KEY not set, transactional email disabled")
	}

	provider := billing.NewStripeProvider(cfg.Stripe.SecretKey, log)

	dunningManager := dunning.NewManager(db, dunning.Policy{
		GracePeriodDays:      cfg.Billing.GracePeriodDays,
		CriticalFailureCount: cfg.Billing.CriticalFailureCount,
		GraceWarningDays:     cfg.Billing.GraceWarningDays,
	}, mailerOrNil(mailer), log)

	usageSvc := usage.NewService(db, rdb, cfg.App.UpgradeURL)
	ingestor := billing.NewIngestor(db, dunningManager, ingestMailerOrNil(mailer), log)
	dedupStore := idempotency.NewStore(rdb, cfg.Billing.EventDedupTTL)
	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	var uploads *controller.UploadController
	if cfg.Storage.AccessKey != "" {
		store, err := storage.NewObjectStore(context.Background(), cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize object storage")
		}
		uploads = controller.NewUploadController(db, store, log)
	} else {
		log.Warn().Msg("R2_ACCESS_KEY not set, photo uploads disabled")
	}

	controllers := &application{
		auth:         controller.NewAuthController(db, mailer, log),
		restaurants:  controller.NewRestaurantController(db, usageSvc, log),
		menus:        controller.NewMenuController(db, log),
		products:     controller.NewProductController(db, usageSvc, log),
		subscription: controller.NewSubscriptionController(db, provider, usageSvc, dunningManager, mailer, cfg.App, log),
		webhooks:     controller.NewWebhookController(cfg.Stripe.WebhookSecret, ingestor, dedupStore, log),
		public:       controller.NewPublicController(db, usageSvc, limiter, provider, log),
		uploads:      uploads,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled request error")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error",
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New())

	setupRoutes(app, controllers, db)

	dunningCron, err := cron.NewDunningCron(dunningManager, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize dunning cron")
	}
	dunningCron.Start()

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx := dunningCron.Stop()
	<-shutdownCtx.Done()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("redis shutdown error")
	}
	if err := database.Close(db); err != nil {
		log.Error().Err(err).Msg("database shutdown error")
	}
}

// mailerOrNil keeps a typed nil out of the dunning.Mailer interface.
func mailerOrNil(mailer *email.Service) dunning.Mailer {
	if mailer == nil {
		return nil
	}
	return mailer
}

func ingestMailerOrNil(mailer *email.Service) billing.Mailer {
	if mailer == nil {
		return nil
	}
	return mailer
}
