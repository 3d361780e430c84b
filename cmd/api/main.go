package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-backend/internal/appointments"
	"clinic-backend/internal/auth"
	"clinic-backend/internal/availability"
	"clinic-backend/internal/cache"
	"clinic-backend/internal/config"
	"clinic-backend/internal/db"
	"clinic-backend/internal/middleware"
	"clinic-backend/internal/models"
	"clinic-backend/internal/notifications"
	"clinic-backend/internal/payments"
	"clinic-backend/internal/settings"
	"clinic-backend/internal/users"
	"clinic-backend/internal/validation"
	"clinic-backend/internal/video"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mongo connected")
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		logger.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var cacheStore cache.Cache = cache.NewNoop()
	if cfg.RedisURL != "" || cfg.RedisAddr != "" {
		var redisCache *cache.RedisCache
		var err error
		if cfg.RedisURL != "" {
			redisCache, err = cache.NewRedisFromURL(cfg.RedisURL)
		} else {
			redisCache = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		if err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := redisCache.Ping(ctx); err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("redis connected")
		cacheStore = redisCache
	}

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	jwtManager := &auth.Manager{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  time.Duration(cfg.AccessTTLMinutes) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLMinutes) * time.Minute,
		Issuer:     "clinic-backend",
	}

	mailer := notifications.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox, cfg.Timezone)
	if mailer == nil {
		logger.Info("brevo mailer disabled")
	} else {
		logger.Info("brevo mailer enabled", slog.String("sender", cfg.BrevoSenderEmail), slog.Bool("sandbox", cfg.BrevoSandbox))
	}

	val := validation.New()
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second

	settingsRepo := settings.NewRepository(cols.ClinicSettings)
	settingsService := settings.NewService(settingsRepo)

	availabilityRepo := availability.NewRepository(cols.Availability)
	availabilityService := availability.NewService(availabilityRepo, cfg.Timezone)
	availabilityHandler := availability.NewHandler(availabilityService, val, logger, cacheStore)

	usersRepo := users.NewRepository(cols.Users)
	usersService := users.NewService(usersRepo, availabilityService)
	usersHandler := users.NewHandler(usersService, jwtManager, val, logger, cfg.CookieSecure)

	appointmentsRepo := appointments.NewRepository(cols.Appointments, cols.Payments)
	appointmentsService := appointments.NewService(appointmentsRepo, availabilityService, usersService, settingsService, cfg.Timezone)

	var bookingMailer appointments.Mailer
	var confirmMailer payments.Mailer
	if mailer != nil {
		bookingMailer = mailer
		confirmMailer = mailer
	}
	appointmentsHandler := appointments.NewHandler(appointmentsService, val, logger, cacheStore, cacheTTL, cfg.Timezone, usersService, bookingMailer)

	paymentsRepo := payments.NewRepository(cols.Payments)
	var checkout payments.CheckoutCreator
	if cfg.StripeSecretKey != "" {
		checkout = payments.NewStripeCheckout(cfg.StripeSecretKey)
	} else {
		logger.Warn("stripe disabled: no secret key")
	}
	paymentsService := payments.NewService(paymentsRepo, appointmentsRepo, usersService, checkout, cfg.AppBaseURL)
	paymentsHandler := payments.NewHandler(paymentsService, logger, cfg.StripeWebhookSecret, cfg.Timezone, cacheStore, usersService, confirmMailer)

	var roomProvider video.RoomProvider
	if daily := video.NewDailyClient(cfg.DailyAPIKey, cfg.DailyAPIURL); daily != nil {
		roomProvider = daily
	} else {
		logger.Warn("video disabled: no daily api key")
	}
	videoService := video.NewService(appointmentsRepo, usersService, roomProvider)
	videoHandler := video.NewHandler(videoService, val, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.FrontendOrigin))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	authLimiter := middleware.NewRateLimiter(cfg.RateLimitAuth, time.Duration(cfg.RateLimitWindowSec)*time.Second)
	bookingLimiter := middleware.NewRateLimiter(cfg.RateLimitBookings, time.Duration(cfg.RateLimitWindowSec)*time.Second)

	authenticate := middleware.Authenticate(jwtManager)
	doctorOnly := middleware.RequireRole(models.RoleDoctor)
	statusRoles := middleware.RequireRole(models.RoleDoctor, models.RoleReception, models.RoleClinicManager)

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(authRoutes chi.Router) {
			authRoutes.With(authLimiter.Middleware).Post("/register", usersHandler.Register)
			authRoutes.With(authLimiter.Middleware).Post("/login", usersHandler.Login)
			authRoutes.Post("/refresh", usersHandler.Refresh)
			authRoutes.Post("/logout", usersHandler.Logout)
			authRoutes.With(authenticate).Get("/me", usersHandler.Me)
		})

		api.Get("/doctors", usersHandler.Doctors)
		api.Get("/doctors/{id}/slots", appointmentsHandler.Slots)

		api.Group(func(protected chi.Router) {
			protected.Use(authenticate)

			protected.With(bookingLimiter.Middleware).Post("/appointments", appointmentsHandler.Book)
			protected.Get("/appointments", appointmentsHandler.List)
			protected.Get("/appointments/{id}", appointmentsHandler.Get)
			protected.Post("/appointments/{id}/cancel", appointmentsHandler.Cancel)
			protected.With(statusRoles).Patch("/appointments/{id}/status", appointmentsHandler.UpdateStatus)

			protected.Route("/availability", func(roster chi.Router) {
				roster.Use(doctorOnly)
				roster.Get("/", availabilityHandler.List)
				roster.Post("/", availabilityHandler.CreateWindow)
				roster.Post("/blocks", availabilityHandler.CreateBlock)
				roster.Delete("/{id}", availabilityHandler.Delete)
			})

			protected.Post("/payments/checkout", paymentsHandler.Checkout)

			protected.Route("/video", func(v chi.Router) {
				v.Post("/rooms", videoHandler.CreateRoom)
				v.Post("/tokens", videoHandler.CreateToken)
			})
		})

		// Stripe calls this directly; auth is the signature header.
		api.Post("/payments/webhook", paymentsHandler.Webhook)
	})

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
}
