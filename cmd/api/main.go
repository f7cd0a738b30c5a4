package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"storeapi/internal/config"
	"storeapi/internal/database"
	"storeapi/internal/loginguard"
	"storeapi/internal/middleware"
	"storeapi/internal/modules/auth"
	"storeapi/internal/modules/users"
	"storeapi/internal/repository"
	"storeapi/internal/store"
	"storeapi/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("level=fatal msg=\"config load failed\" err=%v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal msg=\"database connect failed\" err=%v", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatalf("level=fatal msg=\"migration failed\" err=%v", err)
	}

	var redisStore *store.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StoreTimeout)
	}
	shared := store.NewFailover(redisStore, store.NewMemoryStore())

	tokens := token.New(shared, cfg.AccessSecret, cfg.RefreshSecret, cfg.TokenIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	guard := loginguard.New(shared, cfg.GuardMaxAttempts, cfg.GuardBlockDuration)

	userRepo := repository.NewUserRepository(db)

	authHandler := auth.NewHandler(auth.NewService(userRepo, guard, tokens))
	usersHandler := users.NewHandler(users.NewService(userRepo, tokens))

	if cfg.AppEnv == "prod" || cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.ErrorLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(shared, middleware.GeneralBucket(cfg.RateGeneralCap, cfg.RateGeneralWindow)))

	v1 := r.Group("/api/v1")
	{
		// public auth endpoints carry the stricter auth bucket on top
		// of the general one
		public := v1.Group("/")
		public.Use(middleware.RateLimit(shared, middleware.AuthBucket(cfg.RateAuthCap, cfg.RateAuthWindow)))
		authHandler.RegisterPublicRoutes(public)

		protected := v1.Group("/")
		protected.Use(middleware.JWTAuth(tokens))
		protected.Use(middleware.RateLimit(shared, middleware.WriteBucket(cfg.RateWriteCap, cfg.RateWriteWindow)))
		protected.Use(middleware.RequestLock(shared, cfg.LockTTL))
		protected.Use(middleware.Idempotency(shared, cfg.IdempotencyTTL))
		{
			authHandler.RegisterProtectedRoutes(protected)
			usersHandler.RegisterRoutes(protected)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			usersHandler.RegisterAdminRoutes(admin)
		}
	}

	log.Printf("level=info msg=\"listening\" port=%s env=%s redis=%v", cfg.Port, cfg.AppEnv, cfg.RedisAddr != "")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("level=fatal msg=\"server stopped\" err=%v", err)
	}
}
