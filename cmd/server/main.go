package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/crossposthq/crosspost/configs"
	"github.com/crossposthq/crosspost/internal/api/handlers"
	"github.com/crossposthq/crosspost/internal/api/middleware"
	job "github.com/crossposthq/crosspost/internal/jobs"
	"github.com/crossposthq/crosspost/internal/models"
	"github.com/crossposthq/crosspost/internal/platform"
	"github.com/crossposthq/crosspost/internal/queue"
	"github.com/crossposthq/crosspost/internal/repository"
	"github.com/crossposthq/crosspost/internal/service"
	"github.com/crossposthq/crosspost/pkg/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	v, err := vault.New([]byte(cfg.SecretKey))
	if err != nil {
		log.Fatalf("Failed to initialize token vault: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	accountRepo := repository.NewConnectedAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)

	registry := platform.NewRegistry()
	registry.Register(models.PlatformInstagram, platform.NewInstagram(*cfg, http.DefaultClient))

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	r2Service := service.NewR2Service(*cfg)
	postService := service.NewPostService(db, postRepo, accountRepo, mediaAssetRepo, postMediaRepo, r2Service)
	accountService := service.NewAccountService(accountRepo)
	handshakeService := service.NewHandshakeService(*cfg, registry, v, accountRepo)
	dispatcherService := service.NewDispatcherService(postRepo, accountRepo, postMediaRepo, mediaAssetRepo, registry, v)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	account := handlers.NewAccountHandler(accountService, handshakeService, *cfg)
	app.Get("/auth/:platform", authMiddleware.AuthMiddleware(), account.ConnectAccount)
	app.Get("/auth/:platform/callback", authMiddleware.AuthMiddleware(), account.CallbackHandler)

	dispatch := handlers.NewDispatchHandler(dispatcherService, *cfg)
	app.Post("/internal/dispatch", dispatch.Dispatch)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/remove", user.DeleteUser)

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/update", post.UpdatePost)
	api.Post("/posts/remove", post.RemovePost)
	api.Post("/posts/:id/publish", post.PublishPost)

	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/remove", account.DisconnectAccount)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, registry, v)

	//queue
	queueW := queue.NewQueue(dispatcherService)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", func() {
		if _, err := dispatcherService.Sweep(context.Background()); err != nil {
			log.Printf("dispatch sweep: %v", err)
		}
	})
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
