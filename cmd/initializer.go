package main

import (
	"database/sql"
	"log"
	"net/http"

	"firebase.google.com/go/auth"
	"firebase.google.com/go/messaging"
	"github.com/redis/go-redis/v9"

	"ridepass/internal/config"
	"ridepass/internal/handlers"
	"ridepass/internal/repositories"
	"ridepass/internal/services"
	"ridepass/utils"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	db       *sql.DB
	cfg      config.Config

	authClient   *auth.Client
	tokenManager *utils.Manager

	purchaseRepo *repositories.PurchaseRepository
	instanceRepo *repositories.InstanceRepository

	purchaseManager *services.PurchaseManager
	userManager     *services.UserManager

	subscriptionHandler *handlers.SubscriptionHandler
	instanceHandler     *handlers.InstanceHandler
	rtdnHandler         *handlers.RTDNHandler
}

type appDeps struct {
	cfg          config.Config
	db           *sql.DB
	billing      *services.PlayBillingService
	messaging    *messaging.Client
	authClient   *auth.Client
	tokenManager *utils.Manager
	redis        *redis.Client
	archiver     *utils.S3Archiver
	errorLog     *log.Logger
	infoLog      *log.Logger
}

// initializeApp wires every collaborator once, at process start. No ambient
// singletons: anything a component needs is a field it was handed here.
func initializeApp(deps appDeps) *application {
	// Repositories
	purchaseRepo := repositories.NewPurchaseRepository(deps.db)
	instanceRepo := repositories.NewInstanceRepository(deps.db)

	// Services
	interpreter := services.NewPurchaseInterpreter(services.DefaultInterpreterPolicy())
	purchaseManager := services.NewPurchaseManager(deps.billing, purchaseRepo, interpreter)
	userManager := services.NewUserManager(purchaseRepo, purchaseManager, interpreter)

	notificationService := &services.NotificationService{
		Manager:   purchaseManager,
		Users:     userManager,
		Instances: instanceRepo,
		Dedup:     deps.redis,
	}
	if deps.messaging != nil {
		notificationService.Push = services.NewFCMService(deps.messaging)
	}
	if deps.archiver != nil {
		notificationService.Archive = deps.archiver
	}

	// Handlers
	subscriptionHandler := handlers.NewSubscriptionHandler(
		purchaseManager, userManager, deps.cfg.GooglePlay.PackageName, deps.cfg.Products)
	instanceHandler := handlers.NewInstanceHandler(instanceRepo)
	rtdnHandler := handlers.NewRTDNHandler(notificationService, deps.cfg.PubSub.VerificationToken)

	return &application{
		errorLog:            deps.errorLog,
		infoLog:             deps.infoLog,
		db:                  deps.db,
		cfg:                 deps.cfg,
		authClient:          deps.authClient,
		tokenManager:        deps.tokenManager,
		purchaseRepo:        purchaseRepo,
		instanceRepo:        instanceRepo,
		purchaseManager:     purchaseManager,
		userManager:         userManager,
		subscriptionHandler: subscriptionHandler,
		instanceHandler:     instanceHandler,
		rtdnHandler:         rtdnHandler,
	}
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		return nil, err
	}
	db.SetMaxIdleConns(35)
	log.Println("Successfully connected to database")
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
