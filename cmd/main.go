package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	firebase "firebase.google.com/go"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"google.golang.org/api/option"

	"ridepass/internal/config"
	"ridepass/internal/services"
	"ridepass/utils"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
	cfg := config.LoadConfig()

	port := os.Getenv("PORT")
	if port == "" {
		if cfg.Server.Address != "" {
			port = cfg.Server.Address
		} else {
			port = ":4001"
		}
	} else {
		port = ":" + port
	}

	addr := flag.String("addr", port, "HTTP network address")
	flag.Parse()

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	db, err := openDB(cfg.Database.URL)
	if err != nil {
		errorLog.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	billing, err := services.NewPlayBillingService(ctx, services.PlayBillingConfig{
		PackageName:        cfg.GooglePlay.PackageName,
		ServiceAccountFile: cfg.GooglePlay.ServiceAccountFile,
	})
	if err != nil {
		errorLog.Fatalf("google play client: %v", err)
	}

	deps := appDeps{
		cfg:      cfg,
		db:       db,
		billing:  billing,
		errorLog: errorLog,
		infoLog:  infoLog,
	}

	if cfg.Firebase.CredentialsFile != "" {
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		if err != nil {
			errorLog.Fatalf("firebase app: %v", err)
		}
		deps.messaging, err = app.Messaging(ctx)
		if err != nil {
			errorLog.Fatalf("firebase messaging: %v", err)
		}
		deps.authClient, err = app.Auth(ctx)
		if err != nil {
			errorLog.Fatalf("firebase auth: %v", err)
		}
	} else {
		infoLog.Print("firebase credentials not configured, push fan-out disabled")
	}

	if cfg.Auth.SigningKey != "" {
		deps.tokenManager, err = utils.NewManager(cfg.Auth.SigningKey)
		if err != nil {
			errorLog.Fatalf("token manager: %v", err)
		}
	}

	if cfg.Redis.Addr != "" {
		deps.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.Archive.Bucket != "" {
		deps.archiver, err = utils.NewS3Archiver(utils.ArchiveConfig{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			errorLog.Fatalf("notification archive: %v", err)
		}
	}

	app := initializeApp(deps)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         *addr,
		ErrorLog:     errorLog,
		Handler:      addSecurityHeaders(c.Handler(app.routes())),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	infoLog.Printf("Starting server on %s", *addr)
	if err := srv.ListenAndServe(); err != nil {
		errorLog.Fatal(err)
	}
}
