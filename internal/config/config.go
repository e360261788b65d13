package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	GooglePlay struct {
		PackageName        string `yaml:"package_name"`
		ServiceAccountFile string `yaml:"service_account_file"`
	} `yaml:"google_play"`
	Firebase struct {
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"firebase"`
	Auth struct {
		// "firebase" verifies Firebase ID tokens; "jwt" verifies HMAC
		// tokens signed with signing_key (self-hosted deployments).
		Mode       string `yaml:"mode"`
		SigningKey string `yaml:"signing_key"`
	} `yaml:"auth"`
	PubSub struct {
		VerificationToken string `yaml:"verification_token"`
	} `yaml:"pubsub"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Archive struct {
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"archive"`
	// Products maps sellable skus to their type: one_time | recurring.
	Products map[string]string `yaml:"products"`
}

func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file %s: %v", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("Failed to unmarshal config data: %v", err)
	}

	// Secrets may come from the environment instead of the file.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("GOOGLE_PLAY_PACKAGE_NAME"); v != "" {
		cfg.GooglePlay.PackageName = v
	}
	if v := os.Getenv("GOOGLE_PLAY_SERVICE_ACCOUNT_FILE"); v != "" {
		cfg.GooglePlay.ServiceAccountFile = v
	}
	if v := os.Getenv("FIREBASE_CREDENTIALS_FILE"); v != "" {
		cfg.Firebase.CredentialsFile = v
	}
	if v := os.Getenv("AUTH_SIGNING_KEY"); v != "" {
		cfg.Auth.SigningKey = v
	}
	if v := os.Getenv("PUBSUB_VERIFICATION_TOKEN"); v != "" {
		cfg.PubSub.VerificationToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	return cfg
}
