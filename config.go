package main

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds process settings, read from the environment with a .env
// file honored in development.
type Config struct {
	Addr        string
	DatabaseURL string
	SecretKey   string

	FrontendURL string
	BackendURL  string

	GoogleClientID     string
	GoogleClientSecret string
	GithubClientID     string
	GithubClientSecret string

	RetainEmptyRooms bool
	LogLevel         string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Addr:               getenv("ADDR", ":8080"),
		DatabaseURL:        getenv("DATABASE_URL", "postgres://localhost/collabcanvas"),
		SecretKey:          getenv("SECRET_KEY", "dev-secret-key-change-in-production"),
		FrontendURL:        getenv("FRONTEND_URL", "http://localhost:5173"),
		BackendURL:         getenv("BACKEND_URL", "http://localhost:8080"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GithubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GithubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		RetainEmptyRooms:   os.Getenv("RETAIN_EMPTY_ROOMS") == "true",
		LogLevel:           getenv("LOG_LEVEL", "info"),
	}
}
