package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-notes/pkg/auth"
	authapi "github.com/tendant/simple-notes/pkg/auth/api"
	"github.com/tendant/simple-notes/pkg/config"
	"github.com/tendant/simple-notes/pkg/login"
	"github.com/tendant/simple-notes/pkg/oidc"
	oidcapi "github.com/tendant/simple-notes/pkg/oidc/api"
	"github.com/tendant/simple-notes/pkg/ratelimit"
	"github.com/tendant/simple-notes/pkg/settings"
	"github.com/tendant/simple-notes/pkg/tokengenerator"
	"github.com/tendant/simple-notes/pkg/user"
)

type JwtConfig struct {
	JwtSecret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer    string `env:"JWT_ISSUER" env-default:"simple-notes"`
	Audience  string `env:"JWT_AUDIENCE" env-default:"simple-notes"`
}

type OidcEnvConfig struct {
	Enabled             string `env:"OIDC_ENABLED"`
	IssuerURL           string `env:"OIDC_ISSUER_URL"`
	ClientID            string `env:"OIDC_CLIENT_ID"`
	ClientSecret        string `env:"OIDC_CLIENT_SECRET"`
	ProviderName        string `env:"OIDC_PROVIDER_NAME"`
	DisableInternalAuth bool   `env:"DISABLE_INTERNAL_AUTH" env-default:"false"`
	AppURL              string `env:"APP_URL" env-default:"http://localhost:3000"`
	UploadsDir          string `env:"UPLOADS_DIR" env-default:"/data/uploads/profiles"`
}

type RateLimitConfig struct {
	MaxRequests int           `env:"AUTH_RATE_LIMIT_MAX" env-default:"20"`
	Window      time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" env-default:"1m"`
}

type Config struct {
	DbConfig        config.DatabaseConfig
	AppConfig       app.AppConfig
	JwtConfig       JwtConfig
	OidcEnvConfig   OidcEnvConfig
	RateLimitConfig RateLimitConfig
}

func (c OidcEnvConfig) toEnvConfig() oidc.EnvConfig {
	return oidc.EnvConfig{
		EnabledSet:          c.Enabled != "",
		Enabled:             c.Enabled == "true",
		IssuerURL:           c.IssuerURL,
		ClientID:            c.ClientID,
		ClientSecret:        c.ClientSecret,
		ProviderName:        c.ProviderName,
		DisableInternalAuth: c.DisableInternalAuth,
		AppURL:              c.AppURL,
	}
}

func main() {
	loadEnvFile()

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	dbConfig := cfg.DbConfig.ToDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}

	userRepo := user.NewPostgresRepository(pool)
	userService := user.NewService(userRepo)

	settingsRepo := settings.NewPostgresRepository(pool)
	settingsService := settings.NewService(settingsRepo)

	refreshRepo := auth.NewPostgresRefreshTokenRepository(pool)
	hasher := login.NewBcryptHasher()
	tokenGen := tokengenerator.NewJwtTokenGenerator(
		cfg.JwtConfig.JwtSecret,
		cfg.JwtConfig.Issuer,
		cfg.JwtConfig.Audience,
	)

	authService := auth.NewService(userRepo, refreshRepo, settingsService, hasher, tokenGen)

	resolver := oidc.NewConfigResolver(cfg.OidcEnvConfig.toEnvConfig(), settingsService)
	providerClient := oidc.NewProviderClient(resolver)
	stateStore := oidc.NewStateStore()
	defer stateStore.Stop()

	avatars := oidc.NewAvatarStore(oidc.WithUploadsDir(cfg.OidcEnvConfig.UploadsDir))
	reconciler := oidc.NewReconciler(userRepo, settingsService, avatars)
	oidcService := oidc.NewService(authService, resolver, providerClient, stateStore, reconciler)

	authHandle := authapi.NewHandle(authService)
	oidcHandle := oidcapi.NewHandle(oidcService)
	adminHandle := oidcapi.NewAdminHandle(oidcService, userService, settingsService)

	limiter := ratelimit.New(cfg.RateLimitConfig.MaxRequests, cfg.RateLimitConfig.Window)
	defer limiter.Stop()

	tokenAuth := auth.NewJWTAuth(cfg.JwtConfig.JwtSecret)

	server.R.Route("/api/auth", func(r chi.Router) {
		// Credential-accepting endpoints sit behind the rate limiter.
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			authHandle.RegisterRoutes(r)
		})
		r.Route("/oidc", func(r chi.Router) {
			oidcHandle.RegisterRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator(tokenAuth))
			authHandle.RegisterProtectedRoutes(r)
		})
	})

	server.R.Route("/api/admin", func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		adminHandle.RegisterRoutes(r)
	})

	server.Run()
}

// loadEnvFile loads environment variables from .env file if it exists
// Only sets variables that are not already set in the environment
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		slog.Error("Failed to get executable path", "error", err)
		return
	}

	execDir := filepath.Dir(execPath)
	envFile := filepath.Join(execDir, ".env")

	// Also check current working directory
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, err := os.Getwd()
		if err != nil {
			slog.Error("Failed to get current working directory", "error", err)
			return
		}
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)

	if err := godotenv.Load(envFile); err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}

	slog.Info("Configuration loaded from .env file successfully")
}
