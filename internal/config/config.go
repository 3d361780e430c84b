package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env                string
	MongoURI           string
	MongoDB            string
	ServerAddr         string
	AppBaseURL         string
	FrontendOrigin     string
	RateLimitBookings  int
	RateLimitAuth      int
	RateLimitWindowSec int
	RedisURL           string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CacheTTLSeconds    int
	JWTSecret          string
	AccessTTLMinutes   int
	RefreshTTLMinutes  int
	CookieSecure       bool
	StripeSecretKey    string
	StripeWebhookSecret string
	DailyAPIKey        string
	DailyAPIURL        string
	BrevoAPIKey        string
	BrevoSenderEmail   string
	BrevoSenderName    string
	BrevoSandbox       bool
	Timezone           *time.Location
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func Load() (*Config, error) {
	loadDotEnv(".env")
	loc, err := time.LoadLocation(getEnv("TZ", "Australia/Sydney"))
	if err != nil {
		return nil, err
	}

	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017/clinic")
	mongoDB := getEnv("MONGO_DB", "")
	if mongoDB == "" {
		mongoDB = mongoDBFromURI(mongoURI)
	}
	if mongoDB == "" {
		mongoDB = "clinic"
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		MongoURI:            mongoURI,
		MongoDB:             mongoDB,
		ServerAddr:          getEnv("SERVER_ADDR", ":8080"),
		AppBaseURL:          getEnv("APP_BASE_URL", "http://localhost:3000"),
		FrontendOrigin:      getEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		RateLimitBookings:   getEnvInt("RATE_LIMIT_BOOKINGS", 10),
		RateLimitAuth:       getEnvInt("RATE_LIMIT_AUTH", 5),
		RateLimitWindowSec:  getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		CacheTTLSeconds:     getEnvInt("CACHE_TTL_SECONDS", 60),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		AccessTTLMinutes:    getEnvInt("ACCESS_TTL_MINUTES", 15),
		RefreshTTLMinutes:   getEnvInt("REFRESH_TTL_MINUTES", 43200),
		CookieSecure:        getEnv("COOKIE_SECURE", "false") == "true",
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		DailyAPIKey:         getEnv("DAILY_API_KEY", ""),
		DailyAPIURL:         getEnv("DAILY_API_URL", "https://api.daily.co/v1"),
		BrevoAPIKey:         getEnv("BREVO_API_KEY", ""),
		BrevoSenderEmail:    getEnv("BREVO_SENDER_EMAIL", ""),
		BrevoSenderName:     getEnv("BREVO_SENDER_NAME", ""),
		BrevoSandbox:        getEnv("BREVO_SANDBOX", "false") == "true",
		Timezone:            loc,
	}

	return cfg, nil
}

func mongoDBFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return ""
	}
	// mongodb URIs sometimes include extra path segments; only the first one is the db name.
	if idx := strings.Index(db, "/"); idx >= 0 {
		db = db[:idx]
	}
	return db
}

func loadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
