package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-pos-sync/internal/models"
)

// Load reads a .env file into the environment if one is present.
func Load(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("Warning: No .env file found")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ [CONFIG] %s=%q is not an integer, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("⚠️ [CONFIG] %s=%q is not a boolean, using %t", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Printf("⚠️ [CONFIG] %s=%q is not a positive duration, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func lowStockPolicy() models.LowStockPolicy {
	if getBool("LOW_STOCK_INCLUSIVE", false) {
		return models.LowStockInclusive
	}
	return models.LowStockStrict
}

// Server holds the remote store settings.
type Server struct {
	Port         string
	DBDriver     string
	DBDSN        string
	JWTSecret    string
	RequireAuth  bool
	CORSOrigins  []string
	OTLPEndpoint string
	ServiceName  string
	GeminiAPIKey string
	LowStock     models.LowStockPolicy
}

func LoadServer() Server {
	driver := getEnv("DB_DRIVER", "mysql")
	dsnDefault := ""
	if driver == "sqlite" {
		dsnDefault = "pos.db"
	}
	return Server{
		Port:         getEnv("PORT", "8080"),
		DBDriver:     driver,
		DBDSN:        getEnv("DB_DSN", dsnDefault),
		JWTSecret:    getEnv("JWT_SECRET", "change-me-pos-sync"),
		RequireAuth:  getBool("REQUIRE_AUTH", false),
		CORSOrigins:  getList("CORS_ORIGINS", "http://localhost:5173"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  getEnv("SERVICE_NAME", "pos-remote-store"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		LowStock:     lowStockPolicy(),
	}
}

// Agent holds the device agent settings.
type Agent struct {
	Port           string
	RemoteURL      string
	CachePath      string
	DeviceID       string
	SyncInterval   time.Duration
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	LowStock       models.LowStockPolicy

	// OperatorPassword is the password posctl seeded on the remote store;
	// empty means the placeholder.
	OperatorPassword string
}

func LoadAgent() Agent {
	return Agent{
		Port:           getEnv("AGENT_PORT", "8081"),
		RemoteURL:      strings.TrimRight(getEnv("REMOTE_URL", "http://localhost:8080"), "/"),
		CachePath:      getEnv("CACHE_PATH", "pos-cache.db"),
		DeviceID:       os.Getenv("DEVICE_ID"),
		SyncInterval:   getDuration("SYNC_INTERVAL", 30*time.Second),
		ProbeInterval:  getDuration("PROBE_INTERVAL", 5*time.Second),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 10*time.Second),
		BackoffInitial: getDuration("BACKOFF_INITIAL", 2*time.Second),
		BackoffMax:     getDuration("BACKOFF_MAX", 5*time.Minute),
		LowStock:       lowStockPolicy(),

		OperatorPassword: os.Getenv("SEED_PASSWORD"),
	}
}

// Admin holds the settings posctl needs; it shares the server's database variables.
type Admin struct {
	DBDriver string
	DBDSN    string
	// SeedPassword replaces the placeholder operator password when set.
	SeedPassword string
	BcryptCost   int
}

func LoadAdmin() Admin {
	s := LoadServer()
	return Admin{
		DBDriver:     s.DBDriver,
		DBDSN:        s.DBDSN,
		SeedPassword: os.Getenv("SEED_PASSWORD"),
		BcryptCost:   getInt("BCRYPT_COST", 10),
	}
}
