package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// ERP connector (read-only order context for rule conditions)
	ERPDSN string // empty disables the connector

	// Triage engine tuning
	SLASweepInterval  time.Duration // how often the SLA monitor sweeps
	SLAWarningWindow  time.Duration // deadline proximity that produces SLA_WARNING
	UnassignedTimeout time.Duration // age without assignee that produces UNASSIGNED_TIMEOUT
	RuleCacheTTL      time.Duration // dispatcher rule cache lifetime
	EventQueueSize    int           // bounded queue between producers and dispatcher
	EventWorkers      int           // dispatcher worker goroutines
	NotifyQueueSize   int           // bounded queue into notification fan-out
	PushTimeout       time.Duration // per-session live push budget
	ActionTimeout     time.Duration // per-action execution budget
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-helpdesk"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-helpdesk"),

		ERPDSN: getEnv("ERP_DSN", ""),

		SLASweepInterval:  getDuration("SLA_SWEEP_INTERVAL", time.Minute),
		SLAWarningWindow:  getDuration("SLA_WARNING_WINDOW", time.Hour),
		UnassignedTimeout: getDuration("UNASSIGNED_TIMEOUT", 4*time.Hour),
		RuleCacheTTL:      getDuration("RULE_CACHE_TTL", 30*time.Second),
		EventQueueSize:    getInt("EVENT_QUEUE_SIZE", 1024),
		EventWorkers:      getInt("EVENT_WORKERS", 4),
		NotifyQueueSize:   getInt("NOTIFY_QUEUE_SIZE", 1024),
		PushTimeout:       getDuration("PUSH_TIMEOUT", 2*time.Second),
		ActionTimeout:     getDuration("ACTION_TIMEOUT", 10*time.Second),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
