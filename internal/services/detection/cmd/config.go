package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/agrispray/pkg/rabbitmq"
)

type Config struct {
	HTTPPort        int
	GRPCPort        int
	UpstreamTimeout time.Duration
	CommandTTL      time.Duration
	IDMode          string
	ProfilePolicy   string
	ProfilesPath    string
	ReferenceArea   float64
	ModelVersion    string

	StoreBackend string // memory | sqlite | mongo
	SQLiteDSN    string
	MongoURI     string
	MongoDB      string

	BlobBackend string // memory | fs | gridfs
	BlobDir     string
	BlobBaseURL string

	MQTTEnabled   bool
	Rabbit        rabbitmq.RabbitMQConfig
	SignalTopic   string
	SprayTemplate string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	OWMAPIKey      string
	MaxWindMS      float64
	MaxRainMM      float64
	SprayAvoidance time.Duration

	SignalProvider string // none | static | http | gemini
	InferenceURL   string
	GeminiAPIKey   string
	GeminiModel    string
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvFloat(k string, d float64) float64 {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// loadConfig reads the environment, seeded from envFile when it exists. Real env vars win.
func loadConfig(envFile string) Config {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	return Config{
		HTTPPort:        getenvInt("HTTP_PORT", 8080),
		GRPCPort:        getenvInt("GRPC_PORT", 50051),
		UpstreamTimeout: time.Duration(getenvInt("UPSTREAM_TIMEOUT_MS", 3000)) * time.Millisecond,
		CommandTTL:      time.Duration(getenvInt("COMMAND_TTL_SECONDS", 300)) * time.Second,
		IDMode:          getenv("ID_MODE", "random"),
		ProfilePolicy:   getenv("UNKNOWN_PROFILE_POLICY", "fallback"),
		ProfilesPath:    getenv("PROFILES_PATH", ""),
		ReferenceArea:   getenvFloat("REFERENCE_AREA_SQM", 1.0),
		ModelVersion:    getenv("MODEL_VERSION", ""),

		StoreBackend: strings.ToLower(getenv("STORE_BACKEND", "memory")),
		SQLiteDSN:    getenv("SQLITE_DSN", "data/agrispray.db"),
		MongoURI:     getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getenv("MONGO_DB", "agrispray"),

		BlobBackend: strings.ToLower(getenv("BLOB_BACKEND", "memory")),
		BlobDir:     getenv("BLOB_DIR", "data/images"),
		BlobBaseURL: getenv("BLOB_BASE_URL", ""),

		MQTTEnabled: getenvBool("RABBITMQ_ENABLED", true),
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:       getenv("RABBITMQ_HOST", "localhost"),
			Port:       getenvInt("RABBITMQ_PORT", 1883),
			User:       getenv("RABBITMQ_USER", "guest"),
			Password:   getenv("RABBITMQ_PASSWORD", "guest"),
			ClientID:   getenv("HOSTNAME", "agrispray-detection"),
			MaxRetries: getenvInt("RABBITMQ_MAX_RETRIES", 5),
		},
		SignalTopic:   getenv("SIGNAL_SUB_TOPIC", "detection/signal/#"),
		SprayTemplate: getenv("SPRAY_TOPIC_TEMPLATE", rabbitmq.DefaultSprayTopicTemplate),

		InfluxURL:    getenv("INFLUX_URL", ""),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    getenv("INFLUX_ORG", "sdcc"),
		InfluxBucket: getenv("INFLUX_BUCKET", "agri"),

		OWMAPIKey:      os.Getenv("OWM_API_KEY"),
		MaxWindMS:      getenvFloat("WEATHER_MAX_WIND_MS", 5),
		MaxRainMM:      getenvFloat("WEATHER_MAX_RAIN_MM", 0.5),
		SprayAvoidance: time.Duration(getenvInt("SPRAY_AVOIDANCE_HOURS", 24)) * time.Hour,

		SignalProvider: strings.ToLower(getenv("SIGNAL_PROVIDER", "none")),
		InferenceURL:   getenv("INFERENCE_URL", ""),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getenv("GEMINI_MODEL", ""),
	}
}
