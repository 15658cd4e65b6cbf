package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName     string
	LogLevel        string
	FuzzEngine      string        // engine handed control after launch validation
	CoreCount       int           // fuzzing processes per campaign
	CampaignTimeout time.Duration // hard deadline for one engine run
	CrashDir        string        // local store for collected crash inputs
	SeedStoreDir    string        // local store for collected corpus entries
	WorkDir         string        // scratch space for engine input/output dirs

	// Optional integrations; each stays disabled when its URL is empty.
	DatabaseURL   string
	RedisURL      string
	RabbitMQURL   string
	OTLPTelemetry bool

	Profile Profile
}

// Profile is an optional YAML overlay for per-campaign settings.
type Profile struct {
	Engine       string   `yaml:"engine"`
	Cores        int      `yaml:"cores"`
	Timeout      string   `yaml:"timeout"`
	Dictionaries []string `yaml:"dictionaries"`
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	config := &AppConfig{
		ServiceName:     os.Getenv("SERVICE_NAME"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		FuzzEngine:      os.Getenv("FUZZ_ENGINE"),
		CoreCount:       parseInt(os.Getenv("CORE_COUNT"), 4),
		CampaignTimeout: parseDuration(os.Getenv("CAMPAIGN_TIMEOUT"), 24*time.Hour),
		CrashDir:        os.Getenv("CRASH_DIR"),
		SeedStoreDir:    os.Getenv("SEED_STORE_DIR"),
		WorkDir:         os.Getenv("WORK_DIR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		OTLPTelemetry:   parseBool(os.Getenv("OTLP_TELEMETRY"), false),
	}

	if config.ServiceName == "" {
		config.ServiceName = "fuzzshim"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.FuzzEngine == "" {
		config.FuzzEngine = "inproc"
	}
	if config.CrashDir == "" {
		config.CrashDir = "/tmp/fuzzshim/crashes"
	}
	if config.SeedStoreDir == "" {
		config.SeedStoreDir = "/tmp/fuzzshim/seeds"
	}
	if config.WorkDir == "" {
		config.WorkDir = "/tmp/fuzzshim/work"
	}

	profilePath := os.Getenv("FUZZSHIM_PROFILE")
	if profilePath == "" {
		profilePath = "fuzzshim.yaml"
	}
	if err := config.loadProfile(profilePath); err != nil {
		logger.Warn("failed to load campaign profile, using env values only",
			zap.String("path", profilePath), zap.Error(err))
	}

	return config
}

// loadProfile overlays the YAML campaign profile on the env config.
// A missing profile file is not an error.
func (c *AppConfig) loadProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return err
	}
	c.Profile = profile

	if profile.Engine != "" {
		c.FuzzEngine = profile.Engine
	}
	if profile.Cores > 0 {
		c.CoreCount = profile.Cores
	}
	if profile.Timeout != "" {
		c.CampaignTimeout = parseDuration(profile.Timeout, c.CampaignTimeout)
	}
	return nil
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
