package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable of the service. Values come from the process
// environment, optionally pre-populated from a .env file.
type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeoIPDBPath string

	OverpassURL      string
	NominatimURL     string
	UserAgent        string
	BrandName        string
	ExcludedNames    []string
	SearchRadiusM    int
	SearchTimeout    time.Duration
	SearchMaxResults int

	EnrichLimit    int
	EnrichTimeout  time.Duration
	NominatimRPS   float64
	NominatimBurst int

	MaxRadiusKm  float64
	TopN         int
	SpeedKmh     float64
	ETAOffsetMin int

	DefaultLat    float64
	DefaultLon    float64
	LocateTimeout time.Duration

	AddressCacheTTL time.Duration
	SessionIdleTTL  time.Duration
	SeedPath        string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"PORT":               "8080",
	"REDIS_DB":           0,
	"OVERPASS_URL":       "https://overpass-api.de/api/interpreter",
	"NOMINATIM_URL":      "https://nominatim.openstreetmap.org",
	"USER_AGENT":         "nearest-store-service/1.0",
	"BRAND_NAME":         "Tambo",
	"EXCLUDED_NAMES":     "limatambo,cajatambo",
	"SEARCH_RADIUS_M":    1000,
	"SEARCH_TIMEOUT":     "3s",
	"SEARCH_MAX_RESULTS": 25,
	"ENRICH_LIMIT":       5,
	"ENRICH_TIMEOUT":     "2s",
	"NOMINATIM_RPS":      1.0,
	"NOMINATIM_BURST":    5,
	"MAX_RADIUS_KM":      3.0,
	"TOP_N":              5,
	"SPEED_KMH":          3.0,
	"ETA_OFFSET_MIN":     10,
	"DEFAULT_LAT":        -12.0464,
	"DEFAULT_LON":        -77.0428,
	"LOCATE_TIMEOUT":     "5s",
	"ADDRESS_CACHE_TTL":  "168h",
	"SESSION_IDLE_TTL":   "30m",
	"SEED_PATH":          "",
	"LOG_LEVEL":          "info",
	"LOG_FORMAT":         "console",
}

// Load reads .env (when present) and the environment into a validated Config.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: strings.TrimSpace(v.GetString("DATABASE_URL")),

		RedisAddr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		GeoIPDBPath: strings.TrimSpace(v.GetString("GEOIP_DB_PATH")),

		OverpassURL:      v.GetString("OVERPASS_URL"),
		NominatimURL:     strings.TrimRight(v.GetString("NOMINATIM_URL"), "/"),
		UserAgent:        v.GetString("USER_AGENT"),
		BrandName:        v.GetString("BRAND_NAME"),
		ExcludedNames:    splitList(v.GetString("EXCLUDED_NAMES")),
		SearchRadiusM:    v.GetInt("SEARCH_RADIUS_M"),
		SearchTimeout:    v.GetDuration("SEARCH_TIMEOUT"),
		SearchMaxResults: v.GetInt("SEARCH_MAX_RESULTS"),

		EnrichLimit:    v.GetInt("ENRICH_LIMIT"),
		EnrichTimeout:  v.GetDuration("ENRICH_TIMEOUT"),
		NominatimRPS:   v.GetFloat64("NOMINATIM_RPS"),
		NominatimBurst: v.GetInt("NOMINATIM_BURST"),

		MaxRadiusKm:  v.GetFloat64("MAX_RADIUS_KM"),
		TopN:         v.GetInt("TOP_N"),
		SpeedKmh:     v.GetFloat64("SPEED_KMH"),
		ETAOffsetMin: v.GetInt("ETA_OFFSET_MIN"),

		DefaultLat:    v.GetFloat64("DEFAULT_LAT"),
		DefaultLon:    v.GetFloat64("DEFAULT_LON"),
		LocateTimeout: v.GetDuration("LOCATE_TIMEOUT"),

		AddressCacheTTL: v.GetDuration("ADDRESS_CACHE_TTL"),
		SessionIdleTTL:  v.GetDuration("SESSION_IDLE_TTL"),
		SeedPath:        v.GetString("SEED_PATH"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.BrandName) == "" {
		errs = append(errs, errors.New("BRAND_NAME must not be empty"))
	}
	if c.SearchRadiusM <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_RADIUS_M must be positive, got %d", c.SearchRadiusM))
	}
	if c.SearchTimeout <= 0 || c.EnrichTimeout <= 0 || c.LocateTimeout <= 0 {
		errs = append(errs, errors.New("SEARCH_TIMEOUT, ENRICH_TIMEOUT and LOCATE_TIMEOUT must be positive"))
	}
	if c.EnrichLimit < 1 || c.TopN < 1 {
		errs = append(errs, errors.New("ENRICH_LIMIT and TOP_N must be at least 1"))
	}
	if c.MaxRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RADIUS_KM must be positive, got %v", c.MaxRadiusKm))
	}
	if c.SpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("SPEED_KMH must be positive, got %v", c.SpeedKmh))
	}
	if c.ETAOffsetMin < 0 {
		errs = append(errs, fmt.Errorf("ETA_OFFSET_MIN must not be negative, got %d", c.ETAOffsetMin))
	}
	if c.DefaultLat < -90 || c.DefaultLat > 90 || c.DefaultLon < -180 || c.DefaultLon > 180 {
		errs = append(errs, fmt.Errorf("DEFAULT_LAT/DEFAULT_LON out of range: %v,%v", c.DefaultLat, c.DefaultLon))
	}
	if c.NominatimRPS <= 0 || c.NominatimBurst < 1 {
		errs = append(errs, errors.New("NOMINATIM_RPS must be positive and NOMINATIM_BURST at least 1"))
	}
	return errors.Join(errs...)
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	out := make([]string, 0, 4)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
