package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stassinopoulosari/data503-trimet-weather/internal/db"
)

// Portland, OR.
const (
	defaultLat = 45.5152
	defaultLon = -122.6784
)

type Config struct {
	TrimetAppID   string  `validate:"required"`
	WeatherAPIKey string  `validate:"required"`
	WeatherLat    float64 `validate:"gte=-90,lte=90"`
	WeatherLon    float64 `validate:"gte=-180,lte=180"`
	WeatherUnits  string  `validate:"oneof=standard metric imperial"`

	DatabaseURL     string        `validate:"required"`
	DBRetryInterval time.Duration `validate:"gt=0s"`

	TrimetInterval   time.Duration `validate:"gt=0s"`
	WeatherInterval  time.Duration `validate:"gt=0s"`
	FetchTimeout     time.Duration `validate:"gt=0s"`
	WriteConcurrency int           `validate:"gte=1,lte=256"`

	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required"`
	LogNATSSubjects   bool

	MetricsAddr string
	Location    *time.Location
}

// source resolves a key from the environment first, then from the optional
// OBSERVER_CONFIG yaml file.
type source struct {
	file map[string]string
}

func (s source) get(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return s.file[k]
}

func (s source) getDefault(k, def string) string {
	if v := s.get(k); v != "" {
		return v
	}
	return def
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	file, err := loadFile(os.Getenv("OBSERVER_CONFIG"))
	if err != nil {
		return nil, err
	}
	src := source{file: file}
	cfg := &Config{}

	cfg.TrimetAppID = src.get("TRIMET_APP_ID")
	cfg.WeatherAPIKey = src.get("OPENWEATHER_API_KEY")
	cfg.WeatherUnits = strings.ToLower(src.getDefault("WEATHER_UNITS", "imperial"))
	if cfg.WeatherLat, err = parseFloat(src, "WEATHER_LAT", defaultLat); err != nil {
		return nil, err
	}
	if cfg.WeatherLon, err = parseFloat(src, "WEATHER_LON", defaultLon); err != nil {
		return nil, err
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		src.get("DATABASE_URL"),
		src.get("PG_DSN"),
	)
	sslmode := src.get("PGSSLMODE")
	if dsn == "" {
		host := src.getDefault("PGHOST", "127.0.0.1")
		port := src.getDefault("PGPORT", "5432")
		user := src.getDefault("PGUSER", "postgres")
		pass := src.get("PGPASSWORD")
		name := src.get("PGDATABASE")
		if name == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", urlEscape(user), urlEscape(pass), host, port, name)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s", urlEscape(user), host, port, name)
		}
		if sslmode == "" {
			sslmode = "disable"
		}
	}
	// PG_TLS / PG_TLS_VERIFY override whatever sslmode the DSN carries.
	if tls, verify := src.get("PG_TLS"), src.get("PG_TLS_VERIFY"); tls != "" || verify != "" {
		sslmode = db.SSLModeFor(parseBool(firstNonEmpty(tls, "true")), parseBool(firstNonEmpty(verify, "true")))
	}
	if cfg.DatabaseURL, err = db.WithSSLMode(dsn, sslmode); err != nil {
		return nil, err
	}

	if cfg.DBRetryInterval, err = parseDuration(src, "DB_RETRY_INTERVAL_MS", time.Millisecond, db.DefaultRetryInterval); err != nil {
		return nil, err
	}
	if cfg.TrimetInterval, err = parseDuration(src, "TRIMET_INTERVAL_SEC", time.Second, time.Minute); err != nil {
		return nil, err
	}
	if cfg.WeatherInterval, err = parseDuration(src, "WEATHER_INTERVAL_SEC", time.Second, 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration(src, "FETCH_TIMEOUT_SEC", time.Second, 20*time.Second); err != nil {
		return nil, err
	}
	if v := src.get("WRITE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WRITE_CONCURRENCY: %q", v)
		}
		cfg.WriteConcurrency = n
	} else {
		cfg.WriteConcurrency = 8
	}

	// Empty NATS_URL disables publishing.
	cfg.NATSURL = src.get("NATS_URL")
	cfg.NATSSubjectPrefix = src.getDefault("NATS_SUBJECT_PREFIX", "observer")
	cfg.LogNATSSubjects = parseBool(src.get("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = src.get("METRICS_ADDR")

	tzName := src.get("TZ")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadFile reads a flat yaml mapping of the same keys as the environment.
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read OBSERVER_CONFIG: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func parseDuration(src source, k string, unit, def time.Duration) (time.Duration, error) {
	v := src.get(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return time.Duration(n) * unit, nil
}

func parseFloat(src source, k string, def float64) (float64, error) {
	v := src.get(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
