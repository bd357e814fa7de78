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

	"drt-feedback/internal/dynamic"
	"drt-feedback/internal/feedback"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/zones"
)

type Config struct {
	DatabaseURL       string
	Scenario          string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string

	Iterations    int // 0 replays every stored iteration
	ReplayWorkers int
	OutputDir     string

	Feedback Feedback
}

// Feedback holds the estimation settings as configured, before parsing into
// typed values.
type Feedback struct {
	Method         string `validate:"oneof=Global Spatio Temporal SpatioTemporal"`
	SpatialType    string `validate:"oneof=ZonalSystem DynamicSystem"`
	Stat           string `validate:"oneof=avg average median min p_5 p_25 p_75 p_95 max weightedAvg weightedAverage"`
	UseWaitTime    bool
	UseDelayFactor bool

	TimeBinMinutes int     `validate:"gt=0"`
	HorizonHours   int     `validate:"gt=0"`
	DistanceBinM   float64 `validate:"eq=-1|gt=0"`
	LastBinStartM  float64 `validate:"gte=0"`

	Zones          string  `validate:"oneof=SquareGrid HexGrid Polygon Single"`
	CellSizeM      float64 `validate:"gt=0"`
	ZonesFile      string  `validate:"required_if=Zones Polygon"`
	ZoneIDProperty string

	Smoothing    string  `validate:"oneof=IterationBased MovingAverage SuccessiveAverage"`
	MSAWeight    float64 `validate:"gt=0,lte=1"`
	MovingWindow int     `validate:"gte=1"`

	DynamicType string  `validate:"oneof=KNN_CN KNN_PN FD"`
	KValue      int     `validate:"gte=1"`
	KShare      float64 `validate:"gt=0,lte=1"`
	KMax        int     `validate:"gte=1"`
	RadiusM     float64 `validate:"gt=0"`
	Decay       string  `validate:"oneof=POWER_DECAY INVERSE_DECAY EXPONENTIAL_DECAY SPATIAL_CORRELATION"`

	WriteDetailedStats bool

	// Route caps of replayed trips: MaxWaitTime and Alpha*direct+Beta.
	MaxWaitTime    float64 `validate:"gt=0"`
	MaxTravelAlpha float64 `validate:"gte=1"`
	MaxTravelBeta  float64 `validate:"gte=0"`
	RouterSpeedMps float64 `validate:"gt=0"`
	RouterDetour   float64 `validate:"gte=1"`
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// A scenario is resolved through the meta database.
		if db == "" && os.Getenv("SCENARIO") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using SCENARIO)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}
	cfg.Scenario = strings.TrimSpace(os.Getenv("SCENARIO"))

	// NATS is optional; empty disables snapshot publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "drt.feedback")
	cfg.LogNATSSubjects = envBool("LOG_NATS_SUBJECTS", false)

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.OutputDir = getenvDefault("OUTPUT_DIR", "output")

	var err error
	if cfg.Iterations, err = envInt("ITERATIONS", 0); err != nil || cfg.Iterations < 0 {
		return nil, fmt.Errorf("invalid ITERATIONS: %q", os.Getenv("ITERATIONS"))
	}
	if cfg.ReplayWorkers, err = envInt("REPLAY_WORKERS", 4); err != nil || cfg.ReplayWorkers <= 0 {
		return nil, fmt.Errorf("invalid REPLAY_WORKERS: %q", os.Getenv("REPLAY_WORKERS"))
	}

	fb, err := loadFeedback()
	if err != nil {
		return nil, err
	}
	cfg.Feedback = fb
	return cfg, nil
}

func loadFeedback() (Feedback, error) {
	fb := Feedback{
		Method:         getenvDefault("DRT_METHOD", "SpatioTemporal"),
		SpatialType:    getenvDefault("DRT_SPATIAL_TYPE", "ZonalSystem"),
		Stat:           getenvDefault("DRT_FEEDBACK", "avg"),
		UseWaitTime:    envBool("DRT_USE_WAIT_TIME", true),
		UseDelayFactor: envBool("DRT_USE_DELAY_FACTOR", true),
		Zones:          getenvDefault("DRT_ZONES", "SquareGrid"),
		ZonesFile:      os.Getenv("DRT_ZONES_FILE"),
		ZoneIDProperty: getenvDefault("DRT_ZONE_ID_PROPERTY", zones.DefaultIDProperty),
		Smoothing:      getenvDefault("DRT_SMOOTHING", "IterationBased"),
		DynamicType:    getenvDefault("DRT_DYNAMIC_TYPE", "KNN_CN"),
		Decay:          getenvDefault("DRT_DECAY", "POWER_DECAY"),

		WriteDetailedStats: envBool("WRITE_DETAILED_STATS", false),
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"DRT_TIME_BIN_MIN", &fb.TimeBinMinutes, 30},
		{"DRT_HORIZON_HOURS", &fb.HorizonHours, 24},
		{"DRT_MOVING_WINDOW", &fb.MovingWindow, 5},
		{"DRT_K_VALUE", &fb.KValue, 10},
		{"DRT_K_MAX", &fb.KMax, dynamic.DefaultKMax},
	}
	for _, v := range ints {
		n, err := envInt(v.key, v.def)
		if err != nil {
			return fb, fmt.Errorf("invalid %s: %q", v.key, os.Getenv(v.key))
		}
		*v.dst = n
	}

	floats := []struct {
		key string
		dst *float64
		def float64
	}{
		{"DRT_DISTANCE_BIN_M", &fb.DistanceBinM, 1500},
		{"DRT_LAST_BIN_START_M", &fb.LastBinStartM, 10000},
		{"DRT_CELL_SIZE_M", &fb.CellSizeM, 500},
		{"DRT_MSA_WEIGHT", &fb.MSAWeight, 0.5},
		{"DRT_K_SHARE", &fb.KShare, 0.1},
		{"DRT_RADIUS_M", &fb.RadiusM, 1000},
		{"DRT_MAX_WAIT_TIME", &fb.MaxWaitTime, 600},
		{"DRT_MAX_TRAVEL_ALPHA", &fb.MaxTravelAlpha, 1.5},
		{"DRT_MAX_TRAVEL_BETA", &fb.MaxTravelBeta, 240},
		{"DRT_ROUTER_SPEED_MPS", &fb.RouterSpeedMps, 8.33},
		{"DRT_ROUTER_DETOUR", &fb.RouterDetour, 1.3},
	}
	for _, v := range floats {
		f, err := envFloat(v.key, v.def)
		if err != nil {
			return fb, fmt.Errorf("invalid %s: %q", v.key, os.Getenv(v.key))
		}
		*v.dst = f
	}

	if err := validator.New().Struct(fb); err != nil {
		return fb, fmt.Errorf("invalid feedback settings: %w", err)
	}
	return fb, nil
}

// Options parses the feedback settings into engine options.
func (f Feedback) Options(outputDir string) (feedback.Options, error) {
	method, err := feedback.ParseMethod(f.Method)
	if err != nil {
		return feedback.Options{}, err
	}
	spatial, err := feedback.ParseSpatialType(f.SpatialType)
	if err != nil {
		return feedback.Options{}, err
	}
	st, err := stats.ParseStat(f.Stat)
	if err != nil {
		return feedback.Options{}, err
	}
	kind, err := zones.ParseKind(f.Zones)
	if err != nil {
		return feedback.Options{}, err
	}
	return feedback.Options{
		Config: feedback.Config{
			Method:         method,
			SpatialType:    spatial,
			Stat:           st,
			UseWaitTime:    f.UseWaitTime,
			UseDelayFactor: f.UseDelayFactor,
		},
		TimeBin:      time.Duration(f.TimeBinMinutes) * time.Minute,
		Horizon:      time.Duration(f.HorizonHours) * time.Hour,
		DistanceBin:  f.DistanceBinM,
		LastBinStart: f.LastBinStartM,
		Zones: zones.Config{
			Kind:       kind,
			CellSize:   f.CellSizeM,
			ZonesFile:  f.ZonesFile,
			IDProperty: f.ZoneIDProperty,
		},
		Smoothing:    f.Smoothing,
		MovingWindow: f.MovingWindow,
		MSAWeight:    f.MSAWeight,
		Neighborhood: dynamic.NeighborhoodConfig{
			Kind:   f.DynamicType,
			K:      f.KValue,
			KShare: f.KShare,
			KMax:   f.KMax,
			Radius: f.RadiusM,
		},
		Decay:              f.Decay,
		OutputDir:          outputDir,
		WriteDetailedStats: f.WriteDetailedStats,
	}, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func envFloat(k string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
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
