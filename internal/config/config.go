package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Stage names in execution order.
const (
	StageMerge     = "merge"
	StageRasterize = "rasterize"
	StageAggregate = "aggregate"
	StagePublish   = "publish"
)

// AllStages lists every stage in execution order.
var AllStages = []string{StageMerge, StageRasterize, StageAggregate, StagePublish}

// defaultAOIAliases maps truncated AOI names found on exported static images
// to the names used by the flood maps.
const defaultAOIAliases = "03MURAMBINDASW=03MURAMBINDASOUTHWEST," +
	"04MURAMBINDASE=04MURAMBINDASOUTHEAST," +
	"06RUSITUVALLEYSW=06RUSITUVALLEYSOUTHWEST," +
	"07RUSITUVALLEYSE=07RUSITUVALLEYSOUTHEAST"

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir              string
	FloodMapDir          string
	StaticImagesDir      string
	StaticMergedDir      string
	GroundTruthDir       string
	GroundTruthMergedDir string
	PublishedDir         string
	RegistryCSV          string
	DatesCSV             string

	KeepStreams         bool
	PermanentWaterBand  int
	PermanentWaterValue float64
	VocabularyVersion   string
	AOIAliases          map[string]string

	Workers int
	Stages  []string

	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	PublishBackend  string
	PublishBucket   string
	PublishPrefix   string
	PublishEndpoint string
	AWSRegion       string

	// Empty brokers disable notifications.
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	RunInterval     time.Duration
	RunSchedule     cron.Schedule // nil unless RUN_SCHEDULE is set
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
	Progress        bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "source-data")
	tables := filepath.Join(dataDir, "Copernicus_EMS_table")

	cfg := &Config{
		DataDir:              dataDir,
		FloodMapDir:          sharedcfg.EnvOrDefault("FLOODMAP_DIR", filepath.Join(dataDir, "Copernicus_EMS_metadata")),
		StaticImagesDir:      sharedcfg.EnvOrDefault("STATIC_IMAGES_DIR", filepath.Join(dataDir, "static-images")),
		StaticMergedDir:      sharedcfg.EnvOrDefault("STATIC_MERGED_DIR", filepath.Join(dataDir, "static-images-merged")),
		GroundTruthDir:       sharedcfg.EnvOrDefault("GROUND_TRUTH_DIR", filepath.Join(dataDir, "ground-truth")),
		GroundTruthMergedDir: sharedcfg.EnvOrDefault("GROUND_TRUTH_MERGED_DIR", filepath.Join(dataDir, "ground-truth-merged")),
		PublishedDir:         sharedcfg.EnvOrDefault("PUBLISHED_DIR", filepath.Join(dataDir, "ground-truth-published")),
		RegistryCSV:          sharedcfg.EnvOrDefault("REGISTRY_CSV", filepath.Join(tables, "tropical_ems_event_date.csv")),
		DatesCSV:             sharedcfg.EnvOrDefault("DATES_CSV", filepath.Join(tables, "static_images_dates.csv")),

		VocabularyVersion: sharedcfg.EnvOrDefault("VOCABULARY_VERSION", "v2"),

		PublishBackend:  sharedcfg.EnvOrDefault("PUBLISH_BACKEND", "none"),
		PublishBucket:   sharedcfg.EnvOrDefault("PUBLISH_BUCKET", ""),
		PublishPrefix:   sharedcfg.EnvOrDefault("PUBLISH_PREFIX", "tropical-floods-ground-truth"),
		PublishEndpoint: sharedcfg.EnvOrDefault("PUBLISH_ENDPOINT", ""),
		AWSRegion:       sharedcfg.EnvOrDefault("AWS_REGION", ""),

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "ground-truth-published"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}

	if brokers := sharedcfg.EnvOrDefault("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.KeepStreams, err = parseBool("KEEP_STREAMS", "true"); err != nil {
		return nil, err
	}
	if cfg.Progress, err = parseBool("PROGRESS", "false"); err != nil {
		return nil, err
	}
	if cfg.PermanentWaterBand, err = parseInt("PERMANENT_WATER_BAND", 2, 1, 64); err != nil {
		return nil, err
	}
	if cfg.Workers, err = parseInt("WORKERS", 1, 1, 64); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts, err = parseInt("RETRY_MAX_ATTEMPTS", 5, 1, 20); err != nil {
		return nil, err
	}
	if cfg.PermanentWaterValue, err = parseFloat("PERMANENT_WATER_VALUE", 80); err != nil {
		return nil, err
	}
	if cfg.RetryInitialInterval, err = parseDuration("RETRY_INITIAL_INTERVAL", "500ms", false); err != nil {
		return nil, err
	}
	if cfg.RetryMaxInterval, err = parseDuration("RETRY_MAX_INTERVAL", "10s", false); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = parseDuration("RUN_INTERVAL", "0", true); err != nil {
		return nil, err
	}
	if spec := sharedcfg.EnvOrDefault("RUN_SCHEDULE", ""); spec != "" {
		if cfg.RunSchedule, err = cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid RUN_SCHEDULE %q: %w", spec, err)
		}
		if cfg.RunInterval > 0 {
			return nil, errors.New("RUN_SCHEDULE and RUN_INTERVAL are mutually exclusive")
		}
	}
	if cfg.Stages, err = parseStages(sharedcfg.EnvOrDefault("STAGES", strings.Join(AllStages, ","))); err != nil {
		return nil, err
	}
	if cfg.AOIAliases, err = parseAliases(sharedcfg.EnvOrDefault("AOI_ALIASES", defaultAOIAliases)); err != nil {
		return nil, err
	}

	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		return nil, errors.New("RETRY_MAX_INTERVAL must not be shorter than RETRY_INITIAL_INTERVAL")
	}
	switch cfg.PublishBackend {
	case "none":
	case "gcs", "s3":
		if cfg.PublishBucket == "" {
			return nil, fmt.Errorf("PUBLISH_BUCKET is required when PUBLISH_BACKEND is %s", cfg.PublishBackend)
		}
	default:
		return nil, fmt.Errorf("invalid PUBLISH_BACKEND %q (want none, gcs or s3)", cfg.PublishBackend)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}

	return cfg, nil
}

// StageEnabled reports whether name is in the configured stage set.
func (c *Config) StageEnabled(name string) bool {
	return slices.Contains(c.Stages, name)
}

func parseBool(key, def string) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: must be an integer in [%d, %d]", key, s, lo, hi)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.FormatFloat(def, 'f', -1, 64))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

// parseStages accepts a comma-separated subset of AllStages in execution order.
func parseStages(s string) ([]string, error) {
	var out []string
	last := -1
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		idx := slices.Index(AllStages, name)
		if idx < 0 {
			return nil, fmt.Errorf("invalid STAGES: unknown stage %q", name)
		}
		if idx <= last {
			return nil, fmt.Errorf("invalid STAGES: %q is duplicated or out of order", name)
		}
		last = idx
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, errors.New("invalid STAGES: no stage selected")
	}
	return out, nil
}

// parseAliases reads "FROM=TO,FROM=TO". "-" disables aliasing.
func parseAliases(s string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s) == "-" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid AOI_ALIASES entry %q", part)
		}
		out[from] = to
	}
	return out, nil
}
