package pipeline

import (
	"fmt"
	"time"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/config"
	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// Dirs locates every artifact directory of a data tree.
type Dirs struct {
	FloodMaps         string
	StaticImages      string
	StaticMerged      string
	GroundTruth       string
	GroundTruthMerged string
	Published         string
	DatesCSV          string // empty disables the dates table
}

// RetryPolicy bounds retries of external calls.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options tunes a pass.
type Options struct {
	Dirs                Dirs
	Stages              []string
	Workers             int
	KeepStreams         bool
	PermanentWaterBand  int
	PermanentWaterValue float64
	Vocabulary          domain.Vocabulary
	AOIAliases          map[string]string
	PublishPrefix       string
	Retry               RetryPolicy
}

// OptionsFromConfig resolves the vocabulary and copies the pass settings.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	vocab, err := domain.LookupVocabulary(cfg.VocabularyVersion)
	if err != nil {
		return Options{}, fmt.Errorf("VOCABULARY_VERSION: %w", err)
	}
	return Options{
		Dirs: Dirs{
			FloodMaps:         cfg.FloodMapDir,
			StaticImages:      cfg.StaticImagesDir,
			StaticMerged:      cfg.StaticMergedDir,
			GroundTruth:       cfg.GroundTruthDir,
			GroundTruthMerged: cfg.GroundTruthMergedDir,
			Published:         cfg.PublishedDir,
			DatesCSV:          cfg.DatesCSV,
		},
		Stages:              cfg.Stages,
		Workers:             cfg.Workers,
		KeepStreams:         cfg.KeepStreams,
		PermanentWaterBand:  cfg.PermanentWaterBand,
		PermanentWaterValue: cfg.PermanentWaterValue,
		Vocabulary:          vocab,
		AOIAliases:          cfg.AOIAliases,
		PublishPrefix:       cfg.PublishPrefix,
		Retry: RetryPolicy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		},
	}, nil
}

func (o Options) withDefaults() Options {
	if len(o.Stages) == 0 {
		o.Stages = config.AllStages
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.PermanentWaterBand < 1 {
		o.PermanentWaterBand = 2
	}
	if o.Vocabulary.Version == "" {
		o.Vocabulary = domain.VocabularyV2
	}
	if o.Retry.MaxAttempts < 1 {
		o.Retry.MaxAttempts = 1
	}
	if o.Retry.InitialInterval <= 0 {
		o.Retry.InitialInterval = 500 * time.Millisecond
	}
	if o.Retry.MaxInterval < o.Retry.InitialInterval {
		o.Retry.MaxInterval = o.Retry.InitialInterval
	}
	return o
}
