package scheduler

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const tuningFileEnv = "SCHEDULER_TUNING_YAML"

//go:embed scheduler.yaml
var embeddedTuning []byte

// Duration is a time.Duration that unmarshals from YAML duration strings
// ("10m", "504h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("scheduler: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config carries every scheduling tuning value. The numbers are product
// defaults carried over from the original feed tuning, not derived or
// validated constants; treat them as configuration.
type Config struct {
	// LoopThreshold is the per-sitting loop count at which a loop gesture
	// starts driving transitions.
	LoopThreshold int `yaml:"loop_threshold"`
	// LoopShrink scales the current interval down on a threshold loop.
	LoopShrink float64 `yaml:"loop_shrink"`
	// LikeEaseBonus is added to the ease factor on a like.
	LikeEaseBonus float64 `yaml:"like_ease_bonus"`
	// SaveMultiplier scales the current interval on a save.
	SaveMultiplier float64 `yaml:"save_multiplier"`
	// SkipEasePenalty is subtracted from the ease factor on a skip.
	SkipEasePenalty float64 `yaml:"skip_ease_penalty"`
	// EaseFloor clamps the ease factor from below so one bad stretch cannot
	// bury a fact permanently.
	EaseFloor float64 `yaml:"ease_floor"`
	// EaseStart seeds the ease factor on first exposure.
	EaseStart float64 `yaml:"ease_start"`

	// FirstInterval is used when a positive signal arrives while no interval
	// has been established yet.
	FirstInterval Duration `yaml:"first_interval"`
	// SkipInterval is the fixed short resurface delay after a skip.
	SkipInterval Duration `yaml:"skip_interval"`
	// MinInterval floors every computed interval.
	MinInterval Duration `yaml:"min_interval"`
	// MasteredMinInterval floors the interval set by a save.
	MasteredMinInterval Duration `yaml:"mastered_min_interval"`
	// MaxInterval caps interval growth; mastered facts still resurface.
	MaxInterval Duration `yaml:"max_interval"`

	// NewRatio caps the share of never-seen facts in a session when due
	// reviews could fill it.
	NewRatio float64 `yaml:"new_ratio"`
	// QueueCacheTTL bounds how long a learner's queue snapshot may be served
	// unchanged (absent intervening gestures).
	QueueCacheTTL Duration `yaml:"queue_cache_ttl"`
}

// DefaultConfig returns the embedded tuning defaults.
func DefaultConfig() Config {
	cfg, err := parseConfig(embeddedTuning)
	if err != nil {
		// The embedded file ships with the binary; failing to parse it is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("scheduler: embedded tuning invalid: %v", err))
	}
	return cfg
}

// LoadConfig returns the embedded defaults, overridden by the YAML file
// named in SCHEDULER_TUNING_YAML when set. Override files only need the keys
// they change.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := os.Getenv(tuningFileEnv)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read scheduler tuning override: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse scheduler tuning override: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects tuning values the transition math cannot work with.
func (c Config) Validate() error {
	switch {
	case c.LoopThreshold < 1:
		return fmt.Errorf("%w: loop_threshold must be >= 1", ErrInvalidConfig)
	case c.LoopShrink <= 0 || c.LoopShrink > 1:
		return fmt.Errorf("%w: loop_shrink must be in (0, 1]", ErrInvalidConfig)
	case c.LikeEaseBonus < 0:
		return fmt.Errorf("%w: like_ease_bonus must be >= 0", ErrInvalidConfig)
	case c.SaveMultiplier < 1:
		return fmt.Errorf("%w: save_multiplier must be >= 1", ErrInvalidConfig)
	case c.SkipEasePenalty < 0:
		return fmt.Errorf("%w: skip_ease_penalty must be >= 0", ErrInvalidConfig)
	case c.EaseFloor <= 0:
		return fmt.Errorf("%w: ease_floor must be > 0", ErrInvalidConfig)
	case c.EaseStart < c.EaseFloor:
		return fmt.Errorf("%w: ease_start must be >= ease_floor", ErrInvalidConfig)
	case c.FirstInterval <= 0:
		return fmt.Errorf("%w: first_interval must be > 0", ErrInvalidConfig)
	case c.SkipInterval <= 0:
		return fmt.Errorf("%w: skip_interval must be > 0", ErrInvalidConfig)
	case c.MinInterval <= 0:
		return fmt.Errorf("%w: min_interval must be > 0", ErrInvalidConfig)
	case c.MasteredMinInterval < c.MinInterval:
		return fmt.Errorf("%w: mastered_min_interval must be >= min_interval", ErrInvalidConfig)
	case c.MaxInterval < c.MasteredMinInterval:
		return fmt.Errorf("%w: max_interval must be >= mastered_min_interval", ErrInvalidConfig)
	case c.NewRatio < 0 || c.NewRatio > 1:
		return fmt.Errorf("%w: new_ratio must be in [0, 1]", ErrInvalidConfig)
	case c.QueueCacheTTL < 0:
		return fmt.Errorf("%w: queue_cache_ttl must be >= 0", ErrInvalidConfig)
	}
	return nil
}
