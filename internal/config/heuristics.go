package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ClassifierHeuristics tunes the test-payment classifier without a redeploy.
// Amounts are in cents.
type ClassifierHeuristics struct {
	MinRealAmount    int64    `mapstructure:"minRealAmount"`
	ZeroValueMethods []string `mapstructure:"zeroValueMethods"`
	EmailMarkers     []string `mapstructure:"emailMarkers"`
}

func DefaultClassifierHeuristics() ClassifierHeuristics {
	return ClassifierHeuristics{
		MinRealAmount:    100,
		ZeroValueMethods: []string{"free", "test"},
		EmailMarkers:     []string{"test", "sandbox"},
	}
}

type HeuristicsHolder struct {
	current atomic.Value // holds ClassifierHeuristics
}

// NewHeuristicsHolder loads classifier heuristics from heuristics.yml and
// keeps them hot-reloadable. Missing file falls back to defaults.
func NewHeuristicsHolder() (*HeuristicsHolder, error) {
	v := viper.New()

	v.SetConfigName("heuristics")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/vivero")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VIVERO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		defaults := DefaultClassifierHeuristics()
		v.SetDefault("classifier.minRealAmount", defaults.MinRealAmount)
		v.SetDefault("classifier.zeroValueMethods", defaults.ZeroValueMethods)
		v.SetDefault("classifier.emailMarkers", defaults.EmailMarkers)
	}

	var cfg ClassifierHeuristics
	if err := v.UnmarshalKey("classifier", &cfg); err != nil {
		return nil, err
	}
	if err := validateHeuristics(cfg); err != nil {
		return nil, err
	}

	holder := &HeuristicsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ClassifierHeuristics
		if err := v.UnmarshalKey("classifier", &updated); err != nil {
			log.Printf("[heuristics] reload failed: %v", err)
			return
		}
		if err := validateHeuristics(updated); err != nil {
			log.Printf("[heuristics] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticHeuristics returns a holder pinned to the given values, for tests.
func NewStaticHeuristics(cfg ClassifierHeuristics) *HeuristicsHolder {
	holder := &HeuristicsHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *HeuristicsHolder) Current() ClassifierHeuristics {
	if h == nil {
		return DefaultClassifierHeuristics()
	}
	if cfg, ok := h.current.Load().(ClassifierHeuristics); ok {
		return cfg
	}
	return DefaultClassifierHeuristics()
}

func validateHeuristics(cfg ClassifierHeuristics) error {
	if cfg.MinRealAmount < 0 {
		return errors.New("minRealAmount must not be negative")
	}
	return nil
}
