package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RevenueConfig describes how the platform remainder of a sale is split after
// affiliate and creator shares have been taken out.
type RevenueConfig struct {
	Company  PlatformShare   `mapstructure:"company"`
	Partners []PlatformShare `mapstructure:"partners"`
}

// PlatformShare is one platform wallet owner and its percentage.
type PlatformShare struct {
	Name    string  `mapstructure:"name"`
	UserID  string  `mapstructure:"userId"`
	Percent float64 `mapstructure:"percent"`
}

// ShareKey is the pending revenue type recorded for a partner, e.g.
// "co founder" becomes CO_FOUNDER. One transaction holds at most one row per
// key, so keys must stay distinct across partners.
func (p PlatformShare) ShareKey() string {
	key := strings.ToUpper(strings.TrimSpace(p.Name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		key = "PARTNER"
	}
	return key
}

// reservedShareKeys are written by the non-platform shares.
var reservedShareKeys = map[string]struct{}{
	"AFFILIATE": {},
	"CREATOR":   {},
	"COMPANY":   {},
}

// DefaultRevenueConfig keeps the company at 15% of the remainder and leaves
// partner wallets unassigned until an operator configures them.
func DefaultRevenueConfig() RevenueConfig {
	return RevenueConfig{
		Company: PlatformShare{Name: "company", Percent: 15},
		Partners: []PlatformShare{
			{Name: "founder", Percent: 60},
			{Name: "co_founder", Percent: 40},
		},
	}
}

type RevenueConfigHolder struct {
	current atomic.Value // holds RevenueConfig
}

// NewStaticRevenueConfigHolder returns a holder that never reloads.
func NewStaticRevenueConfigHolder(cfg RevenueConfig) *RevenueConfigHolder {
	holder := &RevenueConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRevenueConfigHolder(cfg Config, log *zap.Logger) (*RevenueConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.revenue")

	v := viper.New()
	if cfg.RevenueConfigPath != "" {
		v.SetConfigFile(cfg.RevenueConfigPath)
	} else {
		v.SetConfigName("revenue")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/eksporyuk/config")
		v.AddConfigPath("/etc/eksporyuk")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("EKSPORYUK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRevenueConfig()
	v.SetDefault("revenue.company", defaults.Company)
	v.SetDefault("revenue.partners", defaults.Partners)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
		log.Info("revenue config file not found, using defaults")
	}

	var revenue RevenueConfig
	if err := v.UnmarshalKey("revenue", &revenue); err != nil {
		return nil, err
	}
	if err := ValidateRevenueConfig(revenue); err != nil {
		return nil, err
	}

	holder := NewStaticRevenueConfigHolder(revenue)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RevenueConfig
		if err := v.UnmarshalKey("revenue", &updated); err != nil {
			log.Warn("revenue config reload failed", zap.Error(err))
			return
		}
		if err := ValidateRevenueConfig(updated); err != nil {
			log.Warn("invalid revenue config ignored", zap.Error(err))
			return
		}
		holder.Set(updated)
		log.Info("revenue config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Set replaces the current split. Callers validate first.
func (h *RevenueConfigHolder) Set(cfg RevenueConfig) {
	h.current.Store(cfg)
}

func (h *RevenueConfigHolder) Get() RevenueConfig {
	if h == nil {
		return RevenueConfig{}
	}
	return h.current.Load().(RevenueConfig)
}

func ValidateRevenueConfig(cfg RevenueConfig) error {
	if cfg.Company.Percent < 0 || cfg.Company.Percent > 100 {
		return fmt.Errorf("revenue.company.percent out of range: %v", cfg.Company.Percent)
	}
	if len(cfg.Partners) == 0 {
		return nil
	}
	var total float64
	seen := make(map[string]struct{}, len(cfg.Partners))
	for _, partner := range cfg.Partners {
		if partner.Percent < 0 {
			return fmt.Errorf("revenue.partners[%s].percent is negative", partner.Name)
		}
		key := partner.ShareKey()
		if _, reserved := reservedShareKeys[key]; reserved {
			return fmt.Errorf("revenue.partners[%s] collides with the %s share", partner.Name, key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("revenue.partners[%s] duplicates share %s", partner.Name, key)
		}
		seen[key] = struct{}{}
		total += partner.Percent
	}
	if total > 100.0001 {
		return fmt.Errorf("revenue.partners percentages exceed 100: %v", total)
	}
	return nil
}
