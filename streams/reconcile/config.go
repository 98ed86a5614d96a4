package reconcile

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	// CycleTimeout bounds one full cycle.
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
	// PurgeTTL is copied from the lifecycle purge expiry at startup.
	PurgeTTL time.Duration `mapstructure:"purge_ttl"`
	// Tolerance is added to the purge deadline before a finished stream is force-deleted.
	Tolerance time.Duration `mapstructure:"tolerance"`
	// StaleThreshold is the age after which an empty active stream with no
	// idle expiry is closed.
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
	// BatchSize caps the room names per ListRooms call.
	BatchSize int `mapstructure:"batch_size"`
	// DeleteRate limits DeleteRoom calls per second.
	DeleteRate  float64 `mapstructure:"delete_rate"`
	DeleteBurst int     `mapstructure:"delete_burst"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("interval"), "30s")
	v.SetDefault(p("cycle_timeout"), "20s")
	v.SetDefault(p("tolerance"), "30s")
	v.SetDefault(p("stale_threshold"), "5m")
	v.SetDefault(p("batch_size"), 100)
	v.SetDefault(p("delete_rate"), 5)
	v.SetDefault(p("delete_burst"), 5)
}
