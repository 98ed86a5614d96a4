package lifecycle

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// IdleTTL is armed when an active stream loses its last participant.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
	// PurgeTTL is armed when a stream finishes and is never cleared.
	PurgeTTL time.Duration `mapstructure:"purge_ttl"`
	// DedupeSize bounds the remembered webhook event ids. 0 disables dedupe.
	DedupeSize int `mapstructure:"dedupe_size"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("idle_ttl"), "60s")
	v.SetDefault(p("purge_ttl"), "5m")
	v.SetDefault(p("dedupe_size"), 4096)
}
