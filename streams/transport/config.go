package transport

import (
	"time"

	"github.com/spf13/viper"
)

// Config covers the observer connections (SSE and WebSocket).
type Config struct {
	// QueueSize bounds the updates buffered per observer before it is pruned.
	QueueSize int `mapstructure:"queue_size"`
	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration `mapstructure:"keep_alive"`
	// PingInterval is the WebSocket ping interval.
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("queue_size"), 16)
	v.SetDefault(p("keep_alive"), "15s")
	v.SetDefault(p("ping_interval"), "10s")
	v.SetDefault(p("write_timeout"), "3s")
	v.SetDefault(p("allowed_origins"), []string{"*"})
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 15 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	return c
}
