package livekit

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Host      string        `mapstructure:"host"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// EmptyTimeout is passed to CreateRoom; the room service closes empty rooms after it.
	EmptyTimeout time.Duration `mapstructure:"empty_timeout"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("host"), "http://localhost:7880")
	v.SetDefault(p("api_key"), "devkey")
	v.SetDefault(p("api_secret"), "secret")
	v.SetDefault(p("timeout"), "10s")
	v.SetDefault(p("empty_timeout"), "5m")
	v.SetDefault(p("token_ttl"), "6h")
}
