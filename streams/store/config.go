package store

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Prefix    string        `mapstructure:"prefix"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	ScanCount int64         `mapstructure:"scan_count"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("prefix"), "stream")
	v.SetDefault(p("op_timeout"), "2s")
	v.SetDefault(p("scan_count"), 100)
}
