package stats

import "github.com/spf13/viper"

type Config struct {
	// Concurrency bounds the projections read in parallel per refresh.
	Concurrency int `mapstructure:"concurrency"`
}

func Setup(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".concurrency", 16)
}
