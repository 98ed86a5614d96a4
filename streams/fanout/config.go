package fanout

import "github.com/spf13/viper"

type Config struct {
	// SubscriptionBuffer sizes the channel between the store subscription and dispatch.
	SubscriptionBuffer int `mapstructure:"subscription_buffer"`
}

func Setup(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".subscription_buffer", 256)
}
