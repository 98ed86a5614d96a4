package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/viper"

	"github.com/imtaco/stream-coordinator/internal/log"
)

type Config struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("initial_interval"), "200ms")
	v.SetDefault(p("max_interval"), "5s")
	v.SetDefault(p("max_elapsed_time"), "1m")
}

type Retry interface {
	Do(ctx context.Context, operation func() error) error
}

func New(logger *log.Logger, cfg Config) Retry {
	return &retryImpl{logger: logger, cfg: cfg}
}

type retryImpl struct {
	logger *log.Logger
	cfg    Config
}

// Permanent stops retrying and returns err from Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (r *retryImpl) Do(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err != nil {
			r.logger.Warn("retry attempt failed",
				log.Int("attempt", attempt),
				log.Error(err))
		}
		return err
	}, backoff.WithContext(b, ctx))
}
