package eyescan

import (
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-eyescan/internal/dispatch"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/scan"
	"github.com/arloliu/go-eyescan/scandata"
)

// EngineConfig holds the settings of an Engine.
type EngineConfig struct {
	// showProgress is the default of the show_progress start option.
	// Defaults to true.
	showProgress bool
	// progressInterval is the minimum interval between two redraws of the progress indicator.
	// Defaults to 200 milliseconds.
	progressInterval time.Duration
	// indicatorWriter receives the progress indicator. Defaults to standard error.
	indicatorWriter io.Writer
	// indicatorFactory replaces the default spinner when set.
	indicatorFactory scan.IndicatorFactory

	// refreshRetry bounds the retries of a refresh that failed with a transient transport error.
	// Zero disables the retry. Defaults to 0.
	refreshRetry time.Duration

	// openAreaMode selects how eye summaries measure the open area. Defaults to the threshold mask.
	openAreaMode scandata.OpenAreaMode

	// parkedEventLimit bounds the events kept for a scan handle that is not attached yet.
	// Defaults to 1024.
	parkedEventLimit int

	// closeTimeout bounds how long Close waits for the engine tasks. Defaults to 3 seconds.
	closeTimeout time.Duration

	// metricsNamespace prefixes the prometheus metric names. Defaults to "eyescan".
	metricsNamespace string

	logger logger.Logger
}

func defaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		showProgress:     true,
		progressInterval: scan.DefaultProgressInterval,
		openAreaMode:     scandata.MaskArea,
		parkedEventLimit: dispatch.DefaultParkedLimit,
		closeTimeout:     3 * time.Second,
		logger:           logger.GetLogger(),
	}
}

// ShowProgress returns the default of the show_progress start option.
func (cfg *EngineConfig) ShowProgress() bool { return cfg.showProgress }

// ProgressInterval returns the minimum interval between two progress redraws.
func (cfg *EngineConfig) ProgressInterval() time.Duration { return cfg.progressInterval }

// RefreshRetry returns the maximum time spent retrying a refresh.
func (cfg *EngineConfig) RefreshRetry() time.Duration { return cfg.refreshRetry }

// OpenAreaMode returns the open area definition of eye summaries.
func (cfg *EngineConfig) OpenAreaMode() scandata.OpenAreaMode { return cfg.openAreaMode }

// ParkedEventLimit returns the per-handle bound of parked scan events.
func (cfg *EngineConfig) ParkedEventLimit() int { return cfg.parkedEventLimit }

// CloseTimeout returns how long Close waits for the engine tasks.
func (cfg *EngineConfig) CloseTimeout() time.Duration { return cfg.closeTimeout }

// Option represents a functional option for configuring an Engine.
type Option interface {
	apply(*EngineConfig) error
}

type optFunc struct {
	name      string
	applyFunc func(*EngineConfig) error
}

func (o *optFunc) apply(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: %s on nil config", ErrInvalidOption, o.name)
	}

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*EngineConfig) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithShowProgress sets the default of the show_progress start option.
//
// The default is true.
func WithShowProgress(show bool) Option {
	return newOptFunc("WithShowProgress", func(cfg *EngineConfig) error {
		cfg.showProgress = show
		return nil
	})
}

// WithProgressInterval sets the minimum interval between two redraws of the progress indicator.
// It should be between 10 milliseconds and 10 seconds.
//
// The default is 200 milliseconds.
func WithProgressInterval(d time.Duration) Option {
	return newOptFunc("WithProgressInterval", func(cfg *EngineConfig) error {
		if d < 10*time.Millisecond || d > 10*time.Second {
			return fmt.Errorf("%w: progress interval %s out of range [10ms, 10s]", ErrInvalidOption, d)
		}
		cfg.progressInterval = d

		return nil
	})
}

// WithProgressWriter sets where the default progress indicator is drawn.
func WithProgressWriter(w io.Writer) Option {
	return newOptFunc("WithProgressWriter", func(cfg *EngineConfig) error {
		cfg.indicatorWriter = w
		return nil
	})
}

// WithProgressIndicator replaces the default progress indicator.
func WithProgressIndicator(f scan.IndicatorFactory) Option {
	return newOptFunc("WithProgressIndicator", func(cfg *EngineConfig) error {
		cfg.indicatorFactory = f
		return nil
	})
}

// WithRefreshRetry retries property refreshes that fail with a transient transport error, for at most d.
// Zero disables the retry.
func WithRefreshRetry(d time.Duration) Option {
	return newOptFunc("WithRefreshRetry", func(cfg *EngineConfig) error {
		if d < 0 {
			return fmt.Errorf("%w: negative refresh retry %s", ErrInvalidOption, d)
		}
		cfg.refreshRetry = d

		return nil
	})
}

// WithOpenAreaMode selects how eye summaries measure the open area.
func WithOpenAreaMode(mode scandata.OpenAreaMode) Option {
	return newOptFunc("WithOpenAreaMode", func(cfg *EngineConfig) error {
		if _, err := scandata.ParseOpenAreaMode(mode.String()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOption, err)
		}
		cfg.openAreaMode = mode

		return nil
	})
}

// WithParkedEventLimit bounds the events kept for a scan handle that is not attached yet.
//
// The default is 1024.
func WithParkedEventLimit(n int) Option {
	return newOptFunc("WithParkedEventLimit", func(cfg *EngineConfig) error {
		if n <= 0 {
			return fmt.Errorf("%w: parked event limit %d must be positive", ErrInvalidOption, n)
		}
		cfg.parkedEventLimit = n

		return nil
	})
}

// WithCloseTimeout bounds how long Close waits for the engine tasks. It should be between 1 and 30 seconds.
//
// The default is 3 seconds.
func WithCloseTimeout(d time.Duration) Option {
	return newOptFunc("WithCloseTimeout", func(cfg *EngineConfig) error {
		if d < time.Second || d > 30*time.Second {
			return fmt.Errorf("%w: close timeout %s out of range [1s, 30s]", ErrInvalidOption, d)
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithMetricsNamespace sets the prefix of the prometheus metric names.
func WithMetricsNamespace(ns string) Option {
	return newOptFunc("WithMetricsNamespace", func(cfg *EngineConfig) error {
		cfg.metricsNamespace = ns
		return nil
	})
}

// WithLogger sets the logger of the engine and every component it owns.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *EngineConfig) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidOption)
		}
		cfg.logger = l

		return nil
	})
}
