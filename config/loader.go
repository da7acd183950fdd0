package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-content/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.Errorf(types.ErrConfigNotFound, "file: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(err, types.ErrConfigParseFailed.Error())
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

// Defaults mirrors the TTL tiers the screens were tuned against: five, ten,
// fifteen and thirty minutes.
func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Storage: &types.StorageConfig{
			Type:      "clover",
			Namespace: "content_cache:",
		},
		Cache: &types.CacheConfig{
			TTL: types.TTLConfig{
				Short:    5 * time.Minute,
				Medium:   10 * time.Minute,
				Long:     15 * time.Minute,
				VeryLong: 30 * time.Minute,
			},
			CollapseInFlight:     false,
			CompressionThreshold: 0,
			WriteTimeout:         5 * time.Second,
		},
		Remote: &types.RemoteConfig{
			Type: "memory",
		},
		Content: &types.ContentConfig{
			DailyWindow: 24 * time.Hour,
			AlertWindow: 72 * time.Hour,
		},
		Feed: &types.FeedConfig{
			Enabled: false,
		},
		Cron: &types.CronConfig{
			Enabled:        false,
			Timezone:       "UTC",
			PruneDailySpec: "0 0 * * * *",
			SweepCacheSpec: "0 */15 * * * *",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
		},
	}
}
