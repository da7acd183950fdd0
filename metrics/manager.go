package metrics

import (
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

// NewManager returns the configured metrics backend. A missing or disabled
// section yields a no-op manager so callers never branch on nil.
func NewManager(config *types.MetricsConfig, logger types.Logger) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return NewNop(), nil
	}

	var (
		manager types.MetricsManager
		err     error
	)

	switch config.Type {
	case "prometheus":
		manager, err = NewPrometheusMetrics(logger, config)
	case "nop", "":
		manager = NewNop()
	default:
		creator, exists := customMetricsCreators.Load(config.Type)
		if !exists {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
		}
		manager, err = creator.(types.MetricsManagerCreator)(config.Config)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return manager, nil
}
