package cache

import (
	"time"

	"github.com/saiset-co/sai-content/types"
)

// TTLClass is the validity tier a collection is assigned by how often it
// changes.
type TTLClass int

const (
	Short TTLClass = iota
	Medium
	Long
	VeryLong
)

func (c TTLClass) String() string {
	switch c {
	case Short:
		return "short"
	case Medium:
		return "medium"
	case Long:
		return "long"
	case VeryLong:
		return "very_long"
	default:
		return "unknown"
	}
}

type TTLs struct {
	values [4]time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{values: [4]time.Duration{
		5 * time.Minute,
		10 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
	}}
}

// TTLsFromConfig overrides the defaults with any non-zero configured tier.
func TTLsFromConfig(config types.TTLConfig) TTLs {
	ttls := DefaultTTLs()

	for class, value := range map[TTLClass]time.Duration{
		Short:    config.Short,
		Medium:   config.Medium,
		Long:     config.Long,
		VeryLong: config.VeryLong,
	} {
		if value > 0 {
			ttls.values[class] = value
		}
	}

	return ttls
}

func (t TTLs) Duration(class TTLClass) time.Duration {
	if class < Short || class > VeryLong {
		return t.values[Short]
	}
	return t.values[class]
}
