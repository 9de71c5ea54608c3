package provision

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/provision/core/model"
)

// FallbackLevel returns the territorial level whose aggregates represent
// the reach of minutes of travel with mode.
func FallbackLevel(mode model.Mode, minutes int) model.Level {
	if mode == model.ModeWalking {
		switch {
		case minutes < 11:
			return model.LevelBlock
		case minutes < 21:
			return model.LevelMunicipality
		case minutes < 41:
			return model.LevelDistrict
		default:
			return model.LevelCity
		}
	}
	switch {
	case minutes < 11:
		return model.LevelMunicipality
	case minutes < 21:
		return model.LevelDistrict
	default:
		return model.LevelCity
	}
}

// Balance is the served population per inhabitant. A unit without relevant
// population is fully served.
func Balance(resource float64, population int) float64 {
	if population == 0 {
		return 1
	}
	return resource / float64(population)
}

// Reweight applies the intensity curve to a balance. intensity is on the
// 0-1 scale.
func Reweight(balance, intensity float64) float64 {
	if intensity < 0.5 {
		return balance * 5
	}
	return math.Pow(balance, intensity+1) / math.Pow(5, intensity)
}

var (
	twoModeWeights   = []float64{0.6, 0.4}
	threeModeWeights = []float64{0.5, 0.3, 0.2}
)

// Combine merges per-mode values given in walking, transit, car order,
// absent modes removed.
func Combine(values []float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	case 2:
		return floats.Dot(twoModeWeights, values)
	default:
		return floats.Dot(threeModeWeights, values[:3])
	}
}

// Round4 rounds v to four decimals.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
