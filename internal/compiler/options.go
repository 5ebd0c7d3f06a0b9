package compiler

import (
	"fmt"

	"github.com/iwvelando/settlement-optimizer/pkg/constants"
)

// Options parameterize one compilation.
type Options struct {
	// Lambda weighs normalized settled notional against normalized settled
	// count. It must lie in [0, 1].
	Lambda     float64    `json:"lambda" yaml:"lambda"`
	Extensions Extensions `json:"extensions" yaml:"extensions"`
}

// Extensions switches the optional regulatory constraint families on.
// All are off by default.
type Extensions struct {
	Haircut        bool    `json:"haircut" yaml:"haircut" mapstructure:"haircut"`
	HaircutRate    float64 `json:"haircutRate" yaml:"haircutRate" mapstructure:"haircut_rate"`
	Concentration  bool    `json:"concentration" yaml:"concentration" mapstructure:"concentration"`
	MuniLimits     bool    `json:"muniLimits" yaml:"muniLimits" mapstructure:"muni_limits"`
	PABSeparation  bool    `json:"pabSeparation" yaml:"pabSeparation" mapstructure:"pab_separation"`
	SBSSegregation bool    `json:"sbsSegregation" yaml:"sbsSegregation" mapstructure:"sbs_segregation"`
}

// DefaultOptions returns the options used when the caller supplies none.
func DefaultOptions() Options {
	return Options{Lambda: constants.DefaultLambda}
}

// Any reports whether at least one extension family is enabled.
func (e Extensions) Any() bool {
	return e.Haircut || e.Concentration || e.MuniLimits || e.PABSeparation || e.SBSSegregation
}

// Enabled lists the names of the enabled families.
func (e Extensions) Enabled() []string {
	var out []string
	if e.Haircut {
		out = append(out, "haircut")
	}
	if e.Concentration {
		out = append(out, "concentration")
	}
	if e.MuniLimits {
		out = append(out, "muni_limits")
	}
	if e.PABSeparation {
		out = append(out, "pab_separation")
	}
	if e.SBSSegregation {
		out = append(out, "sbs_segregation")
	}
	return out
}

// CollateralFactor is the share of pledged value counted as cash capacity.
func (e Extensions) CollateralFactor() float64 {
	if !e.Haircut {
		return 1
	}
	rate := e.HaircutRate
	if rate == 0 {
		rate = constants.DefaultHaircutRate
	}
	return 1 - rate
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.Lambda < 0 || o.Lambda > 1 {
		return fmt.Errorf("lambda %g outside [0, 1]", o.Lambda)
	}
	if o.Extensions.HaircutRate < 0 || o.Extensions.HaircutRate >= 1 {
		return fmt.Errorf("haircut rate %g outside [0, 1)", o.Extensions.HaircutRate)
	}
	return nil
}
