package types

import "fmt"

type DistributionFamily string

const (
	Fixed     DistributionFamily = "fixed"
	Gamma     DistributionFamily = "gamma"
	Lognormal DistributionFamily = "lognormal"
)

func ToDistributionFamily(s string) (DistributionFamily, error) {
	switch DistributionFamily(s) {
	case Fixed, Gamma, Lognormal:
		return DistributionFamily(s), nil
	default:
		return "", fmt.Errorf("unknown distribution family '%s'", s)
	}
}

// Delay describes a delay distribution in days. MeanSD and SDSD carry the
// uncertainty of the mean and sd, zero means the parameter is known exactly.
type Delay struct {
	Family DistributionFamily `json:"dist" yaml:"dist"`
	Mean   float64            `json:"mean" yaml:"mean"`
	MeanSD float64            `json:"mean_sd,omitempty" yaml:"mean_sd,omitempty"`
	SD     float64            `json:"sd,omitempty" yaml:"sd,omitempty"`
	SDSD   float64            `json:"sd_sd,omitempty" yaml:"sd_sd,omitempty"`
	Max    float64            `json:"max,omitempty" yaml:"max,omitempty"`
}

func FixedDelay(days float64) Delay {
	return Delay{Family: Fixed, Mean: days}
}

func (d Delay) Validate() error {
	if _, err := ToDistributionFamily(string(d.Family)); err != nil {
		return err
	}
	if d.Mean < 0 || d.MeanSD < 0 || d.SD < 0 || d.SDSD < 0 || d.Max < 0 {
		return fmt.Errorf("%s delay has negative parameters", d.Family)
	}
	if d.Family != Fixed && d.SD == 0 {
		return fmt.Errorf("%s delay requires sd > 0", d.Family)
	}
	// lognormal parameters live on the log scale, so only natural scale means are checked.
	if d.Family != Lognormal && d.Max > 0 && d.Max < d.Mean {
		return fmt.Errorf("%s delay max %g is below its mean %g", d.Family, d.Max, d.Mean)
	}
	return nil
}

func (d Delay) String() string {
	if d.Family == Fixed {
		return fmt.Sprintf("fixed(%g)", d.Mean)
	}
	return fmt.Sprintf("%s(mean=%g, sd=%g, max=%g)", d.Family, d.Mean, d.SD, d.Max)
}

type DelayParameters struct {
	IncubationPeriod Delay
	ReportingDelay   Delay
	GenerationTime   Delay
	EngineOptions    map[string]any
	TargetFolder     string
}
