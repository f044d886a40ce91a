package registry

import (
	"fmt"
	"nowcast-pipeline/internal/core/types"

	"github.com/alecthomas/participle/v2"
)

/*
Delay expressions accepted in registry files:

Delay     := Number | Family "(" [ Arg ( "," Arg )* ] ")"
Family    := "fixed" | "gamma" | "lognormal"
Arg       := Key "=" Number
Key       := "mean" | "mean_sd" | "sd" | "sd_sd" | "max"

e.g. `5`, `gamma(mean=5.2, sd=1.5, max=30)`
*/

var (
	delayParser = participle.MustBuild[delayExpr]()
)

type delayExpr struct {
	Days *float64   `parser:"  @(Float | Int)"`
	Call *delayCall `parser:"| @@"`
}

type delayCall struct {
	Family string      `parser:"@Ident \"(\""`
	Args   []*delayArg `parser:"( @@ ( \",\" @@ )* )? \")\""`
}

type delayArg struct {
	Key   string  `parser:"@Ident \"=\""`
	Value float64 `parser:"@(Float | Int)"`
}

func ParseDelay(expr string) (types.Delay, error) {
	parsed, err := delayParser.ParseString("", expr)
	if err != nil {
		return types.Delay{}, fmt.Errorf("error parsing delay '%s': %w", expr, err)
	}

	delay, err := parsed.toDelay()
	if err != nil {
		return types.Delay{}, fmt.Errorf("invalid delay '%s': %w", expr, err)
	}

	if err := delay.Validate(); err != nil {
		return types.Delay{}, fmt.Errorf("invalid delay '%s': %w", expr, err)
	}

	return delay, nil
}

func (e *delayExpr) toDelay() (types.Delay, error) {
	if e.Days != nil {
		return types.FixedDelay(*e.Days), nil
	}

	family, err := types.ToDistributionFamily(e.Call.Family)
	if err != nil {
		return types.Delay{}, err
	}

	delay := types.Delay{Family: family}
	seen := make(map[string]bool)
	for _, arg := range e.Call.Args {
		if seen[arg.Key] {
			return types.Delay{}, fmt.Errorf("parameter '%s' given twice", arg.Key)
		}
		seen[arg.Key] = true

		switch arg.Key {
		case "mean":
			delay.Mean = arg.Value
		case "mean_sd":
			delay.MeanSD = arg.Value
		case "sd":
			delay.SD = arg.Value
		case "sd_sd":
			delay.SDSD = arg.Value
		case "max":
			delay.Max = arg.Value
		default:
			return types.Delay{}, fmt.Errorf("unknown parameter '%s'", arg.Key)
		}
	}

	if !seen["mean"] {
		return types.Delay{}, fmt.Errorf("%s delay requires a mean", family)
	}

	return delay, nil
}
