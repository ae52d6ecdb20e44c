// Command fieldgen runs the multi-grid relaxation solver end to end:
// read a configuration file, build the crystal geometry, solve the
// bias and weighting potentials, and write the ASCII field tables.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"hpgefield/internal/config"
	"hpgefield/pkg/geometry"
	"hpgefield/pkg/relax"
	"hpgefield/pkg/util"
)

func main() {
	configPath := flag.String("c", "", "configuration file")
	biasVolts := flag.Float64("b", 0, "override bias voltage (volts); 0 uses the config file's xtal_HV")
	writeLevel := flag.Int("w", 0, "write level: 0=none 1=field+WP 2=also undepleted.txt")
	printLevel := flag.Int("p", 0, "print level: 0=quiet 1=summary")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("fieldgen: -c <config> is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fieldgen: %v", err)
	}

	bv := cfg.XtalHV
	if *biasVolts != 0 {
		bv = *biasVolts
	}

	geom := geometry.Crystal{
		LZ:               cfg.XtalLength,
		RMax:             cfg.XtalRadius,
		TopBulletRadius:  cfg.TopBulletRadius,
		PCLength:         cfg.PCLength,
		PCRadius:         cfg.PCRadius,
		TaperLength:      cfg.TaperLength,
		WrapAroundRadius: cfg.WrapAroundRadius,
		DitchDepth:       cfg.DitchDepth,
		DitchThickness:   cfg.DitchThickness,
	}
	if err := geom.Validate(); err != nil {
		log.Fatalf("fieldgen: %v", err)
	}

	imp := relax.Impurity{N0: cfg.ImpurityZ0, M: cfg.ImpurityGradient}
	solver, err := relax.NewSolver(geom, imp, bv, cfg.XtalGrid, cfg.MaxIterations)
	if err != nil {
		log.Fatalf("fieldgen: %v", err)
	}

	result, err := solver.Solve()
	if err != nil {
		log.Fatalf("fieldgen: %v", err)
	}
	for _, w := range result.NotConv {
		log.Printf("fieldgen: warning: %v", w)
	}

	if *printLevel >= 1 {
		fmt.Printf("grid: h=%g mm, %dx%d pixels\n", result.H, result.Nr+1, result.Nz+1)
		fmt.Printf("bias: %s\n", util.FormatValueFactor(bv, "V"))
		fmt.Printf("fully depleted: %v\n", result.Fully)
		if result.Bubble {
			fmt.Printf("pinch-off bubble at %s\n", util.FormatValueFactor(result.BubbleV, "V"))
		}
		cap := relax.Capacitance(result, bv)
		fmt.Printf("capacitance estimate: %.4g pF\n", cap)
	}

	if *writeLevel >= 1 {
		if cfg.WriteField {
			if err := relax.WriteField(cfg.FieldName, result); err != nil {
				log.Fatalf("fieldgen: %v", err)
			}
		}
		if cfg.WriteWP {
			if err := relax.WriteWeightingPotential(cfg.WPName, result); err != nil {
				log.Fatalf("fieldgen: %v", err)
			}
		}
	}
	if *writeLevel >= 2 {
		if err := relax.WriteUndepleted("undepleted.txt", result, -1, -1); err != nil {
			log.Fatalf("fieldgen: %v", err)
		}
	}

	os.Exit(0)
}
