// Command mjdsig loads a configuration file, a velocity table, and
// the field/weighting-potential tables written by fieldgen, then runs
// the drift integrator and post-processor for one requested point and
// prints the resulting waveform.
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"hpgefield/internal/config"
	"hpgefield/pkg/drift"
	"hpgefield/pkg/field"
	"hpgefield/pkg/geometry"
	"hpgefield/pkg/signal"
	"hpgefield/pkg/veltab"
)

func main() {
	configPath := flag.String("c", "", "configuration file")
	velPath := flag.String("v", "", "drift-velocity table file")
	point := flag.String("p", "", "start point as x,y,z (mm)")
	flag.Parse()

	if *configPath == "" || *velPath == "" || *point == "" {
		log.Fatal("mjdsig: -c <config> -v <velocity table> -p <x,y,z> are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("mjdsig: %v", err)
	}

	start, err := parsePoint(*point)
	if err != nil {
		log.Fatalf("mjdsig: %v", err)
	}

	vel, err := veltab.Load(*velPath)
	if err != nil {
		log.Fatalf("mjdsig: %v", err)
	}
	if err := vel.Correct(cfg.XtalTemp); err != nil {
		log.Fatalf("mjdsig: %v", err)
	}

	fieldStore, err := field.LoadField(cfg.FieldName)
	if err != nil {
		log.Fatalf("mjdsig: %v", err)
	}
	if _, err := field.LoadWeightingPotential(cfg.WPName, fieldStore); err != nil {
		log.Fatalf("mjdsig: %v", err)
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

	driftSetup := drift.NewSetup(geom, fieldStore, vel, drift.Config{
		DtCalc:          cfg.StepTimeCalc,
		NCalc:           cfg.TimeStepsCalc,
		ChargeCloudSize: cfg.ChargeCloudSize,
		UseDiffusion:    cfg.UseDiffusion,
		TempK:           cfg.XtalTemp,
		HoleCollects:    cfg.ImpurityZ0 < 0,
	})

	nOut := cfg.TimeStepsCalc
	if cfg.StepTimeOut > 0 && cfg.StepTimeCalc > 0 {
		nOut = int(float64(cfg.TimeStepsCalc) * cfg.StepTimeCalc / cfg.StepTimeOut)
	}
	proc := signal.NewProcessor(driftSetup, signal.Config{
		NOut:  nOut,
		DtOut: cfg.StepTimeOut,
		Tau:   cfg.PreampTau,
	})

	out, err := proc.GetSignal(start)
	if err != nil {
		log.Fatalf("mjdsig: %v", err)
	}

	for i, v := range out {
		fmt.Printf("%d %g\n", i, v)
	}
}

func parsePoint(s string) (drift.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return drift.Vec3{}, fmt.Errorf("point %q: want x,y,z", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return drift.Vec3{}, fmt.Errorf("point %q: %w", s, err)
		}
		vals[i] = v
	}
	return drift.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
