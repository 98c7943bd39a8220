package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/scale-sensor/internal/adc"
	"github.com/sweeney/scale-sensor/internal/config"
	"github.com/sweeney/scale-sensor/internal/gpio"
	"github.com/sweeney/scale-sensor/internal/scale"
)

func newRawCmd(opts *options) *cobra.Command {
	var samples int
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Print noise statistics of unsmoothed converter codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			dev, err := openDevice(cfg, opts.sim)
			if err != nil {
				return err
			}
			defer dev.Close()

			boot(dev, cfg)
			printNoise(cmd.OutOrStdout(), adc.Noise(dev.driver.Collect(samples)), dev.driver, cfg)
			return nil
		},
	}
	cmd.Flags().IntVarP(&samples, "samples", "n", 100, "Number of conversions to collect")
	return cmd
}

func printNoise(w io.Writer, st adc.NoiseStats, d *adc.Driver, cfg *config.Config) {
	factor := d.CalFactor()
	fmt.Fprintf(w, "samples      %d at %d SPS, gain %d\n", st.N, d.Speed(), d.Config().Gain)
	fmt.Fprintf(w, "mean         %.1f (tare offset %d)\n", st.Mean, d.TareOffset())
	fmt.Fprintf(w, "std dev      %.1f codes = %.4f units\n", st.StdDev, st.StdDev/factor)
	fmt.Fprintf(w, "peak-peak    %.0f codes = %.4f units\n", st.PeakToPeak(), st.PeakToPeak()/factor)
	if limit := cfg.Scale.StableDiff * factor; st.StdDev > limit {
		fmt.Fprintf(w, "warning: noise exceeds stable_diff %.3f; readings will rarely settle\n", cfg.Scale.StableDiff)
	}
}

func newCalibrateCmd(opts *options) *cobra.Command {
	var weight float64
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate against a reference weight and store the factor",
		Long: `calibrate tares the empty scale, waits for the reference weight to be placed
and searches for the calibration factor. On success the factor is stored and
used on the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if !(weight > 0) {
				weight = cfg.Calibration.Weight
			}
			dev, err := openDevice(cfg, opts.sim)
			if err != nil {
				return err
			}
			defer dev.Close()

			boot(dev, cfg)
			if dev.sim != nil {
				placeSimLoad(dev.sim, weight, 3*time.Second)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "place %.2f on the scale\n", weight)
			s := runCalibration(dev.engine, dev.clk, dev.store, cfg.Calibration, weight)
			if s.Stage != scale.StageFinished {
				return fmt.Errorf("calibration %s after %d iterations", s.Stage, s.Iterations)
			}
			fmt.Fprintf(out, "calibration factor %.4f (%d iterations)\n", s.Factor, s.Iterations)
			return nil
		},
	}
	cmd.Flags().Float64VarP(&weight, "weight", "w", 0, "Reference weight (default from config)")
	return cmd
}

// placeSimLoad puts units on the simulated pan after delay.
func placeSimLoad(sim *gpio.SimADC, units float64, delay time.Duration) {
	at := time.Now().Add(delay)
	sim.SetLoadFunc(simZero, func(now time.Time) float64 {
		if now.Before(at) {
			return 0
		}
		return units
	})
}
