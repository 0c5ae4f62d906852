package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walkernav"
	"walkernav/config"
	"walkernav/logging"
)

func newWanderCmd() *cobra.Command {
	var (
		meshFile   string
		configFile string
		walkers    int
		ticks      int
		dt         float64
		seed       int64
		logLevel   string
		logFile    string
	)
	cmd := &cobra.Command{
		Use:   "wander",
		Short: "run a headless wandering crowd simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(logLevel, logFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg := config.Default()
			if configFile != "" {
				if cfg, err = config.Load(configFile); err != nil {
					return err
				}
			}

			nav := walkernav.New(
				walkernav.WithLogger(log),
				walkernav.WithConfig(cfg),
				walkernav.WithSeed(seed),
			)
			if !nav.LoadFile(meshFile) {
				return fmt.Errorf("failed to load %s", meshFile)
			}

			for i := 0; i < walkers; i++ {
				id := walkernav.ActorID(i + 1)
				loc, ok := nav.GetRandomLocation(-1, nil)
				if !ok {
					return fmt.Errorf("no walkable surface to spawn walker %d", i)
				}
				if !nav.AddWalker(id, loc, 0.9) {
					log.Warn("walker not added", zap.Int("walker", i))
					continue
				}
				if target, ok := nav.GetRandomLocation(-1, nil); ok {
					nav.SetWalkerTarget(id, target)
				}
			}
			log.Info("crowd spawned", zap.Int("walkers", nav.WalkerCount()))

			state := walkernav.TickState{DeltaSeconds: dt}
			for tick := 0; tick < ticks; tick++ {
				nav.UpdateCrowd(state)
			}

			var total float32
			for i := 0; i < walkers; i++ {
				total += nav.GetWalkerSpeed(walkernav.ActorID(i + 1))
			}
			if walkers > 0 {
				fmt.Printf("simulated %d ticks, mean speed %.2f m/s\n", ticks, total/float32(walkers))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&meshFile, "mesh", "", "navigation set file")
	cmd.Flags().StringVar(&configFile, "config", "", "hjson config file")
	cmd.Flags().IntVar(&walkers, "walkers", 50, "number of walkers")
	cmd.Flags().IntVar(&ticks, "ticks", 600, "simulation ticks")
	cmd.Flags().Float64Var(&dt, "dt", 1.0/30.0, "seconds per tick")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file (stderr when empty)")
	cmd.MarkFlagRequired("mesh")
	return cmd
}
