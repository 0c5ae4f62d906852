package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"walkernav/meshgen"
)

func newGenCmd() *cobra.Command {
	var (
		out      string
		tiles    int
		cells    int
		cellSize float32
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "generate a synthetic flat-grid navigation set",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := meshgen.Generate(meshgen.GridSpec{
				TilesX:       tiles,
				TilesZ:       tiles,
				CellsPerTile: cells,
				CellSize:     cellSize,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes, %dx%d tiles)\n", out, len(data), tiles, tiles)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "grid.mset", "output set file")
	cmd.Flags().IntVar(&tiles, "tiles", 4, "tiles per side")
	cmd.Flags().IntVar(&cells, "cells", 8, "cells per tile side")
	cmd.Flags().Float32Var(&cellSize, "cell-size", 1.0, "cell size in meters")
	return cmd
}
