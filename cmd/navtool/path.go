package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"walkernav"
)

func parseLocation(s string) (walkernav.Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return walkernav.Location{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return walkernav.Location{}, fmt.Errorf("bad coordinate %q: %w", p, err)
		}
		v[i] = float32(f)
	}
	return walkernav.Location{X: v[0], Y: v[1], Z: v[2]}, nil
}

func newPathCmd() *cobra.Command {
	var (
		meshFile string
		fromStr  string
		toStr    string
	)
	cmd := &cobra.Command{
		Use:   "path",
		Short: "query a point-to-point path",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseLocation(fromStr)
			if err != nil {
				return err
			}
			to, err := parseLocation(toStr)
			if err != nil {
				return err
			}

			nav := walkernav.New()
			if !nav.LoadFile(meshFile) {
				return fmt.Errorf("failed to load %s", meshFile)
			}
			path, ok := nav.GetPath(from, to, nil)
			if !ok {
				return fmt.Errorf("no path from %v to %v", from, to)
			}
			for i, wp := range path {
				fmt.Printf("%3d: %.2f, %.2f, %.2f\n", i, wp.X, wp.Y, wp.Z)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&meshFile, "mesh", "", "navigation set file")
	cmd.Flags().StringVar(&fromStr, "from", "", "start location x,y,z")
	cmd.Flags().StringVar(&toStr, "to", "", "end location x,y,z")
	cmd.MarkFlagRequired("mesh")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}
