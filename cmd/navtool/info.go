package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"walkernav/navmesh"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <set-file>",
		Short: "inspect a navigation set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			header, tiles, err := navmesh.ReadSet(data)
			if err != nil {
				return err
			}
			fmt.Printf("set: version %d, %d tile records (maxTiles %d, maxPolys %d, tile %gx%g)\n",
				header.Version, len(tiles), header.Params.MaxTiles, header.Params.MaxPolys,
				header.Params.TileWidth, header.Params.TileHeight)

			mesh, err := navmesh.NewMesh(&header.Params)
			if err != nil {
				return err
			}
			for i, t := range tiles {
				if err := mesh.AddTile(t.Data, t.Ref); err != nil {
					return fmt.Errorf("tile %d: %w", i, err)
				}
			}
			for i := 0; i < mesh.TileCount(); i++ {
				t := mesh.Tile(i)
				fmt.Printf("  tile %#x (%d,%d): %d polys, %d verts, bounds %v..%v\n",
					uint64(t.Ref), t.Header.TX, t.Header.TY,
					len(t.Polys), t.Header.VertCount, t.Header.Bmin, t.Header.Bmax)
			}
			return nil
		},
	}
	return cmd
}
