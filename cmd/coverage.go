package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiesman99/geostitch/internal/app"
	"github.com/kiesman99/geostitch/internal/maps"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// worldBBox is the default region of the map commands, in --bbox order.
const worldBBox = "-90,-180,90,180"

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report which tiles of a region can be served from the cache",
	Long: `Check, for every map tile of one level inside a region, whether all
enabled layers can answer it from the cache without contacting their sources.

Examples:
  # Cached tiles of level 6 over the Alps
  geostitch coverage --config geostitch.yaml --level 6 --bbox 45,5,48,16

  # Also list the tiles that are missing
  geostitch coverage --config geostitch.yaml --level 3 --list`,
	RunE: runCoverage,
}

func init() {
	rootCmd.AddCommand(coverageCmd)

	coverageCmd.Flags().Uint32P("level", "l", 0, "map level to check")
	coverageCmd.Flags().String("bbox", worldBBox, "region as 'min-lat,min-lon,max-lat,max-lon'")
	coverageCmd.Flags().Bool("list", false, "print the keys of uncached tiles")
}

func runCoverage(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetUint32("level")
	bbox, _ := cmd.Flags().GetString("bbox")
	list, _ := cmd.Flags().GetBool("list")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg.Map, log)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := regionKeys(a.Map.Profile(), bbox, level)
	if err != nil {
		return err
	}

	frame := maps.NewFrame(a.Map, maps.PartsTerrain)
	var missing []tile.TileKey
	bar := newBar(cmd, len(keys), "Checking ")
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			bar.Finish()
			return err
		}
		if !frame.IsCached(ctx, k) {
			missing = append(missing, k)
		}
		bar.Increment()
	}
	bar.Finish()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Level:    %d\n", level)
	fmt.Fprintf(out, "Tiles:    %d\n", len(keys))
	fmt.Fprintf(out, "Cached:   %d\n", len(keys)-len(missing))
	fmt.Fprintf(out, "Uncached: %d\n", len(missing))
	if list {
		for _, k := range missing {
			fmt.Fprintln(out, k.String())
		}
	}
	return nil
}

// regionKeys lists the keys of p at level covering a --bbox region.
func regionKeys(p *tile.Profile, bbox string, level uint32) ([]tile.TileKey, error) {
	if level > tile.MaxLevel {
		return nil, fmt.Errorf("level %d out of range 0-%d", level, tile.MaxLevel)
	}
	ext, err := parseBBox(bbox)
	if err != nil {
		return nil, err
	}
	if err := tile.ValidateExtent(ext); err != nil {
		return nil, err
	}
	ext, err = tile.EPSG4326.TransformBound(ext, p.SRS())
	if err != nil {
		return nil, err
	}
	keys := p.TilesInExtent(ext, level)
	if len(keys) == 0 {
		return nil, fmt.Errorf("region %s covers no tiles of %s", bbox, p.Name())
	}
	return keys, nil
}
