package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/geostitch/internal/app"
	"github.com/kiesman99/geostitch/internal/layer"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/maps"
	"github.com/kiesman99/geostitch/pkg/tile"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the cache for a region and range of levels",
	Long: `Request every map tile of a region from the enabled layers so that later
requests are answered from the cache. Layers whose cache policy does not allow
writes are skipped.

Examples:
  # Seed levels 0 to 6 of the whole world
  geostitch seed --config geostitch.yaml --max-level 6

  # Seed one layer over Iceland with 8 workers
  geostitch seed --config geostitch.yaml --layer dem --min-level 4 --max-level 10 --bbox 63,-25,67,-13 -c 8`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().Uint32("min-level", 0, "first level to seed")
	seedCmd.Flags().Uint32("max-level", 4, "last level to seed")
	seedCmd.Flags().String("bbox", worldBBox, "region as 'min-lat,min-lon,max-lat,max-lon'")
	seedCmd.Flags().StringSlice("layer", nil, "layers to seed (default: all enabled layers)")
	seedCmd.Flags().IntP("concurrency", "c", 4, "parallel tile requests")
}

type seedStats struct {
	created atomic.Int64
	empty   atomic.Int64
	failed  atomic.Int64
}

func runSeed(cmd *cobra.Command, args []string) error {
	minLevel, _ := cmd.Flags().GetUint32("min-level")
	maxLevel, _ := cmd.Flags().GetUint32("max-level")
	bbox, _ := cmd.Flags().GetString("bbox")
	names, _ := cmd.Flags().GetStringSlice("layer")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if minLevel > maxLevel {
		return fmt.Errorf("min-level %d above max-level %d", minLevel, maxLevel)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg.Map, log)
	if err != nil {
		return err
	}
	defer a.Close()

	layers, err := seedLayers(maps.NewFrame(a.Map, maps.PartsTerrain), names)
	if err != nil {
		return err
	}
	if len(layers) == 0 {
		return fmt.Errorf("no enabled layer with a writable cache to seed")
	}

	var stats seedStats
	for level := minLevel; level <= maxLevel; level++ {
		keys, err := regionKeys(a.Map.Profile(), bbox, level)
		if err != nil {
			return err
		}
		bar := newBar(cmd, len(keys)*len(layers), fmt.Sprintf("Level %d : ", level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, k := range keys {
			for _, l := range layers {
				g.Go(func() error {
					defer bar.Increment()
					seedTile(gctx, l, k, &stats, log)
					return gctx.Err()
				})
			}
		}
		err = g.Wait()
		bar.FinishPrint(fmt.Sprintf("level %d finished ~", level))
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created: %d\nEmpty:   %d\nFailed:  %d\n",
		stats.created.Load(), stats.empty.Load(), stats.failed.Load())
	if n := stats.failed.Load(); n > 0 {
		return fmt.Errorf("%d tiles failed", n)
	}
	return nil
}

// seedLayers picks the enabled terrain layers named in names, or all of
// them, that may write to the cache.
func seedLayers(f maps.Frame, names []string) ([]layer.Terrain, error) {
	for _, n := range names {
		if !slices.ContainsFunc(f.Layers(), func(l layer.Layer) bool { return l.Name() == n }) {
			return nil, fmt.Errorf("unknown layer %q", n)
		}
	}
	var out []layer.Terrain
	for _, l := range f.Layers() {
		if len(names) > 0 && !slices.Contains(names, l.Name()) {
			continue
		}
		t, ok := l.AsTerrainLayer()
		if !ok || !t.Enabled() {
			continue
		}
		if s := t.CacheSettings(); !s.IsCacheEnabled() || !s.Policy.IsCacheWriteable() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// seedTile creates key on l, which writes it through to the cache.
func seedTile(ctx context.Context, l layer.Terrain, key tile.TileKey, stats *seedStats, log logger.Logger) {
	var (
		found bool
		err   error
	)
	if img, ok := l.AsImageLayer(); ok {
		var g *tile.GeoImage
		g, err = img.CreateImage(ctx, key)
		found = g != nil
	} else if elev, ok := l.AsElevationLayer(); ok {
		var hf *tile.HeightField
		hf, err = elev.CreateHeightField(ctx, key)
		found = hf != nil
	} else {
		return
	}

	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		stats.failed.Add(1)
		log.Warn("seed: tile failed", "layer", l.Name(), "key", key.String(), "error", err)
	case !found:
		stats.empty.Add(1)
	default:
		stats.created.Add(1)
	}
}
