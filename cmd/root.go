package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/kiesman99/geostitch/internal/config"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/internal/stitch"
	"github.com/kiesman99/geostitch/pkg/tile"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "geostitch",
	Short: "Mosaic and crop map tiles for any region, or serve a layered tile map",
	Long: `geostitch downloads and stitches together map tiles from web map services.

Without a subcommand it fetches every tile of one URL template covering a
region, mosaics them, and crops the result to the region. The image is written
as PNG, optionally with a worldfile holding its georeferencing.

Examples:
  # OpenStreetMap tiles at zoom level 10 (bounding box mode)
  geostitch --min-lat 37.371794 --min-lon -122.917099 --max-lat 38.226853 --max-lon -121.564407 --zoom 10 --url http://a.tile.openstreetmap.org/{z}/{x}/{y}.png -o baymodel.png

  # Same region with a worldfile
  geostitch --bbox 37.371794,-122.917099,38.226853,-121.564407 --zoom 10 --url http://a.tile.openstreetmap.org/{z}/{x}/{y}.png -w -o baymodel.png

  # Centered image around Tokyo
  geostitch --lat 35.6824 --lon 139.7531 --width 640 --height 480 --zoom 10 --url http://b.tile.stamen.com/watercolor/{z}/{x}/{y}.jpg -o tokyo.png

  # The extent of one XYZ tile, re-assembled from a geodetic source
  geostitch --tile 3/4/2 --profile global-geodetic --url http://example.org/{z}/{x}/{-y}.png -o tile.png

  # Serve the layers of a config file
  geostitch serve --config geostitch.yaml`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().NFlag() == 0 {
			return cmd.Help()
		}
		return runStitch(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.geostitch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console|json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.Flags().StringP("format", "f", "png", "output format (png)")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write world file")

	// Coordinate options - Bounding box mode
	rootCmd.Flags().Float64("min-lat", 0, "minimum latitude (south boundary)")
	rootCmd.Flags().Float64("min-lon", 0, "minimum longitude (west boundary)")
	rootCmd.Flags().Float64("max-lat", 0, "maximum latitude (north boundary)")
	rootCmd.Flags().Float64("max-lon", 0, "maximum longitude (east boundary)")
	rootCmd.Flags().String("bbox", "", "bounding box as 'min-lat,min-lon,max-lat,max-lon'")

	// Coordinate options - Centered mode
	rootCmd.Flags().Float64("lat", 0, "center latitude")
	rootCmd.Flags().Float64("lon", 0, "center longitude")
	rootCmd.Flags().Int("width", 0, "image width in pixels (centered mode)")
	rootCmd.Flags().Int("height", 0, "image height in pixels (centered mode)")

	// Coordinate options - Tile mode
	rootCmd.Flags().String("tile", "", "XYZ tile 'z/x/y' whose extent to assemble")

	// Tile options
	rootCmd.Flags().Int("zoom", 0, "zoom level of the source tiles")
	rootCmd.Flags().StringP("url", "u", "", "tile URL template with {z}, {x}, {y} placeholders (required)")
	rootCmd.Flags().String("profile", "spherical-mercator", "tiling profile of the source (spherical-mercator|global-geodetic)")
	rootCmd.Flags().IntP("tilesize", "t", tile.DefaultTileSize, "tile size in pixels")
	rootCmd.Flags().IntP("concurrency", "c", 4, "parallel tile downloads")

	// HTTP options
	rootCmd.Flags().String("user-agent", "geostitch/1.0", "HTTP User-Agent header")

	for _, name := range []string{
		"output", "format", "worldfile",
		"min-lat", "min-lon", "max-lat", "max-lon", "bbox",
		"lat", "lon", "width", "height", "tile",
		"zoom", "url", "profile", "tilesize", "concurrency", "user-agent",
	} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".geostitch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".geostitch")
	}

	viper.SetEnvPrefix("geostitch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the zap logger described by the log.* settings.
func newLogger() (*logger.ZapLogger, error) {
	return logger.NewZapLogger(logger.Config{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	})
}

// loadConfig decodes and validates the full configuration file.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// newBar returns a started progress bar writing to the command's stderr.
func newBar(cmd *cobra.Command, total int, prefix string) *pb.ProgressBar {
	bar := pb.New(total).Prefix(prefix)
	bar.Output = cmd.ErrOrStderr()
	bar.ShowSpeed = true
	bar.Start()
	return bar
}

func runStitch(cmd *cobra.Command, args []string) error {
	// Validate required parameters
	url := viper.GetString("url")
	if url == "" {
		return fmt.Errorf("a tile URL is required (use --url)")
	}

	switch format := viper.GetString("format"); format {
	case "png":
	case "geotiff":
		return fmt.Errorf("GeoTIFF output is not supported, use --format png with --worldfile")
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	profile, err := tile.ProfileByName(viper.GetString("profile"))
	if err != nil {
		return err
	}
	req, err := stitchRequest()
	if err != nil {
		return err
	}

	output := viper.GetString("output")
	worldfile := viper.GetBool("worldfile")
	if worldfile && output == "" {
		return fmt.Errorf("can't write a worldfile when writing to stdout (use --output)")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := source.NewXYZ(source.HTTPOptions{
		Name:        "cli",
		URLTemplate: url,
		Profile:     profile,
		UserAgent:   viper.GetString("user-agent"),
		Logger:      log,
	})
	if err != nil {
		return err
	}

	var bar *pb.ProgressBar
	increment := func() {
		if bar != nil {
			bar.Increment()
		}
	}
	st := stitch.New(src,
		stitch.WithLogger(log),
		stitch.WithTileSize(viper.GetInt("tilesize")),
		stitch.WithConcurrency(viper.GetInt("concurrency")),
		stitch.WithProgress(increment),
	)

	keys, region, err := st.Tiles(req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Region:   %s (%s)\n", tile.FormatExtent(region), profile.SRS())
	fmt.Fprintf(cmd.ErrOrStderr(), "Tiles:    %d at level %d\n", len(keys), req.Level)

	bar = newBar(cmd, len(keys), "Fetching ")
	res, err := st.Stitch(cmd.Context(), req)
	bar.Finish()

	var tileErr *stitch.TileError
	if errors.As(err, &tileErr) {
		for _, f := range tileErr.FailedTiles {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f.Key, f.Error)
		}
		return err
	}
	if err != nil {
		return err
	}
	if len(res.FailedTiles) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d of %d tiles missing, left transparent\n", len(res.FailedTiles), res.TotalTiles)
	}

	g := res.Image
	fmt.Fprintf(cmd.ErrOrStderr(), "Bounds:   %s\n", tile.FormatExtent(g.Extent))
	fmt.Fprintf(cmd.ErrOrStderr(), "Size:     %dx%d\n", g.Width(), g.Height())

	if err := tile.WritePNG(output, g.Image); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if worldfile {
		name, err := tile.WriteWorldFile(output, g)
		if err != nil {
			return fmt.Errorf("write worldfile: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Worldfile: %s\n", name)
	}
	return nil
}

// stitchRequest picks the mode from the flags that were set: tile,
// centered, or bounding box.
func stitchRequest() (stitch.Request, error) {
	zoom := viper.GetInt("zoom")
	if zoom < 0 || zoom > tile.MaxLevel {
		return stitch.Request{}, fmt.Errorf("zoom level %d out of range 0-%d", zoom, tile.MaxLevel)
	}

	if t := viper.GetString("tile"); t != "" {
		id, err := tile.ParseTileID(t)
		if err != nil {
			return stitch.Request{}, err
		}
		key, err := tile.KeyForMapTile(tile.SphericalMercator(), maptile.New(id.X, id.Y, maptile.Zoom(id.Level)))
		if err != nil {
			return stitch.Request{}, err
		}
		ext, err := tile.EPSG3857.TransformBound(key.Extent(), tile.EPSG4326)
		if err != nil {
			return stitch.Request{}, err
		}
		level := uint32(zoom)
		if zoom == 0 {
			level = id.Level
		}
		return stitch.Request{Level: level, Extent: ext}, nil
	}

	if zoom == 0 {
		return stitch.Request{}, fmt.Errorf("zoom level is required (use --zoom)")
	}
	level := uint32(zoom)

	lat := viper.GetFloat64("lat")
	lon := viper.GetFloat64("lon")
	width := viper.GetInt("width")
	height := viper.GetInt("height")
	if lat != 0 || lon != 0 || width != 0 || height != 0 {
		if width <= 0 || height <= 0 {
			return stitch.Request{}, fmt.Errorf("centered mode requires all of: --lat, --lon, --width, --height")
		}
		return stitch.Request{Level: level, Center: orb.Point{lon, lat}, Width: width, Height: height}, nil
	}

	if bbox := viper.GetString("bbox"); bbox != "" {
		ext, err := parseBBox(bbox)
		if err != nil {
			return stitch.Request{}, err
		}
		return stitch.Request{Level: level, Extent: ext}, nil
	}

	minLat := viper.GetFloat64("min-lat")
	maxLat := viper.GetFloat64("max-lat")
	minLon := viper.GetFloat64("min-lon")
	maxLon := viper.GetFloat64("max-lon")
	if minLat != 0 || maxLat != 0 || minLon != 0 || maxLon != 0 {
		return stitch.Request{Level: level, Extent: orb.Bound{
			Min: orb.Point{minLon, minLat},
			Max: orb.Point{maxLon, maxLat},
		}}, nil
	}

	return stitch.Request{}, fmt.Errorf("either specify bounding box coordinates (--min-lat, --min-lon, --max-lat, --max-lon or --bbox), centered coordinates (--lat, --lon, --width, --height) or --tile")
}

// parseBBox parses "min-lat,min-lon,max-lat,max-lon" into a lon/lat bound.
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox must be in format 'min-lat,min-lon,max-lat,max-lon'")
	}
	names := [4]string{"min-lat", "min-lon", "max-lat", "max-lon"}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid %s in bbox: %v", names[i], err)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[1], v[0]}, Max: orb.Point{v[3], v[2]}}, nil
}
