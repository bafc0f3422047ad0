package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiesman99/retile/internal/config"
	"github.com/kiesman99/retile/internal/dataset"
	"github.com/kiesman99/retile/internal/logging"
	"github.com/kiesman99/retile/internal/retile"
	"github.com/kiesman99/retile/pkg/tile"
)

// viper keys of the flags shared by run and jobs
var jobFlagKeys = map[string]string{
	"source-template":    "source.template",
	"source-preset":      "source.preset",
	"source-compression": "source.compression",
	"source-manifest":    "source.manifest",
	"cache-slots":        "source.cache_slots",
	"output-template":    "output.template",
	"output-preset":      "output.preset",
	"output-compression": "output.compression",
	"begin-level":        "job.begin_level",
	"end-level":          "job.end_level",
}

func addJobFlags(flags *pflag.FlagSet) {
	flags.String("source-template", "", "source tile template with {x}, {y} and {z} placeholders")
	flags.String("source-preset", "", "source format preset (srtm|color)")
	flags.String("source-compression", "", "source compression (raw|png|tiff|zstd|lz4)")
	flags.String("source-manifest", "", "JSON list of existing source tiles")
	flags.String("source-offset", "", "pixel position of source tile 0,0 as 'x,y'")
	flags.Int("cache-slots", 0, "number of decoded source tiles kept in memory")

	flags.String("output-template", "", "output tile template with {x}, {y} and {z} placeholders")
	flags.String("output-preset", "", "output format preset (srtm|color)")
	flags.String("output-compression", "", "output compression (raw|png|tiff|zstd|lz4)")
	flags.String("output-size", "", "output tile size as 'width,height'")

	flags.String("region", "", "level-0 pixel region as 'x0,y0,x1,y1' (default: manifest bounds)")
	flags.Int("begin-level", 0, "coarsest pyramid level to produce")
	flags.Int("end-level", 0, "finest pyramid level to produce")
}

// bindJobFlags binds the flags of the command being executed. run and jobs
// share keys, so binding happens at run time rather than in init.
func bindJobFlags(cmd *cobra.Command, _ []string) error {
	for name, key := range jobFlagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// applyPointFlags sets the fields whose flags are parsed here instead of by
// the config decoder, so an empty default never overrides the config file
func applyPointFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source-offset") {
		s, _ := flags.GetString("source-offset")
		p, err := config.ParsePoint(s)
		if err != nil {
			return fmt.Errorf("--source-offset: %w", err)
		}
		cfg.Source.Offset = p
	}
	if flags.Changed("output-size") {
		s, _ := flags.GetString("output-size")
		p, err := config.ParsePoint(s)
		if err != nil {
			return fmt.Errorf("--output-size: %w", err)
		}
		cfg.Output.Format.Size = p
	}
	if flags.Changed("region") {
		s, _ := flags.GetString("region")
		b, err := config.ParseBox(s)
		if err != nil {
			return fmt.Errorf("--region: %w", err)
		}
		cfg.Job.Region = &b
	}
	return nil
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func loadJobConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	if err := applyPointFlags(cmd, &cfg); err != nil {
		return cfg, nil, err
	}
	if err := cfg.ValidateRetile(); err != nil {
		return cfg, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func newTransport(cfg config.Config) *tile.Router {
	return tile.NewRouter(tile.NewHTTPClient(cfg.HTTP.Timeout), cfg.HTTP.UserAgent, cfg.HTTP.Headers, afero.NewOsFs())
}

// pipeline is a planned retile run
type pipeline struct {
	source *dataset.Provider
	output *dataset.Writer
	region tile.Box
	jobs   []retile.Job
}

func planPipeline(ctx context.Context, cfg config.Config, transport *tile.Router, logger *zap.Logger) (*pipeline, error) {
	srcCodec, err := cfg.Source.Codec()
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	outCodec, err := cfg.Output.Codec()
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	var manifest *dataset.Manifest
	if cfg.Source.Manifest != "" {
		manifest, err = dataset.LoadManifest(ctx, transport, cfg.Source.Manifest)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded manifest", zap.String("resource", cfg.Source.Manifest), zap.Int("tiles", manifest.Len()))
	}

	src, err := dataset.NewProvider(cfg.Source.Template, srcCodec, transport, dataset.ProviderOptions{
		Offset:     cfg.Source.Offset,
		CacheSlots: cfg.Source.CacheSlots,
		Manifest:   manifest,
		Logger:     logger.Named("source"),
	})
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	out, err := dataset.NewWriter(cfg.Output.Template, outCodec, transport, logger.Named("output"))
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	var region tile.Box
	if cfg.Job.Region != nil {
		region = *cfg.Job.Region
	} else {
		region = manifest.PixelBounds(src.Space())
	}
	if region.Empty() {
		return nil, fmt.Errorf("region %v is empty", region)
	}

	jobs, err := retile.GenerateJobs(src, out.Space(), region, cfg.Job.BeginLevel, cfg.Job.EndLevel)
	if err != nil {
		return nil, err
	}
	logger.Info("planned jobs",
		zap.Stringer("region_begin", region.Begin),
		zap.Stringer("region_end", region.End),
		zap.Int("begin_level", cfg.Job.BeginLevel),
		zap.Int("end_level", cfg.Job.EndLevel),
		zap.Int("jobs", len(jobs)),
	)
	return &pipeline{source: src, output: out, region: region, jobs: jobs}, nil
}
