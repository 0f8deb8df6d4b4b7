// Package cli implements the media-optimize command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

type options struct {
	preset      string
	presetsFile string
	outDir      string
	jsonOutput  bool
	logLevel    string

	width      int
	height     int
	quality    float64
	format     string
	keepAspect bool
	background string
}

// Report is the outcome for one input file.
type Report struct {
	Input            string               `json:"input"`
	Output           string               `json:"output,omitempty"`
	OriginalSize     int64                `json:"original_size,omitempty"`
	CompressedSize   int64                `json:"compressed_size,omitempty"`
	CompressionRatio float64              `json:"compression_ratio,omitempty"`
	Dimensions       imageproc.Dimensions `json:"dimensions"`
	Error            string               `json:"error,omitempty"`
}

// NewRootCmd builds the command tree around proc.
func NewRootCmd(proc *imageproc.Processor) *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "media-optimize [flags] FILE...",
		Short: "Resize and compress product images with a preset",
		Long: `media-optimize runs image files through the same processor as the media
service and writes the optimized copies to a directory.

Examples:
  media-optimize front.jpg side.jpg              # WooCommerce preset into ./optimized
  media-optimize -p thumbnail -o thumbs *.jpg    # Thumbnail preset
  media-optimize --quality 0.6 --format png a.jpg
  media-optimize presets                         # List presets`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Init(o.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, proc, o, args)
		},
	}

	root.PersistentFlags().StringVar(&o.presetsFile, "presets-file", "", "YAML file with additional presets")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	f := root.Flags()
	f.StringVarP(&o.preset, "preset", "p", imageproc.PresetWooCommerce, "preset name")
	f.StringVarP(&o.outDir, "out", "o", "optimized", "output directory")
	f.BoolVar(&o.jsonOutput, "json", false, "output reports as JSON")
	f.IntVar(&o.width, "width", 0, "override target width")
	f.IntVar(&o.height, "height", 0, "override target height")
	f.Float64Var(&o.quality, "quality", 0, "override quality in (0, 1]")
	f.StringVar(&o.format, "format", "", "override output format (jpeg, png, webp)")
	f.BoolVar(&o.keepAspect, "keep-aspect", true, "letterbox instead of stretching")
	f.StringVar(&o.background, "background", "", "override letterbox colour")

	root.AddCommand(newPresetsCmd(o))
	return root
}

func (o *options) registry() (*imageproc.Registry, error) {
	if o.presetsFile != "" {
		return imageproc.LoadRegistry(o.presetsFile)
	}
	return imageproc.DefaultRegistry(), nil
}

// resolve merges the flags that were set over the preset.
func (o *options) resolve(cmd *cobra.Command) (imageproc.Options, error) {
	reg, err := o.registry()
	if err != nil {
		return imageproc.Options{}, err
	}
	preset, err := reg.Get(o.preset)
	if err != nil {
		return imageproc.Options{}, err
	}

	var ov imageproc.Overrides
	flags := cmd.Flags()
	if flags.Changed("width") {
		ov.Width = &o.width
	}
	if flags.Changed("height") {
		ov.Height = &o.height
	}
	if flags.Changed("quality") {
		ov.Quality = &o.quality
	}
	if flags.Changed("format") {
		format, err := imageproc.ParseFormat(o.format)
		if err != nil {
			return imageproc.Options{}, err
		}
		ov.Format = &format
	}
	if flags.Changed("keep-aspect") {
		ov.MaintainAspectRatio = &o.keepAspect
	}
	if flags.Changed("background") {
		ov.BackgroundColor = &o.background
	}

	opts := preset.With(ov)
	return opts, opts.Validate()
}

func runOptimize(cmd *cobra.Command, proc *imageproc.Processor, o *options, args []string) error {
	opts, err := o.resolve(cmd)
	if err != nil {
		return err
	}
	if !proc.Supports(opts.Format) {
		return fmt.Errorf("format %s: %w", opts.Format, imageproc.ErrNoEncoder)
	}
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	reports := make([]Report, 0, len(args))
	failed := 0
	for _, path := range args {
		r := optimizeFile(cmd.Context(), proc, opts, path, o.outDir)
		if r.Error != "" {
			failed++
		}
		reports = append(reports, r)
	}

	if o.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		printReports(cmd, reports)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}

func optimizeFile(ctx context.Context, proc *imageproc.Processor, opts imageproc.Options, path, outDir string) Report {
	r := Report{Input: path}
	fh, err := os.Open(path)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	file, err := imageproc.ReadFile(filepath.Base(path), fh)
	fh.Close()
	if err != nil {
		r.Error = err.Error()
		return r
	}

	img, err := proc.Process(ctx, file, opts, nil)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	data, _, err := imageproc.DataURL(img.DataURL).Payload()
	if err != nil {
		r.Error = err.Error()
		return r
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r.Output = filepath.Join(outDir, base+"."+img.Format.Extension())
	if err := os.WriteFile(r.Output, data, 0o644); err != nil {
		r.Error = err.Error()
		r.Output = ""
		return r
	}
	r.OriginalSize = img.OriginalSize
	r.CompressedSize = img.CompressedSize
	r.CompressionRatio = img.CompressionRatio
	r.Dimensions = img.Dimensions
	return r
}

func printReports(cmd *cobra.Command, reports []Report) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tOUTPUT\tORIGINAL\tCOMPRESSED\tSAVED\tSIZE")
	for _, r := range reports {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%s\n", r.Input, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%dx%d\n",
			r.Input, r.Output,
			humanize.Bytes(uint64(r.OriginalSize)),
			humanize.Bytes(uint64(r.CompressedSize)),
			r.CompressionRatio,
			r.Dimensions.Width, r.Dimensions.Height)
	}
	tw.Flush()
}

func newPresetsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := o.registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tQUALITY\tFORMAT\tLABEL")
			for _, p := range reg.All() {
				opts := p.Options()
				fmt.Fprintf(tw, "%s\t%dx%d\t%.2f\t%s\t%s\n", p.Name, opts.Width, opts.Height, opts.Quality, opts.Format, p.Label)
			}
			return tw.Flush()
		},
	}
}
