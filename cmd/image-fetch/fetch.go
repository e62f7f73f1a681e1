package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-fetch/internal/imaging"
	"github.com/ironsheep/image-fetch/internal/pipeline"
)

const (
	flagOutput       = "output"
	flagWidth        = "width"
	flagHeight       = "height"
	flagCenterCrop   = "center-crop"
	flagCenterInside = "center-inside"
	flagRotate       = "rotate"
	flagTransform    = "transform"
)

type fetchOptions struct {
	output       string
	width        int
	height       int
	centerCrop   bool
	centerInside bool
	rotate       float64
	transforms   []string
}

func newFetchCmd() *cobra.Command {
	var o fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch SOURCE...",
		Short: "Fetch images concurrently and write them as PNG files",
		Long: `Fetch one or more images through the pipeline and write each result to
the output directory as <key>.png. Sources may be file paths or http(s),
file, content or resource URIs. Identical sources are fetched once.`,
		Example: `  image-fetch fetch --width 128 --height 128 --center-crop https://example.com/a.jpg
  image-fetch fetch --transform grayscale --transform blur:2 ./photo.png`,
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.output, flagOutput, "o", ".", "Directory the PNG files are written to")
	flags.IntVar(&o.width, flagWidth, 0, "Target width in pixels")
	flags.IntVar(&o.height, flagHeight, 0, "Target height in pixels")
	flags.BoolVar(&o.centerCrop, flagCenterCrop, false, "Fill the target size and crop the overflow")
	flags.BoolVar(&o.centerInside, flagCenterInside, false, "Fit within the target size")
	flags.Float64Var(&o.rotate, flagRotate, 0, "Clockwise rotation in degrees")
	flags.StringArrayVar(&o.transforms, flagTransform, nil, `Named transformation, repeatable (e.g. "blur:2")`)
	return cmd
}

func (o fetchOptions) builder(p *pipeline.Pipeline, source string) *pipeline.RequestBuilder {
	b := load(p, source)
	if o.width != 0 || o.height != 0 {
		b.Resize(o.width, o.height)
	}
	if o.centerCrop {
		b.CenterCrop()
	}
	if o.centerInside {
		b.CenterInside()
	}
	if o.rotate != 0 {
		b.Rotate(o.rotate)
	}
	if len(o.transforms) > 0 {
		b.TransformNamed(o.transforms...)
	}
	return b
}

// load treats an argument without a URI scheme as a local path relative to
// the working directory.
func load(p *pipeline.Pipeline, source string) *pipeline.RequestBuilder {
	if source == "" {
		return p.Load(source)
	}
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		return p.Load(source)
	}
	path, err := filepath.Abs(source)
	if err != nil {
		return p.Load(source)
	}
	return p.LoadFile(path)
}

func runFetch(cmd *cobra.Command, sources []string, o fetchOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if err := os.MkdirAll(o.output, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	p, err := pipeline.New(cfg.PipelineOptions(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	started := make(chan error, 1)
	go func() {
		started <- p.Start(ctx)
	}()

	var (
		mu     sync.Mutex
		failed []error
	)
	out := cmd.OutOrStdout()

	var g errgroup.Group
	seen := make(map[string]bool, len(sources))
	for _, source := range sources {
		if seen[source] {
			continue
		}
		seen[source] = true
		g.Go(func() error {
			path, line, err := fetchOne(ctx, p, o, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", source, err))
				return nil
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", source, path, line)
			return nil
		})
	}
	// Workers always return nil and record failures in failed, so the
	// group is only waited on.
	_ = g.Wait()

	cancel()
	if err := <-started; err != nil {
		return err
	}
	return errors.Join(failed...)
}

// fetchOne fetches source and writes it below o.output.
func fetchOne(ctx context.Context, p *pipeline.Pipeline, o fetchOptions, source string) (string, string, error) {
	b := o.builder(p, source)
	key, err := b.Key()
	if err != nil {
		return "", "", err
	}
	bmp, from, err := b.Fetch(ctx)
	if err != nil {
		return "", "", err
	}

	path := filepath.Join(o.output, key.Short()+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	if err := imaging.EncodePNG(f, bmp); err != nil {
		f.Close()
		return "", "", err
	}
	if err := f.Close(); err != nil {
		return "", "", err
	}
	return path, fmt.Sprintf("%dx%d\t%s", bmp.Width(), bmp.Height(), from), nil
}
