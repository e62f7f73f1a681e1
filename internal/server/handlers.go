package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
	"github.com/ironsheep/image-fetch/internal/pipeline"
	"github.com/ironsheep/image-fetch/internal/transform"
)

// dominantColorStep is the sampling stride used for the dominant color summary.
const dominantColorStep = 4

// MaxBatchSize bounds image_fetch_batch.
const MaxBatchSize = 64

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Fetch Handlers ===

// FetchArgs describes one fetch request.
type FetchArgs struct {
	Source       string   `json:"source,omitempty" jsonschema:"Image source: absolute path or a file, http(s), content or resource URI"`
	ResourceID   int      `json:"resource_id,omitempty" jsonschema:"Bundled resource id, used instead of source when non-zero"`
	Width        int      `json:"width,omitempty" jsonschema:"Target width in pixels. 0 keeps the aspect ratio when height is set"`
	Height       int      `json:"height,omitempty" jsonschema:"Target height in pixels. 0 keeps the aspect ratio when width is set"`
	CenterCrop   bool     `json:"center_crop,omitempty" jsonschema:"Fill the target size and crop the overflow. Requires width and height"`
	CenterInside bool     `json:"center_inside,omitempty" jsonschema:"Fit within the target size. Requires width and height"`
	Rotation     float64  `json:"rotation,omitempty" jsonschema:"Clockwise rotation in degrees"`
	PivotX       *float64 `json:"pivot_x,omitempty" jsonschema:"Rotation pivot X, set together with pivot_y"`
	PivotY       *float64 `json:"pivot_y,omitempty" jsonschema:"Rotation pivot Y, set together with pivot_x"`
	ScaleX       float64  `json:"scale_x,omitempty" jsonschema:"Explicit horizontal scale factor"`
	ScaleY       float64  `json:"scale_y,omitempty" jsonschema:"Explicit vertical scale factor"`
	Transforms   []string `json:"transforms,omitempty" jsonschema:"Named transformations applied in order, such as grayscale or blur:2. See image_transforms"`
	SkipCache    bool     `json:"skip_cache,omitempty" jsonschema:"Bypass the memory cache for this request"`
	IncludeImage *bool    `json:"include_image,omitempty" jsonschema:"Return the image as PNG content. Default true"`
}

func (a FetchArgs) source() fetch.Source {
	return fetch.Source{URI: a.Source, ResourceID: a.ResourceID}
}

func (a FetchArgs) includeImage() bool {
	return a.IncludeImage == nil || *a.IncludeImage
}

// builder translates a into a pipeline request.
func (s *Server) builder(a FetchArgs) *pipeline.RequestBuilder {
	var b *pipeline.RequestBuilder
	if a.ResourceID != 0 {
		b = s.pipeline.LoadResource(a.ResourceID)
	} else {
		b = s.pipeline.Load(a.Source)
	}

	if a.Width != 0 || a.Height != 0 {
		b.Resize(a.Width, a.Height)
	}
	if a.CenterCrop {
		b.CenterCrop()
	}
	if a.CenterInside {
		b.CenterInside()
	}
	switch {
	case a.PivotX != nil && a.PivotY != nil:
		b.RotateAbout(a.Rotation, *a.PivotX, *a.PivotY)
	case a.Rotation != 0:
		b.Rotate(a.Rotation)
	}
	if a.ScaleX != 0 || a.ScaleY != 0 {
		b.Scale(a.ScaleX, a.ScaleY)
	}
	if len(a.Transforms) > 0 {
		b.TransformNamed(a.Transforms...)
	}
	if a.SkipCache {
		b.SkipCache()
	}
	return b
}

// FetchResult describes one fetched image.
type FetchResult struct {
	Source        string `json:"source"`
	Key           string `json:"key,omitempty"`
	Kind          string `json:"kind,omitempty"`
	LoadedFrom    string `json:"loaded_from,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	DominantColor string `json:"dominant_color,omitempty"`
	Error         string `json:"error,omitempty"`
}

// fetch runs a through the pipeline. The PNG is nil unless a asks for it.
// res is never nil so that failures can still report source and key.
func (s *Server) fetch(ctx context.Context, a FetchArgs) (res *FetchResult, png []byte, err error) {
	src := a.source()
	res = &FetchResult{Source: src.ID()}
	if kind, err := fetch.Classify(src); err == nil {
		res.Kind = kind.String()
	}

	b := s.builder(a)
	key, err := b.Key()
	if err != nil {
		return res, nil, err
	}
	res.Key = key.String()

	bmp, from, err := b.Fetch(ctx)
	if err != nil {
		return res, nil, err
	}
	res.LoadedFrom = from.String()
	res.Width = bmp.Width()
	res.Height = bmp.Height()
	res.DominantColor = imaging.DominantColor(bmp.Image(), dominantColorStep)

	if a.includeImage() {
		if png, err = imaging.PNG(bmp); err != nil {
			return res, nil, err
		}
	}
	return res, png, nil
}

func imageContent(png []byte) *mcp.ImageContent {
	return &mcp.ImageContent{Data: png, MIMEType: "image/png"}
}

func (s *Server) handleImageFetch(ctx context.Context, _ *mcp.CallToolRequest, a FetchArgs) (*mcp.CallToolResult, *FetchResult, error) {
	res, png, err := s.fetch(ctx, a)
	if err != nil {
		s.logger.V(1).Info("fetch failed", "source", res.Source, "error", err.Error())
		return nil, nil, err
	}
	if png == nil {
		return nil, res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: mustMarshalJSON(res)},
			imageContent(png),
		},
	}, res, nil
}

// FetchBatchArgs holds the requests of image_fetch_batch.
type FetchBatchArgs struct {
	Requests []FetchArgs `json:"requests" jsonschema:"Fetch requests, each with the same fields as image_fetch"`
}

// BatchResult holds per-request results in request order. Failed requests
// carry an error message instead of failing the whole call.
type BatchResult struct {
	Results   []*FetchResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

func (s *Server) handleImageFetchBatch(ctx context.Context, _ *mcp.CallToolRequest, a FetchBatchArgs) (*mcp.CallToolResult, *BatchResult, error) {
	if len(a.Requests) == 0 {
		return nil, nil, errors.New("requests must not be empty")
	}
	if len(a.Requests) > MaxBatchSize {
		return nil, nil, fmt.Errorf("at most %d requests per batch, got %d", MaxBatchSize, len(a.Requests))
	}

	results := make([]*FetchResult, len(a.Requests))
	images := make([][]byte, len(a.Requests))

	// Each request fails on its own; the group only bounds the wait.
	var g errgroup.Group
	for i, req := range a.Requests {
		g.Go(func() error {
			res, png, err := s.fetch(ctx, req)
			if err != nil {
				res.Error = err.Error()
			}
			results[i], images[i] = res, png
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{Results: results}
	for _, r := range results {
		if r.Error != "" {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}

	content := []mcp.Content{&mcp.TextContent{Text: mustMarshalJSON(out)}}
	for _, png := range images {
		if png != nil {
			content = append(content, imageContent(png))
		}
	}
	return &mcp.CallToolResult{Content: content}, out, nil
}

// === Inspection Handlers ===

// ClassifyResult reports how a source would be served.
type ClassifyResult struct {
	Source     string `json:"source"`
	Kind       string `json:"kind"`
	Registered bool   `json:"registered"`
	Key        string `json:"key"`
	Cached     bool   `json:"cached"`
}

func (s *Server) handleImageClassify(_ context.Context, _ *mcp.CallToolRequest, a FetchArgs) (*mcp.CallToolResult, *ClassifyResult, error) {
	src := a.source()
	kind, err := fetch.Classify(src)
	if err != nil {
		return nil, nil, err
	}
	_, _, regErr := s.pipeline.Registry().For(src)

	key, err := s.builder(a).Key()
	if err != nil {
		return nil, nil, err
	}
	_, cached := s.pipeline.QuickMemoryCacheCheck(key)

	return nil, &ClassifyResult{
		Source:     src.ID(),
		Kind:       kind.String(),
		Registered: regErr == nil,
		Key:        key.String(),
		Cached:     cached,
	}, nil
}

// TransformsResult lists the named transformations.
type TransformsResult struct {
	Transforms []transform.Info `json:"transforms"`
}

func (s *Server) handleImageTransforms(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, *TransformsResult, error) {
	return nil, &TransformsResult{Transforms: transform.Catalog()}, nil
}

// === Cache Handlers ===

func (s *Server) handleImageCacheStats(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, *pipeline.Snapshot, error) {
	snap := s.pipeline.Snapshot()
	return nil, &snap, nil
}

// CacheClearArgs selects what image_cache_clear drops.
type CacheClearArgs struct {
	Key string `json:"key,omitempty" jsonschema:"Cache key as returned by image_fetch or image_classify. Empty clears everything"`
}

// CacheClearResult reports how many entries were dropped.
type CacheClearResult struct {
	Evicted int `json:"evicted"`
}

func (s *Server) handleImageCacheClear(_ context.Context, _ *mcp.CallToolRequest, a CacheClearArgs) (*mcp.CallToolResult, *CacheClearResult, error) {
	c := s.pipeline.Cache()
	if a.Key != "" {
		n := 0
		if c.Evict(fingerprint.Key(a.Key)) {
			n = 1
		}
		return nil, &CacheClearResult{Evicted: n}, nil
	}
	n := c.Len()
	c.Clear()
	s.logger.V(1).Info("cache cleared", "entries", n)
	return nil, &CacheClearResult{Evicted: n}, nil
}
