package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImageFile writes a solid-color PNG and returns its path.
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "handler-test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestImageFetch(t *testing.T) {
	cs := connect(t, newTestServer(t))
	path := createTestImageFile(t, 40, 20, color.RGBA{255, 0, 0, 255})

	var res FetchResult
	out := callTool(t, cs, ToolFetch, map[string]any{"source": path}, &res)
	require.False(t, out.IsError)
	assert.Equal(t, path, res.Source)
	assert.Equal(t, "file", res.Kind)
	assert.Equal(t, "disk", res.LoadedFrom)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 20, res.Height)
	assert.Equal(t, "#F00000", res.DominantColor)
	assert.NotEmpty(t, res.Key)

	require.Len(t, out.Content, 2)
	_, ok := out.Content[0].(*mcp.TextContent)
	assert.True(t, ok)
	img, ok := out.Content[1].(*mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	cfg, err := png.DecodeConfig(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)

	var again FetchResult
	callTool(t, cs, ToolFetch, map[string]any{"source": path}, &again)
	assert.Equal(t, "memory", again.LoadedFrom)
	assert.Equal(t, res.Key, again.Key)
}

func TestImageFetch_WithOptions(t *testing.T) {
	cs := connect(t, newTestServer(t))
	path := createTestImageFile(t, 40, 20, color.RGBA{0, 0, 255, 255})

	var res FetchResult
	out := callTool(t, cs, ToolFetch, map[string]any{
		"source":        path,
		"width":         10,
		"height":        10,
		"center_crop":   true,
		"transforms":    []string{"grayscale"},
		"include_image": false,
	}, &res)
	require.False(t, out.IsError)
	assert.Equal(t, 10, res.Width)
	assert.Equal(t, 10, res.Height)
	for _, c := range out.Content {
		_, isImage := c.(*mcp.ImageContent)
		assert.False(t, isImage, "include_image=false returns no image")
	}
}

func TestImageFetch_Errors(t *testing.T) {
	cs := connect(t, newTestServer(t))
	path := createTestImageFile(t, 4, 4, color.White)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing source", args: map[string]any{}, want: "uri must not be empty"},
		{name: "unknown transform", args: map[string]any{"source": path, "transforms": []string{"melt"}}, want: "melt"},
		{name: "crop without size", args: map[string]any{"source": path, "center_crop": true}, want: "center crop"},
		{name: "crop and inside", args: map[string]any{"source": path, "width": 2, "height": 2, "center_crop": true, "center_inside": true}, want: "mutually exclusive"},
		{name: "missing file", args: map[string]any{"source": filepath.Join(t.TempDir(), "nope.png")}, want: "not found"},
		{name: "unsupported scheme", args: map[string]any{"source": "ftp://example.com/a.png"}, want: "ftp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, cs, ToolFetch, tt.args, nil)
			assert.Contains(t, errorText(t, res), tt.want)
		})
	}
}

func TestImageFetch_RejectsUnknownArguments(t *testing.T) {
	cs := connect(t, newTestServer(t))
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolFetch,
		Arguments: map[string]any{"path": "/tmp/a.png"},
	})
	require.Error(t, err)
}

func TestImageFetchBatch(t *testing.T) {
	cs := connect(t, newTestServer(t))
	path := createTestImageFile(t, 8, 8, color.RGBA{0, 255, 0, 255})

	var res BatchResult
	out := callTool(t, cs, ToolFetchBatch, map[string]any{
		"requests": []map[string]any{
			{"source": path},
			{"source": path, "include_image": false},
			{"source": filepath.Join(t.TempDir(), "missing.png")},
		},
	}, &res)
	require.False(t, out.IsError)
	require.Len(t, res.Results, 3)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, res.Results[0].Key, res.Results[1].Key)
	assert.Empty(t, res.Results[0].Error)
	assert.NotEmpty(t, res.Results[2].Error)

	images := 0
	for _, c := range out.Content {
		if _, ok := c.(*mcp.ImageContent); ok {
			images++
		}
	}
	assert.Equal(t, 1, images, "only the first request asked for its image")
}

func TestImageFetchBatch_Bounds(t *testing.T) {
	cs := connect(t, newTestServer(t))

	res := callTool(t, cs, ToolFetchBatch, map[string]any{"requests": []any{}}, nil)
	assert.Contains(t, errorText(t, res), "must not be empty")

	reqs := make([]map[string]any, MaxBatchSize+1)
	for i := range reqs {
		reqs[i] = map[string]any{"source": "/tmp/x.png"}
	}
	res = callTool(t, cs, ToolFetchBatch, map[string]any{"requests": reqs}, nil)
	assert.Contains(t, errorText(t, res), "at most")
}

func TestImageClassify(t *testing.T) {
	cs := connect(t, newTestServer(t))
	path := createTestImageFile(t, 4, 4, color.Black)

	tests := []struct {
		name       string
		args       map[string]any
		kind       string
		registered bool
	}{
		{name: "file", args: map[string]any{"source": path}, kind: "file", registered: true},
		{name: "network", args: map[string]any{"source": "https://example.com/a.png"}, kind: "network", registered: true},
		{name: "content", args: map[string]any{"source": "content://media/1"}, kind: "content", registered: false},
		{name: "resource", args: map[string]any{"resource_id": 7}, kind: "resource", registered: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res ClassifyResult
			out := callTool(t, cs, ToolClassify, tt.args, &res)
			require.False(t, out.IsError)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.registered, res.Registered)
			assert.NotEmpty(t, res.Key)
			assert.False(t, res.Cached)
		})
	}

	res := callTool(t, cs, ToolClassify, map[string]any{"source": "gopher://x"}, nil)
	assert.Contains(t, errorText(t, res), "gopher")
}

func TestImageClassify_ReportsCached(t *testing.T) {
	cs := connect(t, newTestServer(t))
	path := createTestImageFile(t, 4, 4, color.Black)
	args := map[string]any{"source": path, "include_image": false}

	var fetched FetchResult
	callTool(t, cs, ToolFetch, args, &fetched)

	var res ClassifyResult
	callTool(t, cs, ToolClassify, args, &res)
	assert.True(t, res.Cached)
	assert.Equal(t, fetched.Key, res.Key)
}

func TestCacheStatsAndClear(t *testing.T) {
	s := newTestServer(t)
	cs := connect(t, s)
	a := createTestImageFile(t, 4, 4, color.Black)
	b := createTestImageFile(t, 4, 4, color.White)

	var first, second FetchResult
	callTool(t, cs, ToolFetch, map[string]any{"source": a, "include_image": false}, &first)
	callTool(t, cs, ToolFetch, map[string]any{"source": b, "include_image": false}, &second)
	require.NotEqual(t, first.Key, second.Key)

	var stats struct {
		Cache struct {
			Entries int    `json:"entries"`
			Puts    uint64 `json:"puts"`
		} `json:"cache"`
		InFlight int `json:"in_flight"`
	}
	callTool(t, cs, ToolCacheStats, nil, &stats)
	assert.Equal(t, 2, stats.Cache.Entries)
	assert.EqualValues(t, 2, stats.Cache.Puts)
	assert.Zero(t, stats.InFlight)

	var cleared CacheClearResult
	callTool(t, cs, ToolCacheClear, map[string]any{"key": first.Key}, &cleared)
	assert.Equal(t, 1, cleared.Evicted)
	callTool(t, cs, ToolCacheClear, map[string]any{"key": first.Key}, &cleared)
	assert.Equal(t, 0, cleared.Evicted)

	callTool(t, cs, ToolCacheClear, nil, &cleared)
	assert.Equal(t, 1, cleared.Evicted)
	assert.Zero(t, s.pipeline.Cache().Len())
}

func TestImageTransforms(t *testing.T) {
	cs := connect(t, newTestServer(t))

	var res TransformsResult
	callTool(t, cs, ToolTransforms, nil, &res)
	names := make([]string, 0, len(res.Transforms))
	for _, tr := range res.Transforms {
		names = append(names, tr.Name)
	}
	assert.Contains(t, names, "blur")
	assert.Contains(t, names, "grayscale")
	assert.IsIncreasing(t, names)
}

func TestUnknownTool(t *testing.T) {
	cs := connect(t, newTestServer(t))
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "image_ocr_full"})
	require.Error(t, err)
}
