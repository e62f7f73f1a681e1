package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	ToolFetch      = "image_fetch"
	ToolFetchBatch = "image_fetch_batch"
	ToolClassify   = "image_classify"
	ToolCacheStats = "image_cache_stats"
	ToolCacheClear = "image_cache_clear"
	ToolTransforms = "image_transforms"
)

// ToolNames lists every tool.
var ToolNames = []string{ToolFetch, ToolFetchBatch, ToolClassify, ToolCacheStats, ToolCacheClear, ToolTransforms}

func readOnly() *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{ReadOnlyHint: true}
}

// registerTools adds every tool to the MCP server. Input and output schemas
// are inferred from the argument and result types.
func (s *Server) registerTools() {
	// Fetching
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolFetch,
		Description: "Fetch an image through the pipeline, apply geometry and named transformations, and return it as PNG image content with a JSON summary. Identical concurrent requests share one fetch and results are kept in a memory cache.",
		Annotations: readOnly(),
	}, s.handleImageFetch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolFetchBatch,
		Description: "Fetch several images concurrently. Requests with the same source and options are coalesced into a single fetch. Failures are reported per request.",
		Annotations: readOnly(),
	}, s.handleImageFetchBatch)

	// Inspection
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolClassify,
		Description: "Report which fetcher would serve a source, the cache key a request would get and whether it is cached, without fetching.",
		Annotations: readOnly(),
	}, s.handleImageClassify)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolTransforms,
		Description: "List the named transformations accepted in the transforms field.",
		Annotations: readOnly(),
	}, s.handleImageTransforms)

	// Cache
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCacheStats,
		Description: "Return memory cache statistics and the number of in-flight fetches.",
		Annotations: readOnly(),
	}, s.handleImageCacheStats)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolCacheClear,
		Description: "Drop every entry from the memory cache, or a single entry when key is given.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, s.handleImageCacheClear)
}
