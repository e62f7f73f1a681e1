// Package server implements an MCP (Model Context Protocol) server in front of
// the image pipeline, built on the official Go SDK.
//
// # Protocol
//
// Run serves one session over stdio using newline-delimited JSON-RPC 2.0.
// Serve accepts any mcp.Transport, which tests use with in-memory pipes.
//
// # Available Tools
//
// Fetching:
//   - image_fetch: Fetch, resize and transform one image, returned as PNG content
//   - image_fetch_batch: Fetch several images concurrently
//
// Inspection:
//   - image_classify: Report the fetcher kind, cache key and cache state of a source
//   - image_transforms: List named transformations
//
// Cache:
//   - image_cache_stats: Cache counters and in-flight fetches
//   - image_cache_clear: Drop one or all cache entries
//
// Input and output schemas are inferred from the argument and result types.
// Every tool returns structured content; image_fetch and image_fetch_batch
// add a JSON text summary and image/png blocks.
//
// Concurrent calls for the same source and options share one fetch in the
// pipeline's dispatcher, and results stay in its memory cache for the
// lifetime of the process.
//
// # Error Handling
//
// Failed fetches and invalid requests are tool errors: the result has
// isError set and the Go error string as text, so the client can correct the
// call. Arguments that do not match the input schema and unknown tools are
// JSON-RPC errors. Within image_fetch_batch, failures are reported per
// request instead.
//
// # Usage
//
//	p, _ := pipeline.New(pipeline.Options{})
//	go p.Start(ctx)
//	srv := server.New(p, server.Options{Version: version})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
