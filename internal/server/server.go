package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ironsheep/image-fetch/internal/pipeline"
)

const instructions = `Fetch images from files, URLs, content roots and bundled resources.
Use image_fetch to resize, crop, rotate and transform an image; identical
requests share a fetch and results are cached in memory. image_transforms
lists the named transformations.`

// Server exposes a Pipeline as MCP tools.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   logr.Logger
	mcp      *mcp.Server
}

// Options configure a Server.
type Options struct {
	// Name and Version are reported in the initialize handshake.
	Name    string
	Version string
	Logger  logr.Logger
}

// New creates a server exposing p. The caller owns p and must Start it.
func New(p *pipeline.Pipeline, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "image-fetch"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	s := &Server{
		pipeline: p,
		logger:   opts.Logger.WithName("server"),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, &mcp.ServerOptions{
		Instructions: instructions,
		// protocol chatter only shows at debug verbosity
		Logger: slog.New(logr.ToSlogHandler(s.logger.V(1))),
	})
	s.registerTools()
	return s
}

// Run serves a single MCP session over stdin and stdout until the client
// disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves a single MCP session over t. Cancelling ctx is a clean stop.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	err := s.mcp.Run(ctx, t)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
