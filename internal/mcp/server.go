package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/embed"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/store"
)

// Default server identity and search limits.
const (
	DefaultServerName    = "GovernmentReporter MCP Server"
	DefaultServerVersion = "1.0.0"
	DefaultSearchLimit   = 10
	MaxSearchLimit       = 50
)

// queryCacheSize bounds the query embedding cache. Queries repeat far
// less often than chunks, so it stays small.
const queryCacheSize = 256

// Tool descriptions teach the client when to reach for each tool, so
// they spell out the alternatives.
const (
	searchDocumentsDescription = "Perform semantic search across ALL government documents (Supreme Court opinions AND Executive Orders by default). Returns hierarchically-chunked text segments with rich legal metadata ranked by semantic relevance. Each chunk preserves document structure (opinion type, section labels, justice attribution). Use this tool for broad searches across document types or when the user doesn't specify a document type. For specialized filtering (by justice, president, agencies, opinion type, dates), use document-specific search tools instead. Results include document context, citations, structural information, and relevance scores."

	searchScotusDescription = "Search Supreme Court opinions with advanced filtering capabilities. Returns hierarchically-chunked opinion segments with rich legal metadata including case names, vote breakdowns, constitutional provisions cited, statutes interpreted, holdings, section labels, and justice attribution. Use this tool when you need SCOTUS-specific filtering (opinion type, justice, date) beyond the general search. Supports filtering by: opinion_type (majority/concurring/dissenting/syllabus), justice (last name like 'Roberts' or 'Sotomayor'), and date range (decision date). Results ranked by semantic relevance to the query."

	searchEODescription = "Search Executive Orders with advanced filtering capabilities. Returns hierarchically-chunked order segments with rich policy metadata including EO numbers, signing dates, presidents, impacted agencies, policy topics, legal authorities cited, economic sectors, and section structure. Use this tool when you need EO-specific filtering (president, agencies, policy topics, dates) beyond general search. Supports filtering by: president (last name), agencies (federal agency codes), policy_topics (topic strings matching indexed values), and date range (signing date). Results ranked by semantic relevance to the query."

	getDocumentDescription = "Retrieve a specific document chunk by its ID (obtained from search results). By default, returns the stored chunk with metadata. Set full_document=true to fetch the complete, unabridged document text directly from government APIs in real-time (CourtListener for SCOTUS opinions, Federal Register for Executive Orders). Use this tool to: (1) get additional context beyond a retrieved chunk, (2) access the full document when chunks are insufficient for the user's needs, or (3) retrieve the complete text of a specific document the user references. Note: full_document=true may have higher latency due to API fetch."

	listCollectionsDescription = "List all available document collections with database statistics (total chunks, vector counts, vector dimensions, available metadata fields). Use this tool ONLY when the user explicitly asks about: (1) what collections are available, (2) database contents or statistics, (3) system capabilities or indexed documents, or (4) what metadata fields can be filtered on. DO NOT use this tool for regular document searches - use the search tools instead. This is a diagnostic/informational tool."
)

// Config configures the MCP server.
type Config struct {
	// Name and Version are advertised in the MCP handshake.
	Name    string
	Version string

	// DefaultLimit applies when a tool call omits limit; MaxLimit caps
	// what a call may request.
	DefaultLimit int
	MaxLimit     int

	// MaxChunkLength truncates chunk text in formatted search results.
	MaxChunkLength int

	// EnableCache wraps the embedder in an LRU keyed by query text, so
	// repeated queries skip the embeddings API.
	EnableCache bool

	// Collections maps document families ("scotus", "executive_orders")
	// to vector store collection names.
	Collections map[string]string

	Logger *slog.Logger
}

// NewConfig returns a Config with production defaults.
func NewConfig() Config {
	return Config{
		Name:           DefaultServerName,
		Version:        DefaultServerVersion,
		DefaultLimit:   DefaultSearchLimit,
		MaxLimit:       MaxSearchLimit,
		MaxChunkLength: DefaultMaxChunkLength,
		EnableCache:    true,
		Collections: map[string]string{
			"scotus":           ScotusCollection,
			"executive_orders": EOCollection,
		},
	}
}

// Validate checks the configuration for values the server cannot run
// with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return gverrors.ConfigError("server name must not be empty", nil)
	}
	if c.DefaultLimit < 1 {
		return gverrors.ConfigError("default search limit must be at least 1", nil)
	}
	if c.MaxLimit < c.DefaultLimit {
		return gverrors.ConfigError("max search limit must not be below the default limit", nil)
	}
	return nil
}

// DocumentFetcher retrieves one source document from a government API.
// Both API clients satisfy it.
type DocumentFetcher interface {
	GetDocument(ctx context.Context, id string) (*apis.Document, error)
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Server exposes the ingested document collections to AI clients. It
// registers the search tools and full-document resources on an MCP
// server and serves them over stdio.
type Server struct {
	mcp       *mcp.Server
	store     store.VectorStore
	embedder  embed.Embedder
	formatter *Formatter
	config    Config
	logger    *slog.Logger

	// fetchers maps document families ("scotus", "executive_order") to
	// the API client that serves full documents and resources.
	fetchers map[string]DocumentFetcher
	mu       sync.RWMutex
}

// NewServer creates the MCP server over an existing vector store and
// embedder. The embedder is shared by all search tools.
func NewServer(vs store.VectorStore, embedder embed.Embedder, cfg Config) (*Server, error) {
	if vs == nil {
		return nil, gverrors.ConfigError("vector store is required", nil)
	}
	if embedder == nil {
		return nil, gverrors.ConfigError("embedder is required", nil)
	}

	defaults := NewConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if cfg.MaxChunkLength == 0 {
		cfg.MaxChunkLength = defaults.MaxChunkLength
	}
	if cfg.Collections == nil {
		cfg.Collections = defaults.Collections
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.EnableCache {
		embedder = embed.NewCachedEmbedder(embedder, queryCacheSize)
	}

	s := &Server{
		store:     vs,
		embedder:  embedder,
		formatter: NewFormatter(cfg.MaxChunkLength),
		config:    cfg,
		logger:    cfg.Logger,
		fetchers:  make(map[string]DocumentFetcher),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// SetDocumentFetcher registers the API client serving a document
// family ("scotus" or "executive_order"). Full-document retrieval and
// resource reads consult this registry; without it those paths degrade
// to stored chunks.
func (s *Server) SetDocumentFetcher(docType string, fetcher DocumentFetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[docType] = fetcher
}

func (s *Server) fetcher(docType string) DocumentFetcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchers[docType]
}

// collectionFor resolves the collection name for a document family.
func (s *Server) collectionFor(family string) string {
	if name, ok := s.config.Collections[family]; ok {
		return name
	}
	switch family {
	case "scotus":
		return ScotusCollection
	case "executive_orders":
		return EOCollection
	}
	return family
}

// docTypeForCollection maps a collection name back to its document
// family, or "" when the collection is not one of ours.
func (s *Server) docTypeForCollection(collection string) string {
	switch collection {
	case s.collectionFor("scotus"):
		return "scotus"
	case s.collectionFor("executive_orders"):
		return "executive_order"
	}
	return ""
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_government_documents",
		Description: searchDocumentsDescription,
	}, s.mcpSearchDocumentsHandler)
	s.logger.Debug("Registered tool", slog.String("name", "search_government_documents"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_scotus_opinions",
		Description: searchScotusDescription,
	}, s.mcpSearchScotusHandler)
	s.logger.Debug("Registered tool", slog.String("name", "search_scotus_opinions"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_executive_orders",
		Description: searchEODescription,
	}, s.mcpSearchEOHandler)
	s.logger.Debug("Registered tool", slog.String("name", "search_executive_orders"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_document_by_id",
		Description: getDocumentDescription,
	}, s.mcpGetDocumentHandler)
	s.logger.Debug("Registered tool", slog.String("name", "get_document_by_id"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_collections",
		Description: listCollectionsDescription,
	}, s.mcpListCollectionsHandler)
	s.logger.Debug("Registered tool", slog.String("name", "list_collections"))

	s.logger.Info("MCP tools registered", slog.Int("count", 5))
}

// The SDK handlers below wrap the business handlers. Tool failures are
// reported as text content in a regular result, never as protocol
// errors, so the client model can read and react to them.

func (s *Server) mcpSearchDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentsInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Query) == "" {
		return textResult("Error: Query parameter is required"), nil, nil
	}
	text, err := s.handleSearchDocuments(ctx, input)
	if err != nil {
		return textResult(fmt.Sprintf("Error performing search: %s", err)), nil, nil
	}
	return textResult(text), nil, nil
}

func (s *Server) mcpSearchScotusHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchScotusInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Query) == "" {
		return textResult("Error: Query parameter is required"), nil, nil
	}
	text, err := s.handleSearchScotus(ctx, input)
	if err != nil {
		return textResult(fmt.Sprintf("Error performing SCOTUS search: %s", err)), nil, nil
	}
	return textResult(text), nil, nil
}

func (s *Server) mcpSearchEOHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchEOInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Query) == "" {
		return textResult("Error: Query parameter is required"), nil, nil
	}
	text, err := s.handleSearchEO(ctx, input)
	if err != nil {
		return textResult(fmt.Sprintf("Error performing Executive Order search: %s", err)), nil, nil
	}
	return textResult(text), nil, nil
}

func (s *Server) mcpGetDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (*mcp.CallToolResult, any, error) {
	if input.DocumentID == "" || input.Collection == "" {
		return textResult("Error: document_id and collection parameters are required"), nil, nil
	}
	text, err := s.handleGetDocument(ctx, input)
	if err != nil {
		return textResult(fmt.Sprintf("Error retrieving document: %s", err)), nil, nil
	}
	return textResult(text), nil, nil
}

func (s *Server) mcpListCollectionsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListCollectionsInput) (*mcp.CallToolResult, any, error) {
	text, err := s.handleListCollections(ctx)
	if err != nil {
		return textResult(fmt.Sprintf("Error listing collections: %s", err)), nil, nil
	}
	return textResult(text), nil, nil
}

// textResult wraps text in a single-block tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// CallTool invokes a tool by name with raw arguments. The CLI query
// command and tests use this path; protocol traffic arrives through
// the typed SDK handlers instead. Unlike those, it surfaces handler
// errors to the caller.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "search_government_documents":
		var in SearchDocumentsInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		return s.handleSearchDocuments(ctx, in)
	case "search_scotus_opinions":
		var in SearchScotusInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		return s.handleSearchScotus(ctx, in)
	case "search_executive_orders":
		var in SearchEOInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		return s.handleSearchEO(ctx, in)
	case "get_document_by_id":
		var in GetDocumentInput
		if err := decodeArgs(args, &in); err != nil {
			return "", err
		}
		return s.handleGetDocument(ctx, in)
	case "list_collections":
		return s.handleListCollections(ctx)
	default:
		return "", NewMethodNotFoundError(name)
	}
}

// decodeArgs lowers a raw argument map into a typed tool input.
func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %s", err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %s", err))
	}
	return nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "search_government_documents", Description: searchDocumentsDescription},
		{Name: "search_scotus_opinions", Description: searchScotusDescription},
		{Name: "search_executive_orders", Description: searchEODescription},
		{Name: "get_document_by_id", Description: getDocumentDescription},
		{Name: "list_collections", Description: listCollectionsDescription},
	}
}

// Info returns the advertised server name and version.
func (s *Server) Info() (name, version string) {
	return s.config.Name, s.config.Version
}

// Capabilities reports which MCP capability classes the server offers.
func (s *Server) Capabilities() (tools, resources bool) {
	return true, true
}

// Serve runs the server on the given transport until the context is
// canceled. Only stdio is supported; the protocol owns stdout, so
// logging must already be pointed at a file.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("name", s.config.Name),
		slog.String("version", s.config.Version))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", gverrors.LogAttr(err))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The underlying MCP server stops
// when the Serve context is canceled, so there is nothing to tear
// down beyond what the store and embedder own.
func (s *Server) Close() error {
	return nil
}

// generateRequestID returns a short random ID for correlating log
// lines of one request.
func generateRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}
