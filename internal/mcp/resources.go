package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

// Resource URI schemes. Search results carry the IDs these URIs expect.
const (
	scotusResourcePrefix = "scotus://opinion/"
	eoResourcePrefix     = "eo://document/"
)

// registerResources registers the full-document resource templates.
// Resources complement the search tools: a search finds chunks, a
// resource read returns the complete document from the source API.
func (s *Server) registerResources() {
	s.logger.Debug("Registering MCP resources")

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "Supreme Court Opinion",
		URITemplate: "scotus://opinion/{opinion_id}",
		Description: "Full text of a Supreme Court opinion. Use the opinion_id from search results. Example: scotus://opinion/12345678",
		MIMEType:    "text/markdown",
	}, s.readDocumentResource)
	s.logger.Debug("Registered resource template", slog.String("uri_template", "scotus://opinion/{opinion_id}"))

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "Executive Order",
		URITemplate: "eo://document/{document_number}",
		Description: "Full text of a Presidential Executive Order. Use the document_number from search results. Example: eo://document/2024-12345",
		MIMEType:    "text/markdown",
	}, s.readDocumentResource)
	s.logger.Debug("Registered resource template", slog.String("uri_template", "eo://document/{document_number}"))

	s.logger.Info("MCP resources registered", slog.Int("count", 2))
}

// readDocumentResource serves both resource templates. Unlike tool
// calls, resource failures propagate as protocol errors.
func (s *Server) readDocumentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	start := time.Now()
	requestID := generateRequestID()
	uri := req.Params.URI

	s.logger.Info("resource read started",
		slog.String("request_id", requestID),
		slog.String("uri", uri))

	docType, id, err := parseResourceURI(uri)
	if err != nil {
		s.logger.Error("resource read failed",
			slog.String("request_id", requestID),
			slog.String("uri", uri),
			gverrors.LogAttr(err))
		return nil, MapError(err)
	}

	fetcher := s.fetcher(docType)
	if fetcher == nil {
		nf := NewResourceNotFoundError(uri)
		s.logger.Error("resource read failed",
			slog.String("request_id", requestID),
			slog.String("uri", uri),
			gverrors.LogAttr(nf))
		return nil, nf
	}

	doc, err := fetcher.GetDocument(ctx, id)
	if err != nil {
		s.logger.Error("resource read failed",
			slog.String("request_id", requestID),
			slog.String("uri", uri),
			gverrors.LogAttr(err))
		return nil, MapError(err)
	}

	s.logger.Info("resource read completed",
		slog.String("request_id", requestID),
		slog.String("uri", uri),
		slog.Duration("duration", time.Since(start)))

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     s.formatter.FormatDocumentResource(doc),
			},
		},
	}, nil
}

// parseResourceURI splits a resource URI into its document family and
// source document ID.
func parseResourceURI(uri string) (docType, id string, err error) {
	switch {
	case strings.HasPrefix(uri, scotusResourcePrefix):
		docType = "scotus"
		id = strings.TrimPrefix(uri, scotusResourcePrefix)
	case strings.HasPrefix(uri, eoResourcePrefix):
		docType = "executive_order"
		id = strings.TrimPrefix(uri, eoResourcePrefix)
	default:
		return "", "", NewInvalidParamsError(fmt.Sprintf("unknown resource URI format: %s", uri))
	}
	if id == "" || strings.Contains(id, "/") {
		return "", "", NewInvalidParamsError(fmt.Sprintf("unknown resource URI format: %s", uri))
	}
	return docType, id, nil
}
