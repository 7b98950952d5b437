package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const (
	badgesURI         = "kiroku://badges"
	seasonURIPrefix   = "kiroku://competitors/"
	seasonURISuffix   = "/season"
	seasonURITemplate = seasonURIPrefix + "{id}" + seasonURISuffix
)

func (s *Server) registerResources() {
	// kiroku://badges: the badge catalog in use.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			badgesURI,
			"Badge Catalog",
			mcplib.WithResourceDescription("Badge definitions with level thresholds and points per level"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleBadges,
	)

	// kiroku://competitors/{id}/season: current season report for one competitor.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			seasonURITemplate,
			"Season Report",
			mcplib.WithTemplateDescription("Current season report for a competitor"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleSeasonResource,
	)
}

func (s *Server) handleBadges(_ context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.season.Catalog().All(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal badges: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      badgesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSeasonResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	competitorID, ok := competitorFromURI(uri)
	if !ok {
		return nil, fmt.Errorf("mcp: invalid season report URI: %s", uri)
	}

	report := s.season.Report(ctx, competitorID)
	if report.Failed() {
		return nil, fmt.Errorf("mcp: season report for %s: %s", competitorID, report.Error)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal report: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// competitorFromURI extracts the id from kiroku://competitors/{id}/season.
func competitorFromURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, seasonURIPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, seasonURISuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
