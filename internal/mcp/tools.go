package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kiroku/internal/model"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("kiroku_season_report",
			mcplib.WithDescription(`Compute a competitor's badge points for the season.

For every badge the competitor holds, the report gives the level reached
before the season started, the current level, and the points earned in
between. Results flagged "assumed-new" or "truncated" were not fully verified
against activity history.

Pass start and end (RFC 3339) to report on an explicit window instead of the
current season.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("competitor_id",
				mcplib.Description("The competitor to report on"),
				mcplib.Required(),
			),
			mcplib.WithString("start",
				mcplib.Description("Optional season start (RFC 3339, inclusive). Requires end."),
			),
			mcplib.WithString("end",
				mcplib.Description("Optional season end (RFC 3339, exclusive). Requires start."),
			),
		),
		s.handleSeasonReport,
	)
}

func (s *Server) handleSeasonReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	competitorID := request.GetString("competitor_id", "")
	if competitorID == "" {
		return errorResult("competitor_id is required"), nil
	}

	window, pinned, err := parseWindow(request.GetString("start", ""), request.GetString("end", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}

	var report model.SeasonReport
	if pinned {
		report = s.season.ReportWindow(ctx, competitorID, window)
	} else {
		report = s.season.Report(ctx, competitorID)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal report: %w", err)
	}

	result := &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
	if report.Failed() {
		s.logger.Warn("mcp: season report failed", "competitor_id", competitorID, "error", report.Error)
		result.IsError = true
	}
	return result, nil
}

func parseWindow(startStr, endStr string) (model.SeasonWindow, bool, error) {
	if startStr == "" && endStr == "" {
		return model.SeasonWindow{}, false, nil
	}
	if startStr == "" || endStr == "" {
		return model.SeasonWindow{}, false, errors.New("start and end must be given together")
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return model.SeasonWindow{}, false, fmt.Errorf("invalid start %q: expected RFC 3339", startStr)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return model.SeasonWindow{}, false, fmt.Errorf("invalid end %q: expected RFC 3339", endStr)
	}
	w := model.SeasonWindow{Start: start.UTC(), End: end.UTC()}
	if !w.Valid() {
		return model.SeasonWindow{}, false, errors.New("start must be before end")
	}
	return w, true, nil
}
