package mcp

import (
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// season-review walks the agent through fetching and explaining one report.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("season-review",
			mcplib.WithPromptDescription("Fetch a competitor's season report and explain where the points came from"),
			mcplib.WithArgument("competitor_id",
				mcplib.ArgumentDescription("The competitor to review"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleSeasonReviewPrompt,
	)

	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("kiroku-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining Kiroku's season scoring and verification labels"),
		),
		s.handleSetupPrompt,
	)
}

func (s *Server) handleSeasonReviewPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	competitorID := request.Params.Arguments["competitor_id"]
	if competitorID == "" {
		return nil, errors.New("competitor_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Review the season of competitor %s", competitorID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review this season for competitor %s:

1. CALL kiroku_season_report with competitor_id="%s".

2. If the report has an error field, say the season could not be computed
   and stop. Do not guess at points.

3. Otherwise summarize:
   - total_season_points and how many badge types contributed
   - each badge with season_points > 0: its level before the season and now
   - any badge whose verification is "assumed-new" or "truncated"; these
     points are best effort and should be called out

4. Read kiroku://badges if you need a badge's thresholds to explain a level.`, competitorID, competitorID),
				},
			},
		},
	}, nil
}

func (s *Server) handleSetupPrompt(_ context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Kiroku season scoring for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to Kiroku, which reports how many badge points a competitor
earned during the current season. The provider only exposes lifetime
achievements, so Kiroku reconstructs each badge's level at season start from
per-activity snapshots and awards only the levels gained since.

## Tools and resources

- kiroku_season_report: the season report for one competitor (optional start/end)
- kiroku://badges: the badge catalog with thresholds and points per level
- kiroku://competitors/{id}/season: the same report as a resource

## Verification labels

- backward-search: activity snapshots established the pre-season level
- assumed-new: no pre-season evidence, the badge is treated as earned this season
- truncated: the scan hit its bound, or no history exists, so the baseline is level 0

Treat anything other than backward-search as an estimate.`,
				},
			},
		},
	}, nil
}
