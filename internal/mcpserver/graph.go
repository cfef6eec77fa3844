package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/vaultkeep/internal/graph"
)

const (
	defaultHubs        = 10
	defaultSuggestions = 10
)

func pathTool(name, desc string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(desc),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
	)
}

func (s *Server) registerGraphTools() {
	s.mcp.AddTool(pathTool("get_backlinks", "Find all files that link to the specified file."), s.getBacklinks)
	s.mcp.AddTool(pathTool("get_forward_links", "List the files the specified file links to."), s.getForwardLinks)

	s.mcp.AddTool(mcp.NewTool("get_related_notes",
		mcp.WithDescription("Find files within a number of links of the specified file, in either direction."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithNumber("max_hops", mcp.Description(fmt.Sprintf("Maximum link distance (default %d)", graph.DefaultHops))),
	), s.getRelatedNotes)

	s.mcp.AddTool(mcp.NewTool("detect_cycles",
		mcp.WithDescription("Find circular link chains between files."),
	), s.detectCycles)
	s.mcp.AddTool(mcp.NewTool("connected_components",
		mcp.WithDescription("Group files into clusters connected by links."),
	), s.connectedComponents)
	s.mcp.AddTool(mcp.NewTool("find_orphans",
		mcp.WithDescription("List files with no incoming or outgoing links."),
	), s.findOrphans)
	s.mcp.AddTool(mcp.NewTool("find_dead_ends",
		mcp.WithDescription("List files that are linked to but link nowhere."),
	), s.findDeadEnds)
	s.mcp.AddTool(mcp.NewTool("get_hub_notes",
		mcp.WithDescription("Rank the most connected files."),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Number of hubs (default %d)", defaultHubs))),
	), s.getHubNotes)
	s.mcp.AddTool(mcp.NewTool("find_broken_links",
		mcp.WithDescription("List links whose target matches no file, with suggestions."),
	), s.findBrokenLinks)
	s.mcp.AddTool(mcp.NewTool("health_score",
		mcp.WithDescription("Score the vault's link structure from 0 to 100."),
	), s.healthScore)
	s.mcp.AddTool(mcp.NewTool("health_report",
		mcp.WithDescription("Full diagnostic of the vault's link structure."),
	), s.healthReport)
	s.mcp.AddTool(mcp.NewTool("centrality_ranking",
		mcp.WithDescription("Rank files by betweenness, closeness and eigenvector centrality."),
	), s.centralityRanking)

	s.mcp.AddTool(mcp.NewTool("link_strength",
		mcp.WithDescription("Score how tightly two files are connected."),
		mcp.WithString("source", mcp.Required(), mcp.Description("First file")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Second file")),
	), s.linkStrength)
	s.mcp.AddTool(mcp.NewTool("suggest_links",
		mcp.WithDescription("Propose files the specified file could link to."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum suggestions (default %d)", defaultSuggestions))),
	), s.suggestLinks)
	s.mcp.AddTool(mcp.NewTool("vault_stats",
		mcp.WithDescription("File, size, tag and link counts for the vault."),
	), s.vaultStats)
}

func (s *Server) getBacklinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	edges, err := s.eng.Backlinks(path)
	if err != nil {
		return s.toolError("get_backlinks", err)
	}
	if len(edges) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(edges)
}

func (s *Server) getForwardLinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	edges, err := s.eng.ForwardLinks(path)
	if err != nil {
		return s.toolError("get_forward_links", err)
	}
	if len(edges) == 0 {
		return mcp.NewToolResultText("no forward links found"), nil
	}
	return jsonResult(edges)
}

func (s *Server) getRelatedNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	related, err := s.eng.RelatedNotes(path, req.GetInt("max_hops", graph.DefaultHops))
	if err != nil {
		return s.toolError("get_related_notes", err)
	}
	return jsonResult(related)
}

func (s *Server) detectCycles(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.DetectCycles())
}

func (s *Server) connectedComponents(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.ConnectedComponents())
}

func (s *Server) findOrphans(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Orphans())
}

func (s *Server) findDeadEnds(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.DeadEnds())
}

func (s *Server) getHubNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.HubNotes(req.GetInt("limit", defaultHubs)))
}

func (s *Server) findBrokenLinks(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	broken := s.eng.BrokenLinks()
	if len(broken) == 0 {
		return mcp.NewToolResultText("no broken links found"), nil
	}
	return jsonResult(broken)
}

func (s *Server) healthScore(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(fmt.Sprintf("%.1f", s.eng.HealthScore())), nil
}

func (s *Server) healthReport(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Health())
}

func (s *Server) centralityRanking(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.CentralityRanking())
}

func (s *Server) linkStrength(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.eng.LinkStrength(source, target)
	if err != nil {
		return s.toolError("link_strength", err)
	}
	return jsonResult(st)
}

func (s *Server) suggestLinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sug, err := s.eng.SuggestLinks(path, req.GetInt("limit", defaultSuggestions))
	if err != nil {
		return s.toolError("suggest_links", err)
	}
	return jsonResult(sug)
}

func (s *Server) vaultStats(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Stats())
}
