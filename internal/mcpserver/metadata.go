package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

func (s *Server) registerMetadataTools() {
	s.mcp.AddTool(mcp.NewTool("query_metadata",
		mcp.WithDescription("Find files whose frontmatter matches a query. Conditions are "+
			`key: "value", key > n, key < n and key: contains("text"), joined with AND and OR. `+
			"Dotted keys reach nested values."),
		mcp.WithString("query", mcp.Required(), mcp.Description(`Query, e.g. status: "draft" AND priority > 3`)),
	), s.queryMetadata)

	s.mcp.AddTool(mcp.NewTool("get_metadata_value",
		mcp.WithDescription("Read one frontmatter value from a file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Frontmatter key; dots descend into nested maps")),
	), s.getMetadataValue)

	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List the note templates and the fields each one takes."),
	), s.listTemplates)

	s.mcp.AddTool(mcp.NewTool("create_from_template",
		mcp.WithDescription("Create a note from a template. Field values are checked against the template's field types."),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template id from list_templates")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the new file; must not exist")),
		mcp.WithObject("fields", mcp.Description("Field values by name")),
	), s.createFromTemplate)

	s.mcp.AddTool(mcp.NewTool("find_notes_from_template",
		mcp.WithDescription("List the files created from a template."),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template id")),
	), s.findNotesFromTemplate)
}

func (s *Server) queryMetadata(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.eng.QueryMetadata(query)
	if err != nil {
		return s.toolError("query_metadata", err)
	}
	return jsonResult(map[string]any{"query": query, "matched": len(matches), "files": matches})
}

func (s *Server) getMetadataValue(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.eng.MetadataValue(path, key)
	if err != nil {
		return s.toolError("get_metadata_value", err)
	}
	return jsonResult(map[string]any{"path": path, "key": key, "value": v})
}

func (s *Server) listTemplates(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Templates())
}

func (s *Server) createFromTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values := map[string]string{}
	if raw, ok := req.GetArguments()["fields"]; ok && raw != nil {
		m, err := cast.ToStringMapE(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid fields: %v", err)), nil
		}
		for k, v := range m {
			// Lists are accepted for multi-select fields.
			if list, ok := v.([]any); ok {
				values[k] = strings.Join(cast.ToStringSlice(list), ",")
				continue
			}
			sv, err := cast.ToStringE(v)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid field %s: %v", k, err)), nil
			}
			values[k] = sv
		}
	}
	rec, err := s.eng.CreateFromTemplate(ctx, id, path, values)
	if err != nil {
		return s.toolError("create_from_template", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s from %s (%s)", rec.Path, id, rec.Hash)), nil
}

func (s *Server) findNotesFromTemplate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := s.eng.NotesFromTemplate(id)
	if len(paths) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}
