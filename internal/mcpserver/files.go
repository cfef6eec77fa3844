package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/vaultkeep/internal/batch"
	"github.com/starford/vaultkeep/internal/edit"
)

const defaultSearchLimit = 20

func (s *Server) registerFileTools() {
	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the full content of a vault file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file (e.g. folder/note.md)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Atomically write a vault file, creating it if needed. "+
			"Content SHOULD follow the file format contract from get_file_contract."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full new content")),
		mcp.WithString("expected_hash", mcp.Description("SHA-256 of the content being replaced; the write fails if it changed")),
	), s.writeFile)

	s.mcp.AddTool(mcp.NewTool("delete_file",
		mcp.WithDescription("Delete a vault file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithBoolean("update_references", mcp.Description("Replace links to the file with their display text")),
	), s.deleteFile)

	s.mcp.AddTool(mcp.NewTool("move_file",
		mcp.WithDescription("Move or rename a vault file."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current relative path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New relative path; must not exist")),
		mcp.WithBoolean("update_references", mcp.Description("Retarget links to the moved file")),
	), s.moveFile)

	s.mcp.AddTool(mcp.NewTool("copy_file",
		mcp.WithDescription("Copy a vault file to a new path."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source relative path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Destination relative path; must not exist")),
	), s.copyFile)

	s.mcp.AddTool(mcp.NewTool("edit_file",
		mcp.WithDescription("Apply SEARCH/REPLACE blocks to a file. Each block is\n"+
			"<<<<<<< SEARCH\nexact text\n=======\nreplacement\n>>>>>>> REPLACE\n"+
			"Search text must occur exactly once."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
		mcp.WithString("diff", mcp.Required(), mcp.Description("One or more SEARCH/REPLACE blocks")),
		mcp.WithString("expected_hash", mcp.Description("SHA-256 of the current content")),
		mcp.WithBoolean("dry_run", mcp.Description("Preview the change as a unified diff without writing")),
	), s.editFile)

	s.mcp.AddTool(mcp.NewTool("batch_execute",
		mcp.WithDescription("Run file operations as one all-or-nothing transaction. "+
			"Each operation has kind (create_file, write_file, delete_file, move_file, update_links), path, "+
			"and to, content, frontmatter, update_references or replacements as needed."),
		mcp.WithArray("operations", mcp.Required(),
			mcp.Description("Operations in execution order"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	), s.batchExecute)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List all vault files or those in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("search_files",
		mcp.WithDescription("Full-text search through file content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchFiles)

	s.mcp.AddTool(mcp.NewTool("find_by_tag",
		mcp.WithDescription("List the files carrying a tag."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag with or without the leading #")),
	), s.findByTag)

	s.mcp.AddTool(mcp.NewTool("validate_file",
		mcp.WithDescription("Check a file's frontmatter, links and content."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the file")),
	), s.validateFile)
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.eng.Read(ctx, path)
	if err != nil {
		return s.toolError("read_file", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) writeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if expected := req.GetString("expected_hash", ""); expected != "" {
		rec, err := s.eng.WriteIfMatch(ctx, path, []byte(content), expected)
		if err != nil {
			return s.toolError("write_file", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("written: %s (%s)", rec.Path, rec.Hash)), nil
	}
	rec, err := s.eng.Write(ctx, path, []byte(content))
	if err != nil {
		return s.toolError("write_file", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %s (%s)", rec.Path, rec.Hash)), nil
}

func (s *Server) deleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.eng.Delete(ctx, path, req.GetBool("update_references", false))
	if err != nil {
		return s.toolError("delete_file", err)
	}
	return mcp.NewToolResultText(strings.Join(res.Changes, "\n")), nil
}

func (s *Server) moveFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.eng.Move(ctx, from, to, req.GetBool("update_references", false))
	if err != nil {
		return s.toolError("move_file", err)
	}
	return mcp.NewToolResultText(strings.Join(res.Changes, "\n")), nil
}

func (s *Server) copyFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.eng.Copy(ctx, from, to)
	if err != nil {
		return s.toolError("copy_file", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("copied: %s → %s", from, rec.Path)), nil
}

func (s *Server) editFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	diff, err := req.RequireString("diff")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	blocks, err := edit.ParseBlocks(diff)
	if err != nil {
		return s.toolError("edit_file", err)
	}
	res, err := s.eng.Edit(ctx, path, blocks, req.GetString("expected_hash", ""), req.GetBool("dry_run", false))
	if err != nil {
		return s.toolError("edit_file", err)
	}
	return jsonResult(res)
}

func (s *Server) batchExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["operations"]
	if !ok {
		return mcp.NewToolResultError("operations is required"), nil
	}
	// Round-trip through JSON so the operation tags drive decoding.
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var ops []batch.Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid operations: %v", err)), nil
	}
	res, err := s.eng.Batch(ctx, ops)
	if err != nil && res == nil {
		return s.toolError("batch_execute", err)
	}
	out, _ := jsonResult(res)
	out.IsError = !res.Success
	return out, nil
}

func (s *Server) listFiles(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(req.GetString("folder", ""), "/")

	var paths []string
	for _, f := range s.eng.List() {
		if folder == "" || strings.HasPrefix(f.Path, folder+"/") {
			paths = append(paths, f.Path)
		}
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) searchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.eng.Search(ctx, query, req.GetInt("limit", defaultSearchLimit))
	if err != nil {
		return s.toolError("search_files", err)
	}
	return jsonResult(results)
}

func (s *Server) findByTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := s.eng.TaggedWith(ctx, tag)
	if err != nil {
		return s.toolError("find_by_tag", err)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) validateFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.eng.Validate(ctx, path)
	if err != nil {
		return s.toolError("validate_file", err)
	}
	return jsonResult(rep)
}

func (s *Server) getFileContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FileFormatContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     FileFormatContract,
		},
	}, nil
}
