package templates

// Builtin returns the templates every registry starts with.
func Builtin() []Template {
	return []Template{
		{
			ID:          "doc",
			Name:        "Documentation",
			Description: "Standard documentation note",
			Category:    "documentation",
			Frontmatter: map[string]string{"type": "documentation", "status": "draft"},
			Fields: []Field{
				{Name: "title", Description: "Note title", Type: FieldText, Required: true, Example: "User Authentication"},
				{Name: "summary", Description: "Brief summary", Type: FieldText, Required: true, Example: "Explains how users authenticate"},
				{Name: "tags", Description: "Comma-separated tags", Type: FieldMultiSelect, Options: []string{"architecture", "security", "guide"}},
			},
			Content: "# {title}\n\n{summary}\n\n## Overview\n\n## Details\n\n## Links\n",
			Example: "# User Authentication\n\nExplains JWT-based auth.\n\n## Overview\n",
		},
		{
			ID:          "task",
			Name:        "Task",
			Description: "Action item or task",
			Category:    "tasks",
			Frontmatter: map[string]string{"type": "task", "status": "todo"},
			Fields: []Field{
				{Name: "title", Description: "Task title", Type: FieldText, Required: true, Example: "Implement user registration"},
				{Name: "priority", Description: "Priority level", Type: FieldSelect, Options: []string{"low", "medium", "high", "critical"}, Required: true, Default: "medium"},
				{Name: "due_date", Description: "Due date (YYYY-MM-DD)", Type: FieldDate, Example: "2025-12-31"},
			},
			Content: "# {title}\n\n## Priority: {priority}\n\nDue: {due_date}\n\n## Description\n\n## Checklist\n- [ ] \n",
		},
		{
			ID:          "research",
			Name:        "Research Note",
			Description: "Research finding or investigation",
			Category:    "research",
			Frontmatter: map[string]string{"type": "research"},
			Fields: []Field{
				{Name: "topic", Description: "Research topic", Type: FieldText, Required: true, Example: "Go scheduler internals"},
				{Name: "date_researched", Description: "Date of research (YYYY-MM-DD)", Type: FieldDate, Required: true},
			},
			Content: "# {topic}\n\nResearched: {date_researched}\n\n## Key Findings\n\n## Sources\n\n## Related\n",
		},
	}
}
