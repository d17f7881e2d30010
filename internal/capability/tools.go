package capability

import (
	"fmt"
	"strings"
)

// Catalog builds tool listings and help text consistent with what the
// backend supports and what the session may do.
type Catalog struct {
	provider    Provider
	permissions PermissionSource
}

func NewCatalog(provider Provider, permissions PermissionSource) *Catalog {
	return &Catalog{provider: provider, permissions: permissions}
}

// ToolDefinitions returns the available tools in OpenAI-compatible function
// format.
func (c *Catalog) ToolDefinitions(sessionID string) []map[string]any {
	f := c.provider.Flags()
	p := c.permissions.Permissions(sessionID)

	var tools []map[string]any
	if p.Read {
		tools = append(tools,
			c.queryObjectsTool(f),
			c.analyzeDistributionTool(f),
			c.describeObjectTool(f),
			c.deepLinkTool(),
		)
		if f.HasCustomObjects {
			tools = append(tools, c.listCustomObjectsTool())
		}
	}
	if p.Write {
		tools = append(tools, c.createRecordTool(f), c.updateRecordTool())
	}
	if p.Delete {
		tools = append(tools, c.deleteRecordTool())
	}
	return tools
}

func function(name, description string, properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func objectProp(f Flags) map[string]any {
	desc := "The object type, e.g. projects"
	if objs := f.AvailableObjects(); len(objs) > 0 {
		desc = "The object type. Standard types: " + strings.Join(objs, ", ")
	}
	if f.HasCustomObjects {
		desc += ". Custom object types are also accepted"
	}
	return prop("string", desc)
}

func (c *Catalog) queryObjectsTool(f Flags) map[string]any {
	return function("query_objects",
		"List or count records of an object type, optionally filtered with filter=((field = 'value')).",
		map[string]any{
			"object_type": objectProp(f),
			"filter":      prop("string", "Filter expression using =, !=, >, <, >=, <=, in, notIn"),
			"limit":       prop("integer", "Maximum records to return (1 counts only, at most 500)"),
		},
		"object_type",
	)
}

func (c *Catalog) analyzeDistributionTool(f Flags) map[string]any {
	return function("analyze_distribution",
		"Count records of an object type grouped by one field and chart the distribution.",
		map[string]any{
			"object_type":    objectProp(f),
			"group_by_field": prop("string", "API or display name of the field to group by"),
		},
		"object_type", "group_by_field",
	)
}

func (c *Catalog) describeObjectTool(f Flags) map[string]any {
	return function("describe_object",
		"Summarize the fields of an object type.",
		map[string]any{"object_type": objectProp(f)},
		"object_type",
	)
}

func (c *Catalog) deepLinkTool() map[string]any {
	return function("get_deep_link",
		"Build a link that opens a list, a filtered list or a single record in the PPM user interface.",
		map[string]any{
			"object_type": prop("string", "The object type"),
			"record":      prop("string", "Code or name of a record, optional"),
		},
		"object_type",
	)
}

func (c *Catalog) listCustomObjectsTool() map[string]any {
	return function("list_custom_objects",
		"List the custom object types defined in this PPM instance.",
		map[string]any{},
	)
}

func (c *Catalog) createRecordTool(f Flags) map[string]any {
	return function("create_record",
		"Create a record. A code is generated when none is given.",
		map[string]any{
			"object_type": objectProp(f),
			"fields":      prop("object", "Attribute values keyed by API name"),
		},
		"object_type", "fields",
	)
}

func (c *Catalog) updateRecordTool() map[string]any {
	return function("update_record",
		"Update a record found by exact code or by name.",
		map[string]any{
			"object_type": prop("string", "The object type"),
			"target":      prop("string", "Code or name of the record"),
			"fields":      prop("object", "Attribute values to change"),
		},
		"object_type", "target", "fields",
	)
}

func (c *Catalog) deleteRecordTool() map[string]any {
	return function("delete_record",
		"Delete a record found by exact code or by name.",
		map[string]any{
			"object_type": prop("string", "The object type"),
			"target":      prop("string", "Code or name of the record"),
		},
		"object_type", "target",
	)
}

// HelpText renders what the assistant can do for this session.
func (c *Catalog) HelpText(sessionID string) string {
	f := c.provider.Flags()
	p := c.permissions.Permissions(sessionID)

	var sb strings.Builder
	sb.WriteString("Here is what I can do:\n")

	if !p.Read {
		sb.WriteString("• The PPM backend is not reachable right now, so I cannot read any data.\n")
		return strings.TrimRight(sb.String(), "\n")
	}

	objs := f.AvailableObjects()
	sb.WriteString(fmt.Sprintf("• List and count records (%s)\n", strings.Join(objs, ", ")))
	sb.WriteString("• Chart distributions, e.g. \"show project distribution by status\"\n")
	sb.WriteString("• Drill into a chart bucket, e.g. \"show me the active ones\"\n")
	sb.WriteString("• Describe the fields of an object, e.g. \"describe tasks\"\n")
	sb.WriteString("• Give links into the PPM interface, e.g. \"link to all projects\"\n")
	sb.WriteString("• Export the last result as CSV, e.g. \"export this as csv\"\n")
	if f.HasCustomObjects {
		sb.WriteString("• Work with your custom objects, e.g. \"link to custom objects\"\n")
	}
	if p.Write {
		sb.WriteString("• Create and update records, e.g. \"create a project called Apollo\"\n")
	}
	if p.Delete {
		sb.WriteString("• Delete records, e.g. \"delete project PRJ-0042\"\n")
	}
	if !p.Write {
		sb.WriteString("\nChanges are disabled for this session, so I can only read data.")
	}
	return strings.TrimRight(sb.String(), "\n")
}
