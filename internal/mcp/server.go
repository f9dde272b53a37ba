package mcp

import (
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"breath", "purify", "meeting", "central", "hacoin"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"breath_submit": {
		def:     breathSubmitToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBreathSubmit },
	},
	"breath_recent": {
		def:     breathRecentToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBreathRecent },
	},
	"breath_get": {
		def:     breathGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBreathGet },
	},
	"breath_delete": {
		def:     breathDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBreathDelete },
	},
	"breath_consume": {
		def:     breathConsumeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBreathConsume },
	},
	"purify_move": {
		def:     purifyMoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurifyMove },
	},
	"purify_restore": {
		def:     purifyRestoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurifyRestore },
	},
	"purify_send": {
		def:     purifySendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurifySend },
	},
	"purify_delete": {
		def:     purifyDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurifyDelete },
	},
	"purify_list": {
		def:     purifyListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurifyList },
	},
	"meeting_create": {
		def:     meetingCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMeetingCreate },
	},
	"meeting_get": {
		def:     meetingGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMeetingGet },
	},
	"meeting_revise": {
		def:     meetingReviseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMeetingRevise },
	},
	"central_promote": {
		def:     centralPromoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCentralPromote },
	},
	"central_write": {
		def:     centralWriteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCentralWrite },
	},
	"central_list": {
		def:     centralListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCentralList },
	},
	"hacoin_post": {
		def:     hacoinPostToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHacoinPost },
	},
	"hacoin_ledger": {
		def:     hacoinLedgerToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHacoinLedger },
	},
}

// AllToolNames returns every registered tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "breath_submit" → "breath").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// NewServer creates a new MCP server with coreheart tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(st *db.Store, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"coreheart",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(st, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(st *db.Store, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(st, cfg, version))
}
