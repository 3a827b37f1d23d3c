package agent

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt selects the system directive for this turn.
//
// Called after tool discovery so the directive reflects the tools that are
// actually live, not merely requested. The tooled variant names the active
// servers and tools and overrides any "no tools" framing carried in from
// earlier turns of the history; the toolless variant tells the model to ask
// the caller to enable tools rather than invent capability.
func BuildSystemPrompt(toolsAvailable bool, serverNames, toolNames []string, allowedPath string) string {
	if !toolsAvailable {
		return "You currently do not have access to any external tools or MCP servers. " +
			"If the user asks you to perform actions that require tools (like reading files, listing directories, etc.), " +
			"politely explain that no tools are currently selected and suggest they select the appropriate MCP tools from the sidebar."
	}

	toolsInfo := "none"
	if len(toolNames) > 0 {
		toolsInfo = strings.Join(toolNames, ", ")
	}

	return fmt.Sprintf(
		"You currently have access to the following MCP servers: %s. "+
			"Available tools: %s. "+
			"IMPORTANT: Ignore any previous messages in the conversation history that say you don't have access to tools - "+
			"your tool access has been updated for this request. You DO have tools available now. "+
			"You can access the user's local files under %s using filesystem tools (e.g., read_file, list_directory). "+
			"Do not say you cannot access local files; instead, invoke the appropriate tool. "+
			"Use the tools available to you to help the user with their request.",
		strings.Join(serverNames, ", "), toolsInfo, allowedPath,
	)
}
