package llmruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// MCPTransport names how a declared MCP server is reached.
type MCPTransport string

const (
	MCPTransportStdio          MCPTransport = "stdio"
	MCPTransportSSE            MCPTransport = "sse"
	MCPTransportStreamableHTTP MCPTransport = "streamable-http"
)

// MCPServerSpec declares one MCP server a session should have available.
// Mirrors the fields internal/mcp's connectServer threads through to
// mark3labs/mcp-go's client constructors, but here it is just a value the
// runtime client consumes at connect time — this package never dials it.
type MCPServerSpec struct {
	Name      string
	Transport MCPTransport

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse / streamable-http
	URL     string
	Headers map[string]string

	ToolPrefix string
}

// SubagentDefinition declares a named sub-agent the top-level session may
// invoke via the runtime's Task tool, grounded on
// backend/sdk/agent/task_subagent_definitions.py's per-agent definition
// list threaded into ClaudeAgentOptions.agents.
type SubagentDefinition struct {
	Name         string
	Description  string
	Prompt       string
	AllowedTools []string
}

// OutputSchema, when set, asks the runtime to constrain its final message
// to a JSON document matching Schema and to surface it on
// ResultMessage.StructuredOutput. Schema is produced with
// github.com/invopop/jsonschema from a Go type.
type OutputSchema struct {
	Name   string
	Schema map[string]any
}

// Options configures one runtime session. It is the Go analogue of
// ClaudeAgentOptions in backend/sdk/agent/options_builder.py.
type Options struct {
	Model             string
	SystemPrompt      string
	MaxThinkingTokens int

	AllowedTools []string
	MCPServers   []MCPServerSpec
	Subagents    []SubagentDefinition

	// Resume, when non-empty, asks the runtime to continue an existing
	// session instead of starting fresh. The Client Pool (§4.F) treats a
	// change in Resume as cause to discard and recreate the client.
	Resume string

	OutputFormat *OutputSchema

	// IncludePartialMessages asks the runtime to emit StreamEvent deltas
	// ahead of each AssistantMessage, required for incremental UI updates.
	IncludePartialMessages bool

	Env map[string]string
}

// ConfigHash returns a stable digest of everything about Options that,
// if it changes, must force the Client Pool to discard the pooled client
// rather than reuse it: the MCP server set, the allowed tool list, the
// model, and the thinking-budget/system-prompt shape. Resume is excluded
// deliberately — callers compare it separately (§4.F) since a resume can
// apply to an otherwise-unchanged config.
func (o Options) ConfigHash() string {
	type canonicalServer struct {
		Name      string            `json:"name"`
		Transport MCPTransport      `json:"transport"`
		Command   string            `json:"command,omitempty"`
		Args      []string          `json:"args,omitempty"`
		Env       map[string]string `json:"env,omitempty"`
		URL       string            `json:"url,omitempty"`
		Headers   map[string]string `json:"headers,omitempty"`
	}

	servers := make([]canonicalServer, len(o.MCPServers))
	for i, s := range o.MCPServers {
		servers[i] = canonicalServer{
			Name: s.Name, Transport: s.Transport, Command: s.Command,
			Args: append([]string(nil), s.Args...), Env: s.Env,
			URL: s.URL, Headers: s.Headers,
		}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })

	tools := append([]string(nil), o.AllowedTools...)
	sort.Strings(tools)

	outputName := ""
	if o.OutputFormat != nil {
		outputName = o.OutputFormat.Name
	}

	canonical := struct {
		Model             string            `json:"model"`
		SystemPrompt      string            `json:"system_prompt"`
		MaxThinkingTokens int               `json:"max_thinking_tokens"`
		AllowedTools      []string          `json:"allowed_tools"`
		MCPServers        []canonicalServer `json:"mcp_servers"`
		OutputFormat      string            `json:"output_format"`
	}{
		Model:             o.Model,
		SystemPrompt:      o.SystemPrompt,
		MaxThinkingTokens: o.MaxThinkingTokens,
		AllowedTools:      tools,
		MCPServers:        servers,
		OutputFormat:      outputName,
	}

	// json.Marshal on a struct emits fields in declaration order, which is
	// fixed above, so this encoding is stable across calls.
	b, err := json.Marshal(canonical)
	if err != nil {
		// canonical contains no unsupported types; unreachable in practice.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
