package mcp

// ServerType identifies one of the known tool servers.
type ServerType string

const (
	// ServerTypeFilesystem exposes local file operations (read, write, list, search)
	ServerTypeFilesystem ServerType = "filesystem"
)

// Transport is the wire transport a tool server speaks.
type Transport string

const (
	// TransportStdio runs the server as a subprocess over stdin/stdout
	TransportStdio Transport = "stdio"
)

// ServerSpec is the launch specification for one tool server subprocess.
// Built fresh per request and never mutated afterwards.
type ServerSpec struct {
	Type        ServerType
	Command     string
	Args        []string
	Transport   Transport
	AllowedPath string
}

// KnownServerTypes returns every server type this build understands.
func KnownServerTypes() []ServerType {
	return []ServerType{ServerTypeFilesystem}
}

// ParseServerType maps a raw identifier onto a known server type.
func ParseServerType(raw string) (ServerType, bool) {
	switch ServerType(raw) {
	case ServerTypeFilesystem:
		return ServerTypeFilesystem, true
	default:
		return "", false
	}
}

// ResolveServerSpecs builds launch specs for the selected server types.
//
// Unrecognized types are skipped rather than rejected so that requests built
// against a newer identifier set keep working; the request boundary already
// validates against the closed enumeration. An empty selection yields an empty
// map, which downstream means the turn runs without tools.
func ResolveServerSpecs(selected []ServerType, allowedPath string) map[ServerType]ServerSpec {
	specs := make(map[ServerType]ServerSpec)

	for _, st := range selected {
		switch st {
		case ServerTypeFilesystem:
			// Filesystem MCP server runs via npx as a subprocess
			specs[ServerTypeFilesystem] = ServerSpec{
				Type:    ServerTypeFilesystem,
				Command: "npx",
				Args: []string{
					"-y",
					"@modelcontextprotocol/server-filesystem",
					allowedPath,
				},
				Transport:   TransportStdio,
				AllowedPath: allowedPath,
			}
		}
	}

	return specs
}
