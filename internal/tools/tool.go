// Package tools provides the fixed agent tool set and the executor that runs it
// against a workspace root.
package tools

import "fmt"

// Kind identifies one of the tools the agent may call. The set is closed:
// adding a tool means adding a Kind, a declaration and an executor branch.
type Kind int

const (
	KindReadFile Kind = iota
	KindWriteFile
	KindListDir
	KindExecShell
)

var kindNames = map[Kind]string{
	KindReadFile:  "read_file",
	KindWriteFile: "write_file",
	KindListDir:   "list_dir",
	KindExecShell: "exec_shell",
}

// String returns the function name the model uses for this tool.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a function name from a tool call to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Declaration is the signature of a tool as advertised to the model.
type Declaration struct {
	Kind        Kind
	Description string
	Parameters  []Parameter
}

// Name returns the function name of the declared tool.
func (d Declaration) Name() string { return d.Kind.String() }

// Schema returns the JSON Schema object for the tool parameters.
func (d Declaration) Schema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := []string{}
	for _, p := range d.Parameters {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var declarations = []Declaration{
	{
		Kind:        KindReadFile,
		Description: "Read the contents of a file in the workspace.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path relative to the workspace root", Required: true},
		},
	},
	{
		Kind:        KindWriteFile,
		Description: "Write content to a file in the workspace. Parent directories are created and existing files are overwritten.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "File path relative to the workspace root", Required: true},
			{Name: "content", Type: "string", Description: "Full file content to write", Required: true},
		},
	},
	{
		Kind:        KindListDir,
		Description: "List the immediate children of a directory in the workspace.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Directory path relative to the workspace root; empty for the root"},
		},
	},
	{
		Kind:        KindExecShell,
		Description: "Run a shell command with the workspace root as working directory and return its output.",
		Parameters: []Parameter{
			{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
		},
	},
}

// Declarations returns the four tool declarations in their fixed order.
func Declarations() []Declaration {
	out := make([]Declaration, len(declarations))
	copy(out, declarations)
	return out
}

// Definitions returns the declarations in OpenAI function-calling format.
func Definitions() []map[string]any {
	result := make([]map[string]any, 0, len(declarations))
	for _, d := range declarations {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name(),
				"description": d.Description,
				"parameters":  d.Schema(),
			},
		})
	}
	return result
}

// GetString extracts a string parameter with a default value.
func GetString(params map[string]any, key string, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// requireString returns the named argument, or false when it is missing or
// not a string. An empty string counts as present.
func requireString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
