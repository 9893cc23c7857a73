package live

// Tool represents a function the model can invoke during conversation,
// such as searching the genealogy archive.
type Tool struct {
	// Name is the unique identifier for the tool (e.g. "search_database").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide
	// when to use it.
	Description string `json:"description"`

	// Parameters defines the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`

	// Handler is called when the model invokes this tool. The result is
	// sent back to the model to continue the conversation.
	Handler func(args map[string]any) (map[string]any, error) `json:"-"`
}

// ToolCall represents an invocation of a tool by the model.
type ToolCall struct {
	// ID matches the result back to this call.
	ID string

	// Name is the tool being invoked.
	Name string

	// Arguments contains the parsed arguments from the model.
	Arguments map[string]any
}
