package streaming

// SendOptions collects everything a generation request can carry besides
// the message itself. Zero values are omitted from the wire request.
type SendOptions struct {
	ConversationID string
	ParentID       string
	Model          string
	ProfileID      string

	EnableThinking bool
	WebSearch      bool
	UseMemory      bool

	// Generation holds backend sampling options (temperature, top_p, ...)
	// passed through untyped, the backend owns their meaning.
	Generation map[string]any

	Tools []Tool
}

type SendOption func(*SendOptions)

// WithConversation continues an existing conversation instead of creating
// a new one.
func WithConversation(conversationID string) SendOption {
	return func(o *SendOptions) {
		o.ConversationID = conversationID
	}
}

// WithParent attaches the new message under a specific parent, which is how
// edits and regenerations branch the message tree.
func WithParent(parentID string) SendOption {
	return func(o *SendOptions) {
		o.ParentID = parentID
	}
}

func WithModel(model string) SendOption {
	return func(o *SendOptions) {
		o.Model = model
	}
}

func WithProfile(profileID string) SendOption {
	return func(o *SendOptions) {
		o.ProfileID = profileID
	}
}

// WithThinking asks the backend to stream tool-planning text before tool
// calls.
func WithThinking() SendOption {
	return func(o *SendOptions) {
		o.EnableThinking = true
	}
}

func WithWebSearch() SendOption {
	return func(o *SendOptions) {
		o.WebSearch = true
	}
}

func WithMemory() SendOption {
	return func(o *SendOptions) {
		o.UseMemory = true
	}
}

func WithGenerationOptions(options map[string]any) SendOption {
	return func(o *SendOptions) {
		o.Generation = options
	}
}

// WithTools declares the tools the backend may call during this request.
func WithTools(tools ...Tool) SendOption {
	return func(o *SendOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}
