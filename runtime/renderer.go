package runtime

// Reply is the channel-agnostic payload handed to external renderers. The
// engine never inspects channel-specific formatting.
type Reply struct {
	Message  string            `json:"message"`
	Buttons  []Button          `json:"buttons,omitempty"`
	Complete bool              `json:"complete"`
	Summary  map[string]string `json:"summary,omitempty"`
}

// Renderer turns a finalized step plus session into a channel-native reply.
type Renderer interface {
	Render(step *Step, session *Session) (*Reply, error)
}

// RendererRegistry dispatches rendering by session channel, falling back to
// the default renderer for unknown channels.
type RendererRegistry struct {
	renderers map[string]Renderer
	fallback  Renderer
}

func NewRendererRegistry() *RendererRegistry {
	return &RendererRegistry{
		renderers: make(map[string]Renderer),
		fallback:  &PlainRenderer{},
	}
}

// Register adds a renderer for a channel.
func (r *RendererRegistry) Register(channel string, renderer Renderer) {
	r.renderers[channel] = renderer
}

// For returns the renderer for a channel.
func (r *RendererRegistry) For(channel string) Renderer {
	if renderer, ok := r.renderers[channel]; ok {
		return renderer
	}
	return r.fallback
}

// PlainRenderer passes the interpolated message and buttons straight
// through; the gateway serializes the reply as JSON.
type PlainRenderer struct{}

func (r *PlainRenderer) Render(step *Step, session *Session) (*Reply, error) {
	return &Reply{
		Message: step.Message,
		Buttons: step.Buttons,
	}, nil
}
