package command

// Subscribe asks the remote service to stream a project's events.
type Subscribe struct {
	ProjectKey string
	Filters    []EventFilter
}

func NewSubscribe(projectKey string, filters []EventFilter) *Subscribe {
	return &Subscribe{ProjectKey: projectKey, Filters: filters}
}

func (c *Subscribe) CommandName() string {
	return "Subscribe"
}

// Frames renders one frame per non-empty filter.
func (c *Subscribe) Frames() ([]string, error) {
	return renderControlFrames("subscribe", c.ProjectKey, c.Filters)
}

// Unsubscribe asks the remote service to stop streaming a project's events.
type Unsubscribe struct {
	ProjectKey string
	Filters    []EventFilter
}

func NewUnsubscribe(projectKey string, filters []EventFilter) *Unsubscribe {
	return &Unsubscribe{ProjectKey: projectKey, Filters: filters}
}

func (c *Unsubscribe) CommandName() string {
	return "Unsubscribe"
}

// Frames renders one frame per non-empty filter.
func (c *Unsubscribe) Frames() ([]string, error) {
	return renderControlFrames("unsubscribe", c.ProjectKey, c.Filters)
}

// KeepAlive keeps an idle connection from being reaped by the server.
type KeepAlive struct{}

func (c *KeepAlive) CommandName() string {
	return "KeepAlive"
}

// keepAliveFrame never changes, so it is rendered once.
const keepAliveFrame = `{"action":"keep_alive","statusCode":200}`

func (c *KeepAlive) Frames() ([]string, error) {
	return []string{keepAliveFrame}, nil
}

var (
	_ FrameCommand = (*Subscribe)(nil)
	_ FrameCommand = (*Unsubscribe)(nil)
	_ FrameCommand = (*KeepAlive)(nil)
)
