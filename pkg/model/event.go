package model

// EventType is the kind of message delivered to a session observer
type EventType string

const (
	EventLog       EventType = "log"
	EventTools     EventType = "tools"
	EventLayer     EventType = "layer"
	EventChat      EventType = "chat"
	EventResources EventType = "resources"
	EventOpenURL   EventType = "open_url"
)

// Event is a typed message of the outbound session stream
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type LogData struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// LayerStatus is the progress of one phase of a request cycle
type LayerStatus string

const (
	LayerActive LayerStatus = "active"
	LayerDone   LayerStatus = "done"
)

const (
	LayerPerception = "Perception"
	LayerMemory     = "Memory"
	LayerDecision   = "Decision"
	LayerAction     = "Action"
)

type LayerData struct {
	Name   string      `json:"name"`
	Status LayerStatus `json:"status"`
	Data   any         `json:"data,omitempty"`
}

type ChatData struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ResourcesData struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type OpenURLData struct {
	URL string `json:"url"`
}
