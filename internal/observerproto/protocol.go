// Package observerproto defines the messages exchanged with batch progress observers.
package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeProgress  = "PROGRESS"
	TypeDone      = "DONE"
)

// Client -> Server. Must be the first message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Replay asks for the progress messages already published for the current batch.
	Replay bool `json:"replay,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string    `json:"protocol_version"`
	Batch           BatchInfo `json:"batch"`
	Done            int       `json:"done"`
}

type BatchInfo struct {
	ID         string   `json:"id"`
	Model      string   `json:"model"`
	Population int      `json:"population"`
	Days       int      `json:"days"`
	Replicates int      `json:"replicates"`
	Threads    int      `json:"threads"`
	BaseSeed   int64    `json:"base_seed"`
	Statuses   []string `json:"statuses"`
}

// Server -> Client. Sent once per finished replicate, in completion order.
type ProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Done            int    `json:"done"`
	Total           int    `json:"total"`
	Replicate       int    `json:"replicate"`
	Seed            int64  `json:"seed"`
	Digest          string `json:"digest"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	Counts          []int  `json:"counts,omitempty"`
}

// Server -> Client. Sent when the batch ends; the server closes the connection afterwards.
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Done            int    `json:"done"`
	Total           int    `json:"total"`
	Error           string `json:"error,omitempty"`
}
