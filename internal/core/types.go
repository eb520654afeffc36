package core

// PrinterMessage is the server -> printer frame. Exactly one acknowledgment
// is expected back per message sent.
type PrinterMessage struct {
	From    string `json:"from"`
	Date    string `json:"date"`
	Message string `json:"message,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Acknowledgment is the printer -> server frame. Any status other than
// "success" is treated as a failure report.
type Acknowledgment struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const (
	AckSuccess = "success"
	AckFailed  = "failed"

	// defaultAckError is recorded when a failure acknowledgment carries no
	// reason of its own.
	defaultAckError = "unknown error"
)
