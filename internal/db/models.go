package db

import (
	"time"
)

type JobStatus string

const (
	StatusQueued   JobStatus = "queued"
	StatusPrinting JobStatus = "printing"
	StatusPrinted  JobStatus = "printed"
	StatusFailed   JobStatus = "failed"
)

type JobKind string

const (
	KindText  JobKind = "text"
	KindImage JobKind = "image"
	KindMixed JobKind = "mixed"
)

// PrintJob is one submitted print request and its lifecycle record.
// Status moves queued -> printing -> printed|failed and never backwards;
// a reprint creates a new row instead of mutating an old one.
type PrintJob struct {
	ID           int64      `json:"id"`
	Kind         JobKind    `json:"kind"`
	Message      string     `json:"message,omitempty"`
	Image        string     `json:"image,omitempty"`
	SubmitterIP  string     `json:"submitter_ip"`
	FriendName   string     `json:"friend_name,omitempty"`
	IsPriority   bool       `json:"is_priority"`
	Status       JobStatus  `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PrintedAt    *time.Time `json:"printed_at,omitempty"`
}

// SubmitterIdentity is the name printed on the receipt: the friend display
// name when the job was credentialed, otherwise the submitter's IP address.
func (j *PrintJob) SubmitterIdentity() string {
	if j.FriendName != "" {
		return j.FriendName
	}
	return j.SubmitterIP
}

type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

type QueueStats struct {
	Queued   int `json:"queued"`
	Printing int `json:"printing"`
	Printed  int `json:"printed"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
