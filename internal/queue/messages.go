package queue

import (
	"errors"
)

// ErrPermanent marks failures that a retry cannot fix. Such messages go
// straight to the dead letter queue.
var ErrPermanent = errors.New("permanent failure")

// BuildJobMsg asks a worker to build the graph of an uploaded document.
type BuildJobMsg struct {
	JobID       string `json:"job_id"`
	DocumentKey string `json:"document_key"`
	FileName    string `json:"file_name"`
}

// DeleteGraphMsg asks a worker to remove a graph from every store.
type DeleteGraphMsg struct {
	GraphID string `json:"graph_id"`
}

// GraphEvent is published on the event exchange when a job ends.
type GraphEvent struct {
	JobID   string `json:"job_id"`
	GraphID string `json:"graph_id,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

const (
	TopicGraphBuilt   = "graph.built"
	TopicGraphFailed  = "graph.failed"
	TopicGraphDeleted = "graph.deleted"
)
