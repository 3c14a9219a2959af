// Package capture defines the capture-and-compose pipeline: the data model
// shared by the HTTP boundary, the exporter, and the orchestrator that drives a
// browser across a batch of blog posts.
package capture

import (
	"errors"
	"time"
)

// Default pipeline dimensions and budgets.
const (
	DefaultCanvasWidth       = 1200
	DefaultNavigationTimeout = 30 * time.Second
	DefaultRenderTimeout     = 30 * time.Second
	DefaultFallbackTitle     = "no title"
)

var (
	// ErrNoItems rejects a batch before any resource is allocated.
	ErrNoItems = errors.New("at least one capture item is required")
	// ErrEngineUnavailable marks a fatal automation engine failure (launch or crash).
	ErrEngineUnavailable = errors.New("automation engine unavailable")
)

// Item is one row submitted for capture.
type Item struct {
	Index int    `json:"index"`
	Date  string `json:"date"`
	Name  string `json:"name"`
	Link  string `json:"link"`
	Title string `json:"title"`
}

// Result is an Item extended with exactly one terminal state. Successful
// results carry BlogTitle and Filename; failed results carry Error.
type Result struct {
	Item
	Success   bool   `json:"success"`
	BlogTitle string `json:"blogTitle,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Succeeded builds a success result for item.
func Succeeded(item Item, blogTitle, filename string) Result {
	return Result{Item: item, Success: true, BlogTitle: blogTitle, Filename: filename}
}

// Failed builds a failure result for item.
func Failed(item Item, err error) Result {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Result{Item: item, Success: false, Error: msg}
}

// Session groups the results of one batch with its artifact directory.
type Session struct {
	ID         string    `json:"sessionId"`
	Dir        string    `json:"-"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Results    []Result  `json:"results"`
}

// Total returns the number of items processed in the batch.
func (s Session) Total() int {
	return len(s.Results)
}

// Succeeded counts successful results.
func (s Session) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Summary is the JSON shape returned to callers after a batch.
type Summary struct {
	SessionID string   `json:"sessionId"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Results   []Result `json:"results"`
}

// Summarize projects a session into its caller-facing summary.
func (s Session) Summarize() Summary {
	results := s.Results
	if results == nil {
		results = []Result{}
	}
	return Summary{
		SessionID: s.ID,
		Total:     s.Total(),
		Succeeded: s.Succeeded(),
		Results:   results,
	}
}
