// Package commands accepts fleet commands over HTTP. Submitted commands are
// queued for the run loop, which reports their outcome back through
// PublishAck.
package commands

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
)

// ErrQueueFull is returned when the run loop lags behind submissions.
var ErrQueueFull = errors.New("command queue full")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("command queue closed")

// Result is the state of a submitted command.
type Result struct {
	ID     string `json:"command_id"`
	Action string `json:"action"`
	Done   bool   `json:"done"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Queue is a bounded CommandSource that remembers the last results.
type Queue struct {
	ch   chan coremqtt.Command
	keep int

	mu      sync.Mutex
	closed  bool
	results map[string]*Result
	order   []string
}

var _ coremqtt.CommandSource = (*Queue)(nil)

// NewQueue buffers up to buffer commands and remembers the results of the
// last keep ones.
func NewQueue(buffer, keep int) *Queue {
	if buffer <= 0 {
		buffer = 32
	}
	if keep <= 0 {
		keep = 256
	}
	return &Queue{
		ch:      make(chan coremqtt.Command, buffer),
		keep:    keep,
		results: make(map[string]*Result),
	}
}

// Submit validates and queues cmd, returning its id.
func (q *Queue) Submit(cmd coremqtt.Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	select {
	case q.ch <- cmd:
	default:
		return "", ErrQueueFull
	}
	q.remember(&Result{ID: cmd.ID, Action: cmd.Action})
	return cmd.ID, nil
}

func (q *Queue) remember(r *Result) {
	if _, ok := q.results[r.ID]; !ok {
		q.order = append(q.order, r.ID)
	}
	q.results[r.ID] = r
	for len(q.order) > q.keep {
		delete(q.results, q.order[0])
		q.order = q.order[1:]
	}
}

// Commands implements CommandSource.
func (q *Queue) Commands() <-chan coremqtt.Command { return q.ch }

// PublishAck records the outcome of a command.
func (q *Queue) PublishAck(commandID string, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[commandID]
	if !ok {
		return nil
	}
	r.Done, r.OK = true, err == nil
	if err != nil {
		r.Error = err.Error()
	}
	return nil
}

// Result returns the state of a command.
func (q *Queue) Result(id string) (Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[id]
	if !ok {
		return Result{}, false
	}
	return *r, true
}

// Close stops accepting commands and closes the channel.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
