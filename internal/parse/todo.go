package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// TodoStatus is the per-entry status discriminator in a todo file.
type TodoStatus string

const (
	TodoCompleted  TodoStatus = "completed"
	TodoInProgress TodoStatus = "in_progress"
	TodoPending    TodoStatus = "pending"
)

// TodoErrorKind names why a whole todo file failed to load. A single
// invalid entry invalidates the whole file, per the on-disk format's
// whole-file-replace semantics.
type TodoErrorKind int

const (
	TodoErrInvalidJSON TodoErrorKind = iota
	TodoErrNotAnArray
	TodoErrMissingContent
	TodoErrMissingStatus
	TodoErrInvalidStatus
	TodoErrInvalidFilename
)

// TodoError reports why a todo file or filename failed validation.
type TodoError struct {
	Kind  TodoErrorKind
	Value string // the offending status string, for TodoErrInvalidStatus
}

func (e *TodoError) Error() string {
	switch e.Kind {
	case TodoErrInvalidJSON:
		return "todo file is not valid json"
	case TodoErrNotAnArray:
		return "todo file top level must be an array"
	case TodoErrMissingContent:
		return "todo entry missing \"content\""
	case TodoErrMissingStatus:
		return "todo entry missing \"status\""
	case TodoErrInvalidStatus:
		return fmt.Sprintf("todo entry has invalid status %q", e.Value)
	case TodoErrInvalidFilename:
		return "todo filename does not match <uuid>-agent-<uuid>.json"
	default:
		return "invalid todo file"
	}
}

// TodoEntry is one task in a todo file.
type TodoEntry struct {
	Content    string
	Status     TodoStatus
	ActiveForm string
}

type rawTodoEntry struct {
	Content    *string `json:"content"`
	Status     *string `json:"status"`
	ActiveForm string  `json:"activeForm"`
}

// ParseTodoFile decodes a whole todo-file JSON array. Any invalid entry
// fails the entire load, matching the format's whole-file-replace contract.
func ParseTodoFile(data []byte) ([]TodoEntry, error) {
	var raw []rawTodoEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &TodoError{Kind: TodoErrNotAnArray}
		}
		return nil, &TodoError{Kind: TodoErrInvalidJSON}
	}

	entries := make([]TodoEntry, 0, len(raw))
	for _, r := range raw {
		if r.Content == nil {
			return nil, &TodoError{Kind: TodoErrMissingContent}
		}
		if r.Status == nil {
			return nil, &TodoError{Kind: TodoErrMissingStatus}
		}
		status := TodoStatus(*r.Status)
		switch status {
		case TodoCompleted, TodoInProgress, TodoPending:
		default:
			return nil, &TodoError{Kind: TodoErrInvalidStatus, Value: *r.Status}
		}
		entries = append(entries, TodoEntry{
			Content:    *r.Content,
			Status:     status,
			ActiveForm: r.ActiveForm,
		})
	}
	return entries, nil
}

// TodoCounts summarizes a todo file's entries by status.
type TodoCounts struct {
	Completed  int
	InProgress int
	Pending    int
}

// CountTodos tallies entries by status.
func CountTodos(entries []TodoEntry) TodoCounts {
	var c TodoCounts
	for _, e := range entries {
		switch e.Status {
		case TodoCompleted:
			c.Completed++
		case TodoInProgress:
			c.InProgress++
		case TodoPending:
			c.Pending++
		}
	}
	return c
}

var todoFilenamePattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}-agent-[0-9a-fA-F-]{36}\.json$`)

// ParseTodoFilename validates a todo filename against the
// <session-uuid>-agent-<session-uuid>.json pattern and returns the
// embedded session id (the first UUID component).
func ParseTodoFilename(name string) (string, error) {
	if !todoFilenamePattern.MatchString(name) {
		return "", &TodoError{Kind: TodoErrInvalidFilename}
	}
	const suffixLen = len("-agent-") + 36 + len(".json")
	sessionID := name[:len(name)-suffixLen]
	return sessionID, nil
}
