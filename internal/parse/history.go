package parse

import "encoding/json"

// HistoryFieldErrorKind names which required field was missing from a
// history.jsonl record.
type HistoryFieldErrorKind int

const (
	HistoryMissingDisplay HistoryFieldErrorKind = iota
	HistoryMissingTimestamp
	HistoryMissingProject
	HistoryMissingSessionID
	HistoryInvalidJSON
)

// HistoryRecordError reports why one history.jsonl line was skipped.
type HistoryRecordError struct {
	Kind HistoryFieldErrorKind
}

func (e *HistoryRecordError) Error() string {
	switch e.Kind {
	case HistoryMissingDisplay:
		return "history record missing \"display\""
	case HistoryMissingTimestamp:
		return "history record missing \"timestamp\""
	case HistoryMissingProject:
		return "history record missing \"project\""
	case HistoryMissingSessionID:
		return "history record missing \"sessionId\""
	default:
		return "history record invalid json"
	}
}

// HistoryRecord is one decoded line of the append-only slash-command log.
type HistoryRecord struct {
	Display   string
	Timestamp int64 // ms since epoch
	Project   string
	SessionID string
}

type rawHistoryRecord struct {
	Display   *string `json:"display"`
	Timestamp *int64  `json:"timestamp"`
	Project   *string `json:"project"`
	SessionID *string `json:"sessionId"`
}

// ParseHistoryLine decodes a single history.jsonl record. All four fields
// are required; the caller skips the line (not the whole file) on error.
func ParseHistoryLine(line []byte) (HistoryRecord, error) {
	var raw rawHistoryRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return HistoryRecord{}, &HistoryRecordError{Kind: HistoryInvalidJSON}
	}
	if raw.Display == nil {
		return HistoryRecord{}, &HistoryRecordError{Kind: HistoryMissingDisplay}
	}
	if raw.Timestamp == nil {
		return HistoryRecord{}, &HistoryRecordError{Kind: HistoryMissingTimestamp}
	}
	if raw.Project == nil {
		return HistoryRecord{}, &HistoryRecordError{Kind: HistoryMissingProject}
	}
	if raw.SessionID == nil {
		return HistoryRecord{}, &HistoryRecordError{Kind: HistoryMissingSessionID}
	}
	return HistoryRecord{
		Display:   *raw.Display,
		Timestamp: *raw.Timestamp,
		Project:   *raw.Project,
		SessionID: *raw.SessionID,
	}, nil
}
