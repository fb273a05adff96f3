package parse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// SessionRecordType enumerates the recognized session-jsonl record kinds.
// Unrecognized types are ignored by the caller, not an error here.
type SessionRecordType string

const (
	RecordUser         SessionRecordType = "user"
	RecordAssistant    SessionRecordType = "assistant"
	RecordToolUse      SessionRecordType = "tool_use"
	RecordToolResult   SessionRecordType = "tool_result"
	RecordSummary      SessionRecordType = "summary"
)

// TokenUsage carries one assistant message's token accounting, when present
// on the record (§3's token_usage payload summary).
type TokenUsage struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

// SessionRecord is one decoded line of an assistant session's jsonl log.
type SessionRecord struct {
	Type      SessionRecordType
	UUID      string
	ToolName  string // only set for tool_use records
	ToolUseID string // correlates tool_use with tool_result
	Timestamp time.Time  // zero if absent or unparseable
	Model     string     // only set for assistant records that carry one
	Usage     TokenUsage // zero value if the record carries no usage block
	HasUsage  bool
	Raw       json.RawMessage

	taskInput json.RawMessage // tool_use block's "input", only for AgentType()
}

type rawSessionLine struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

type rawMessage struct {
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

type rawContentBlock struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	ID        string          `json:"id"`
	ToolUseID string          `json:"tool_use_id"`
	Input     json.RawMessage `json:"input"`
}

// agentSpawnToolName is the tool a session record's tool_use block must
// name for its input to carry a subagent_type worth surfacing (§3's
// agent_spawn payload).
const agentSpawnToolName = "Task"

type rawTaskInput struct {
	SubagentType string `json:"subagent_type"`
}

// AgentType reports the subagent type a tool_use record spawned, if this
// record represents a Task tool invocation with one.
func (r SessionRecord) AgentType() (string, bool) {
	if r.Type != RecordToolUse || r.ToolName != agentSpawnToolName || len(r.taskInput) == 0 {
		return "", false
	}
	var in rawTaskInput
	if err := json.Unmarshal(r.taskInput, &in); err != nil || in.SubagentType == "" {
		return "", false
	}
	return in.SubagentType, true
}

// SessionTail is the result of parsing the bytes appended to a session
// jsonl file since a previously stored offset.
type SessionTail struct {
	Records   []SessionRecord
	NewOffset int64
}

// TailSessionFile reads a session jsonl file from the given byte offset to
// EOF, parsing complete (newline-terminated) lines and leaving any trailing
// partial line for the next call by not advancing the offset past it.
// Malformed JSON lines are skipped, but the offset still advances past
// them, per the parser's lenient-across-records contract.
func TailSessionFile(path string, offset int64) (SessionTail, error) {
	lines, newOffset, err := TailLines(path, offset)
	if err != nil {
		return SessionTail{}, err
	}

	var records []SessionRecord
	for _, line := range lines {
		if rec, ok := parseSessionLine(line); ok {
			records = append(records, rec)
		}
	}
	return SessionTail{Records: records, NewOffset: newOffset}, nil
}

// TailLines reads path from the given byte offset to EOF and returns every
// complete (newline-terminated), non-blank line found, plus the offset to
// resume from next time. A trailing partial line (the writer is mid-append)
// is left unconsumed so the next call picks it up whole.
func TailLines(path string, offset int64) ([][]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("parse: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("parse: stat %s: %w", path, err)
	}
	if info.Size() < offset {
		// Truncated since last read; restart from the top.
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("parse: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	parsedOffset := offset
	var lines [][]byte

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			break
		}
		if err != nil && err != io.EOF {
			return nil, 0, fmt.Errorf("parse: read %s: %w", path, err)
		}
		if err == io.EOF && !bytes.HasSuffix(line, []byte("\n")) {
			// Partial trailing line: do not consume, leave for next tail.
			break
		}

		parsedOffset += int64(len(line))
		trimmed := bytes.TrimRight(line, "\n\r")
		if len(bytes.TrimSpace(trimmed)) > 0 {
			lines = append(lines, trimmed)
		}

		if err == io.EOF {
			break
		}
	}

	return lines, parsedOffset, nil
}

func parseSessionLine(line []byte) (SessionRecord, bool) {
	var raw rawSessionLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return SessionRecord{}, false
	}

	rec := SessionRecord{
		Type: SessionRecordType(raw.Type),
		UUID: raw.UUID,
		Raw:  json.RawMessage(line),
	}
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			rec.Timestamp = ts
		}
	}

	if (rec.Type == RecordAssistant || rec.Type == RecordUser) && len(raw.Message) > 0 {
		var msg rawMessage
		if err := json.Unmarshal(raw.Message, &msg); err == nil {
			rec.Model = msg.Model
			if msg.Usage != nil {
				rec.HasUsage = true
				rec.Usage = TokenUsage{
					Input:      msg.Usage.InputTokens,
					Output:     msg.Usage.OutputTokens,
					CacheRead:  msg.Usage.CacheReadInputTokens,
					CacheWrite: msg.Usage.CacheCreationInputTokens,
				}
			}
			if len(msg.Content) > 0 {
				var blocks []rawContentBlock
				if err := json.Unmarshal(msg.Content, &blocks); err == nil {
					for _, b := range blocks {
						switch b.Type {
						case "tool_use":
							rec.Type = RecordToolUse
							rec.ToolName = b.Name
							rec.ToolUseID = b.ID
							rec.taskInput = b.Input
						case "tool_result":
							rec.Type = RecordToolResult
							rec.ToolUseID = b.ToolUseID
						default:
							continue
						}
						break
					}
				}
			}
		}
	}

	return rec, true
}
