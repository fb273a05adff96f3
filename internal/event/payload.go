package event

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SessionAction is the session payload's action discriminator.
type SessionAction string

const (
	SessionStarted SessionAction = "started"
	SessionEnded   SessionAction = "ended"
)

// ToolStatus is the tool payload's status discriminator.
type ToolStatus string

const (
	ToolStarted   ToolStatus = "started"
	ToolCompleted ToolStatus = "completed"
)

type SessionPayload struct {
	SessionID string
	Action    SessionAction
}

func (p SessionPayload) EventType() Type { return TypeSession }
func (p SessionPayload) CanonicalFields() []Field {
	return []Field{{"session_id", p.SessionID}, {"action", string(p.Action)}}
}

type ActivityPayload struct {
	SessionID string
}

func (p ActivityPayload) EventType() Type { return TypeActivity }
func (p ActivityPayload) CanonicalFields() []Field {
	return []Field{{"session_id", p.SessionID}}
}

type ToolPayload struct {
	SessionID string
	ToolName  string
	Status    ToolStatus
}

func (p ToolPayload) EventType() Type { return TypeTool }
func (p ToolPayload) CanonicalFields() []Field {
	return []Field{
		{"session_id", p.SessionID},
		{"tool_name", p.ToolName},
		{"status", string(p.Status)},
	}
}

type AgentSpawnPayload struct {
	SessionID string
	AgentType string
}

func (p AgentSpawnPayload) EventType() Type { return TypeAgentSpawn }
func (p AgentSpawnPayload) CanonicalFields() []Field {
	return []Field{{"session_id", p.SessionID}, {"agent_type", p.AgentType}}
}

type SkillInvocationPayload struct {
	SessionID string
	SkillName string
	Project   string
}

func (p SkillInvocationPayload) EventType() Type { return TypeSkillInvocation }
func (p SkillInvocationPayload) CanonicalFields() []Field {
	return []Field{
		{"session_id", p.SessionID},
		{"skill_name", p.SkillName},
		{"project", p.Project},
	}
}

type TokenUsageSummary struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

type TokenUsagePayload struct {
	SessionID string
	Model     string
	Summary   TokenUsageSummary
}

func (p TokenUsagePayload) EventType() Type { return TypeTokenUsage }
func (p TokenUsagePayload) CanonicalFields() []Field {
	return []Field{
		{"session_id", p.SessionID},
		{"model", p.Model},
		{"summary", []Field{
			{"input", p.Summary.Input},
			{"output", p.Summary.Output},
			{"cache_read", p.Summary.CacheRead},
			{"cache_write", p.Summary.CacheWrite},
		}},
	}
}

type SessionMetricsPayload struct {
	SessionID  string
	Messages   int64
	Tools      int64
	DurationMs int64
}

func (p SessionMetricsPayload) EventType() Type { return TypeSessionMetrics }
func (p SessionMetricsPayload) CanonicalFields() []Field {
	return []Field{
		{"session_id", p.SessionID},
		{"messages", p.Messages},
		{"tools", p.Tools},
		{"duration_ms", p.DurationMs},
	}
}

// ActivityPatternPayload carries a count per hour-of-day (0-23). Keys are
// formatted as decimal strings for stable JSON object ordering.
type ActivityPatternPayload struct {
	SessionID  string
	HourCounts map[int]int64
}

func (p ActivityPatternPayload) EventType() Type { return TypeActivityPattern }
func (p ActivityPatternPayload) CanonicalFields() []Field {
	counts := make([]Field, 0, len(p.HourCounts))
	for h := 0; h < 24; h++ {
		if c, ok := p.HourCounts[h]; ok {
			counts = append(counts, Field{fmt.Sprintf("%d", h), c})
		}
	}
	return []Field{
		{"session_id", p.SessionID},
		{"hour_counts", counts},
	}
}

type ModelDistributionPayload struct {
	SessionID string
	Models    map[string]int64
}

func (p ModelDistributionPayload) EventType() Type { return TypeModelDistribution }
func (p ModelDistributionPayload) CanonicalFields() []Field {
	names := make([]string, 0, len(p.Models))
	for name := range p.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]Field, 0, len(names))
	for _, name := range names {
		models = append(models, Field{name, p.Models[name]})
	}
	return []Field{
		{"session_id", p.SessionID},
		{"models", models},
	}
}

type TodoProgressPayload struct {
	SessionID  string
	Completed  int64
	InProgress int64
	Pending    int64
	Abandoned  int64
}

func (p TodoProgressPayload) EventType() Type { return TypeTodoProgress }
func (p TodoProgressPayload) CanonicalFields() []Field {
	return []Field{
		{"session_id", p.SessionID},
		{"completed", p.Completed},
		{"in_progress", p.InProgress},
		{"pending", p.Pending},
		{"abandoned", p.Abandoned},
	}
}

type FileChangePayload struct {
	SessionID     string
	FileHash      string
	Version       int
	LinesAdded    int
	LinesRemoved  int
	LinesModified int
}

func (p FileChangePayload) EventType() Type { return TypeFileChange }
func (p FileChangePayload) CanonicalFields() []Field {
	return []Field{
		{"session_id", p.SessionID},
		{"file_hash", p.FileHash},
		{"version", p.Version},
		{"lines_added", p.LinesAdded},
		{"lines_removed", p.LinesRemoved},
		{"lines_modified", p.LinesModified},
	}
}

type ProjectActivityPayload struct {
	ProjectPath string
	SessionID   string
	IsActive    bool
}

func (p ProjectActivityPayload) EventType() Type { return TypeProjectActivity }
func (p ProjectActivityPayload) CanonicalFields() []Field {
	return []Field{
		{"project_path", p.ProjectPath},
		{"session_id", p.SessionID},
		{"is_active", p.IsActive},
	}
}

// NeutralSummaryText and NeutralErrorText are the only values the summary
// and error payloads are ever allowed to carry; the privacy pipeline is the
// authoritative enforcement point (see SPEC_FULL.md's Open Questions).
const (
	NeutralSummaryText = "session ended"
	NeutralErrorText   = "error"
)

type SummaryPayload struct {
	Text string
}

func (p SummaryPayload) EventType() Type { return TypeSummary }
func (p SummaryPayload) CanonicalFields() []Field {
	return []Field{{"text", NeutralSummaryText}}
}

type ErrorPayload struct {
	Text string
}

func (p ErrorPayload) EventType() Type { return TypeError }
func (p ErrorPayload) CanonicalFields() []Field {
	return []Field{{"text", NeutralErrorText}}
}

// decodePayload dispatches on the wire event_type to the matching payload
// struct for transport decoding (used by Ingest's shape validation).
func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeSession:
		var w struct {
			SessionID string        `json:"session_id"`
			Action    SessionAction `json:"action"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return SessionPayload{w.SessionID, w.Action}, nil
	case TypeActivity:
		var w struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return ActivityPayload{w.SessionID}, nil
	case TypeTool:
		var w struct {
			SessionID string     `json:"session_id"`
			ToolName  string     `json:"tool_name"`
			Status    ToolStatus `json:"status"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return ToolPayload{w.SessionID, w.ToolName, w.Status}, nil
	case TypeAgentSpawn:
		var w struct {
			SessionID string `json:"session_id"`
			AgentType string `json:"agent_type"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return AgentSpawnPayload{w.SessionID, w.AgentType}, nil
	case TypeSkillInvocation:
		var w struct {
			SessionID string `json:"session_id"`
			SkillName string `json:"skill_name"`
			Project   string `json:"project"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return SkillInvocationPayload{w.SessionID, w.SkillName, w.Project}, nil
	case TypeTokenUsage:
		var w struct {
			SessionID string `json:"session_id"`
			Model     string `json:"model"`
			Summary   struct {
				Input      int64 `json:"input"`
				Output     int64 `json:"output"`
				CacheRead  int64 `json:"cache_read"`
				CacheWrite int64 `json:"cache_write"`
			} `json:"summary"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return TokenUsagePayload{w.SessionID, w.Model, TokenUsageSummary(w.Summary)}, nil
	case TypeSessionMetrics:
		var w struct {
			SessionID  string `json:"session_id"`
			Messages   int64  `json:"messages"`
			Tools      int64  `json:"tools"`
			DurationMs int64  `json:"duration_ms"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return SessionMetricsPayload{w.SessionID, w.Messages, w.Tools, w.DurationMs}, nil
	case TypeActivityPattern:
		var w struct {
			SessionID  string           `json:"session_id"`
			HourCounts map[string]int64 `json:"hour_counts"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		hc := make(map[int]int64, len(w.HourCounts))
		for k, v := range w.HourCounts {
			var h int
			if _, err := fmt.Sscanf(k, "%d", &h); err != nil {
				continue
			}
			hc[h] = v
		}
		return ActivityPatternPayload{w.SessionID, hc}, nil
	case TypeModelDistribution:
		var w struct {
			SessionID string           `json:"session_id"`
			Models    map[string]int64 `json:"models"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return ModelDistributionPayload{w.SessionID, w.Models}, nil
	case TypeTodoProgress:
		var w struct {
			SessionID  string `json:"session_id"`
			Completed  int64  `json:"completed"`
			InProgress int64  `json:"in_progress"`
			Pending    int64  `json:"pending"`
			Abandoned  int64  `json:"abandoned"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return TodoProgressPayload{w.SessionID, w.Completed, w.InProgress, w.Pending, w.Abandoned}, nil
	case TypeFileChange:
		var w struct {
			SessionID     string `json:"session_id"`
			FileHash      string `json:"file_hash"`
			Version       int    `json:"version"`
			LinesAdded    int    `json:"lines_added"`
			LinesRemoved  int    `json:"lines_removed"`
			LinesModified int    `json:"lines_modified"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return FileChangePayload{w.SessionID, w.FileHash, w.Version, w.LinesAdded, w.LinesRemoved, w.LinesModified}, nil
	case TypeProjectActivity:
		var w struct {
			ProjectPath string `json:"project_path"`
			SessionID   string `json:"session_id"`
			IsActive    bool   `json:"is_active"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return ProjectActivityPayload{w.ProjectPath, w.SessionID, w.IsActive}, nil
	case TypeSummary:
		return SummaryPayload{NeutralSummaryText}, nil
	case TypeError:
		return ErrorPayload{NeutralErrorText}, nil
	default:
		return nil, fmt.Errorf("event: unknown event_type %q", t)
	}
}
