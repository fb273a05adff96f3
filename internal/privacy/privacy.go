// Package privacy implements the Event → Event ∪ Drop pipeline every
// outbound telemetry event passes through before signing (§4.6). It is the
// single authoritative enforcement point for the redaction invariants in §3.
package privacy

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aaronbassett/vibetea/internal/event"
)

// allowedExtensions is the static allowlist basenames must carry to survive
// unredacted; anything else becomes the neutral "<redacted>" placeholder.
var allowedExtensions = map[string]bool{
	".go": true, ".rs": true, ".py": true, ".js": true, ".ts": true,
	".tsx": true, ".jsx": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".md": true, ".txt": true, ".sh": true, ".sql": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".java": true,
	".rb": true, ".css": true, ".html": true,
}

const redactedBasename = "<redacted>"

var hexSessionIDLike = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)

// Filter applies the redaction pipeline. home, when non-empty, is the
// Monitor's own $HOME used to collapse absolute paths into ~-relative
// basenames.
type Filter struct {
	Home string
}

// New builds a Filter using the current process's home directory.
func New() *Filter {
	home, _ := os.UserHomeDir()
	return &Filter{Home: home}
}

// Apply runs an event through the privacy pipeline. ok is false if the
// event must be dropped (the Sender never sees it).
func (f *Filter) Apply(e event.Event) (event.Event, bool) {
	payload, ok := f.sanitizePayload(e.Payload)
	if !ok {
		return event.Event{}, false
	}
	e.Payload = payload
	return e, true
}

func (f *Filter) sanitizePayload(p event.Payload) (event.Payload, bool) {
	switch v := p.(type) {
	case event.SessionPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.ActivityPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.ToolPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.AgentSpawnPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.SkillInvocationPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		v.Project = f.sanitizeIdentifier(v.Project)
		return v, true
	case event.TokenUsagePayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.SessionMetricsPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.ActivityPatternPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.ModelDistributionPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.TodoProgressPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		return v, true
	case event.FileChangePayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		if !hexSessionIDLike.MatchString(v.FileHash) {
			// The file identifier must be the 16-hex content hash, never a
			// real path; anything else fails the allowlist outright.
			return nil, false
		}
		return v, true
	case event.ProjectActivityPayload:
		v.SessionID = f.sanitizeIdentifier(v.SessionID)
		v.ProjectPath = f.sanitizeProjectPath(v.ProjectPath)
		return v, true
	case event.SummaryPayload:
		v.Text = event.NeutralSummaryText
		return v, true
	case event.ErrorPayload:
		v.Text = event.NeutralErrorText
		return v, true
	default:
		return nil, false
	}
}

// sanitizeIdentifier collapses an identifier that turns out to carry a
// path into a bare basename; ordinary opaque IDs pass through unchanged.
func (f *Filter) sanitizeIdentifier(s string) string {
	if s == "" {
		return s
	}
	if strings.Contains(s, "$HOME") {
		return filepath.Base(strings.TrimPrefix(s, "$HOME"))
	}
	if f.Home != "" && strings.HasPrefix(s, f.Home) {
		return filepath.Base(s)
	}
	if strings.HasPrefix(s, "/") {
		return filepath.Base(s)
	}
	return s
}

// sanitizeProjectPath keeps the project slug form (dashes for separators)
// but still collapses a literal absolute path or $HOME reference down to a
// basename, matching the session_id rule above.
func (f *Filter) sanitizeProjectPath(s string) string {
	return f.sanitizeIdentifier(s)
}

// SanitizeBasename enforces the extension allowlist for any basename a
// future payload field might carry: if the basename's extension is not in
// the static allowlist, it is replaced with the neutral "<redacted>"
// placeholder rather than transmitted verbatim.
func SanitizeBasename(basename string) string {
	ext := strings.ToLower(filepath.Ext(basename))
	if allowedExtensions[ext] {
		return basename
	}
	return redactedBasename
}
