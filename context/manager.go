package context

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how Manager.GetActiveContext assembles its view.
type Strategy string

const (
	StrategyFull   Strategy = "full"
	StrategyPruned Strategy = "pruned"
	StrategyRecent Strategy = "recent"
)

// Turn is a sealed user/assistant exchange. Assistant is empty while
// the turn is still open (after AddUserMessage, before
// UpdateLastAssistant).
type Turn struct {
	User        Message   `json:"user"`
	Assistant   Message   `json:"assistant"`
	Sealed      bool      `json:"sealed"`
	OpenedAtISO string    `json:"opened_at"`
	openedAt    time.Time `json:"-"`
}

// Summarizer is the external collaborator invoked by Manager.Compress:
// given a trajectory of goals and decisions, it returns a Markdown
// summary document (see Snapshot's persisted "summary" field).
type Summarizer interface {
	Summarize(trajectory []TrajectoryEntry) (string, error)
}

// TrajectoryEntry is one step of the "trajectory" passed to the
// summarizer: a user message becomes a goal, an assistant message
// becomes a decision.
type TrajectoryEntry struct {
	Type    string `json:"type"` // "goal" | "decision"
	Content string `json:"content,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Snapshot is the full round-trippable state of a Manager.
type Snapshot struct {
	SystemPrompts []string      `json:"system_prompts"`
	Turns         []Turn        `json:"turns"`
	TurnCount     int           `json:"turn_count"`
	Summary       string        `json:"summary,omitempty"`
	PrunerConfig  PruningConfig `json:"pruner_config"`
}

// Manager is the stateful context window wrapper used by the agent
// loop: it owns the turn list exclusively, delegating pruning decisions
// to a Pruner.
type Manager struct {
	systemPrompts []string
	turns         []Turn
	openTurn      *Turn
	summary       string
	pruner        *Pruner
	summarizer    Summarizer
}

// NewManager builds a Manager over the given Pruner. summarizer may be
// nil; Compress then always falls back to the extractive summary.
func NewManager(pruner *Pruner, summarizer Summarizer) *Manager {
	if pruner == nil {
		pruner = NewPruner(PruningConfig{})
	}
	return &Manager{pruner: pruner, summarizer: summarizer}
}

// AddSystemMessage appends to the persistent system-prompts list that
// GetSystemPrompt joins.
func (m *Manager) AddSystemMessage(content string) {
	m.systemPrompts = append(m.systemPrompts, content)
}

// AddUserMessage opens a new turn with an empty assistant slot.
func (m *Manager) AddUserMessage(content string) {
	t := Turn{User: Message{Role: "user", Content: content}, openedAt: timeNow()}
	m.openTurn = &t
}

// ErrNoOpenTurn is returned by UpdateLastAssistant when no turn is open.
type noOpenTurnError struct{}

func (noOpenTurnError) Error() string { return "context: no open turn to close" }

// ErrNoOpenTurn is returned when UpdateLastAssistant is called with no
// preceding AddUserMessage.
var ErrNoOpenTurn error = noOpenTurnError{}

// UpdateLastAssistant closes the currently open turn, sealing it into
// the turn list. Fails if no turn is open.
func (m *Manager) UpdateLastAssistant(content string) error {
	if m.openTurn == nil {
		return ErrNoOpenTurn
	}
	m.openTurn.Assistant = Message{Role: "assistant", Content: content}
	m.openTurn.Sealed = true
	m.openTurn.OpenedAtISO = m.openTurn.openedAt.UTC().Format(time.RFC3339)
	m.turns = append(m.turns, *m.openTurn)
	m.openTurn = nil
	return nil
}

// GetSystemPrompt joins the persistent system prompts for presentation
// to the graph runtime.
func (m *Manager) GetSystemPrompt() string {
	return strings.Join(m.systemPrompts, "\n\n")
}

// GetActiveContext returns the interleaved user/assistant message list,
// never including system prompts.
func (m *Manager) GetActiveContext(strategy Strategy) []Message {
	full := m.flatten(m.turns)

	switch strategy {
	case StrategyRecent:
		keep := m.pruner.config.RetainedTurns * 2
		if keep > len(full) {
			keep = len(full)
		}
		return full[len(full)-keep:]
	case StrategyPruned:
		return m.pruner.Prune(full)
	default: // StrategyFull
		return full
	}
}

func (m *Manager) flatten(turns []Turn) []Message {
	out := make([]Message, 0, len(turns)*2)
	for _, t := range turns {
		out = append(out, t.User, t.Assistant)
	}
	return out
}

// Segment splits state into (system, to_summarize, recent) slices
// suitable for summarization: every turn but the most recent
// RetainedTurns goes into to_summarize.
func (m *Manager) Segment() (system []string, toSummarize []Turn, recent []Turn) {
	keep := m.pruner.config.RetainedTurns
	if keep > len(m.turns) {
		keep = len(m.turns)
	}
	splitAt := len(m.turns) - keep
	return m.systemPrompts, m.turns[:splitAt], m.turns[splitAt:]
}

// Compress runs the semantic compression flow: segment the turn list;
// if there is nothing to summarize, return false. Otherwise format the
// old turns as a trajectory, invoke the external summarizer, and on
// success replace the turn list with a new "[Context Summary]" system
// message followed by the reconstructed recent turns. On summarizer
// failure, fall back to an extractive summary of up to 10 truncated
// lines. The new summary replaces any prior one rather than
// accumulating.
func (m *Manager) Compress() bool {
	_, toSummarize, recent := m.Segment()
	if len(toSummarize) == 0 {
		return false
	}

	trajectory := make([]TrajectoryEntry, 0, len(toSummarize)*2)
	for _, t := range toSummarize {
		trajectory = append(trajectory, TrajectoryEntry{Type: "goal", Content: t.User.Content})
		if t.Sealed {
			trajectory = append(trajectory, TrajectoryEntry{Type: "decision", Content: t.Assistant.Content})
		}
	}

	var summary string
	if m.summarizer != nil {
		if s, err := m.summarizer.Summarize(trajectory); err == nil {
			summary = s
		}
	}
	if summary == "" {
		summary = extractiveSummary(toSummarize)
	}

	m.summary = summary
	prompts := make([]string, 0, len(m.systemPrompts)+1)
	for _, p := range m.systemPrompts {
		if !strings.HasPrefix(p, "[Context Summary]\n") {
			prompts = append(prompts, p)
		}
	}
	m.systemPrompts = append(prompts, fmt.Sprintf("[Context Summary]\n%s", summary))
	m.turns = recent
	return true
}

func extractiveSummary(turns []Turn) string {
	var lines []string
	for _, t := range turns {
		lines = append(lines, truncatedLine("user", t.User.Content))
		if t.Sealed {
			lines = append(lines, truncatedLine("assistant", t.Assistant.Content))
		}
		if len(lines) >= 10 {
			break
		}
	}
	if len(lines) > 10 {
		lines = lines[:10]
	}
	return strings.Join(lines, "\n")
}

func truncatedLine(role, content string) string {
	const maxLen = 200
	if len(content) > maxLen {
		content = content[:maxLen]
	}
	return fmt.Sprintf("[%s]: %s", role, content)
}

// TakeSnapshot round-trips the full manager state.
func (m *Manager) TakeSnapshot() Snapshot {
	return Snapshot{
		SystemPrompts: append([]string(nil), m.systemPrompts...),
		Turns:         append([]Turn(nil), m.turns...),
		TurnCount:     len(m.turns),
		Summary:       m.summary,
		PrunerConfig:  m.pruner.config,
	}
}

// LoadSnapshot restores a Manager to a previously captured Snapshot.
func LoadSnapshot(snap Snapshot, summarizer Summarizer) *Manager {
	m := &Manager{
		systemPrompts: append([]string(nil), snap.SystemPrompts...),
		turns:         append([]Turn(nil), snap.Turns...),
		summary:       snap.Summary,
		pruner:        NewPruner(snap.PrunerConfig),
		summarizer:    summarizer,
	}
	return m
}

// timeNow is a seam for tests; production code always uses time.Now.
var timeNow = time.Now
