// Package context manages the agent's conversational context window: a
// stateless pruner for token-budget arithmetic, and a stateful manager
// wrapping a turn list with segmentation, compression, and snapshotting.
package context

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Message is the wire shape shared with the graph runtime and the
// checkpoint payload: a role and its content. It carries no tool
// metadata; CompressMessages recognizes tool output by Role alone.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const perMessageSurcharge = 4

// PruningConfig controls every Pruner operation. Zero values are
// replaced with the package defaults in NewPruner.
type PruningConfig struct {
	MaxTokens     int // total context budget
	RetainedTurns int // window_size: turn pairs kept intact
	MaxToolOutput int // chars before an archive-zone tool output is rewritten
}

var defaultConfig = PruningConfig{MaxTokens: 8000, RetainedTurns: 4, MaxToolOutput: 500}

// Pruner is a pure, stateless (configuration-only) context trimmer.
// A tokenizer failure downgrades to ceiling estimation; it never errors.
type Pruner struct {
	config  PruningConfig
	encoder *tiktoken.Tiktoken
}

// NewPruner builds a Pruner, filling any zero fields from the
// package defaults (8000 tokens, 4 retained turns, 500 char
// tool-output cap).
func NewPruner(config PruningConfig) *Pruner {
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultConfig.MaxTokens
	}
	if config.RetainedTurns == 0 {
		config.RetainedTurns = defaultConfig.RetainedTurns
	}
	if config.MaxToolOutput == 0 {
		config.MaxToolOutput = defaultConfig.MaxToolOutput
	}
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Pruner{config: config, encoder: enc}
}

// Config returns the Pruner's effective (post-default-fill) configuration.
func (p *Pruner) Config() PruningConfig { return p.config }

// CountTokens uses a BPE encoding when available, otherwise a ceiling
// estimate of len(text)/4 characters per token.
func (p *Pruner) CountTokens(text string) int {
	if p.encoder != nil {
		return len(p.encoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// CountMessages sums per-message token counts plus a small fixed
// surcharge per message for its role marker.
func (p *Pruner) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += p.CountTokens(m.Content) + perMessageSurcharge
	}
	return total
}

// Prune returns a prefix+suffix of messages that fits MaxTokens: every
// system message, plus the most recent N non-system messages such that
// the total stays under budget (N >= 1).
func (p *Pruner) Prune(messages []Message) []Message {
	if p.CountMessages(messages) <= p.config.MaxTokens {
		return messages
	}

	var system, other []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	budget := p.config.MaxTokens - p.CountMessages(system)
	keepCount, used := 0, 0
	for i := len(other) - 1; i >= 0; i-- {
		cost := p.CountTokens(other[i].Content) + perMessageSurcharge
		if keepCount >= 1 && used+cost > budget {
			break
		}
		used += cost
		keepCount++
	}
	kept := other[len(other)-keepCount:]

	out := make([]Message, 0, len(system)+len(kept))
	out = append(out, system...)
	out = append(out, kept...)
	return out
}

// CompressMessages applies the "safety zone" strategy: system messages
// and the most recent RetainedTurns*2 non-system messages ("working
// zone") survive verbatim; tool/function outputs in the remaining
// "archive zone" longer than MaxToolOutput are rewritten to a preview
// plus a truncation note. Non-tool archive messages pass through
// unchanged.
func (p *Pruner) CompressMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}

	var system, other []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	safeCount := p.config.RetainedTurns * 2
	if len(other) <= safeCount {
		return messages
	}

	archive := other[:len(other)-safeCount]
	working := other[len(other)-safeCount:]

	processed := make([]Message, len(archive))
	for i, m := range archive {
		processed[i] = m
		if (m.Role == "tool" || m.Role == "function") && len(m.Content) > p.config.MaxToolOutput {
			preview := m.Content[:p.config.MaxToolOutput]
			removed := len(m.Content) - p.config.MaxToolOutput
			processed[i].Content = fmt.Sprintf("%s\n[SYSTEM NOTE: Output truncated. %d chars hidden.]", preview, removed)
		}
	}

	out := make([]Message, 0, len(system)+len(processed)+len(working))
	out = append(out, system...)
	out = append(out, processed...)
	out = append(out, working...)
	return out
}

const truncationMarker = "\n\n[... truncated ...]\n\n"

// TruncateMiddle keeps about 40% of maxTokens worth of text from the
// head and about 60% from the tail (token shares converted to character
// counts in proportion to text's length, not a flat char split), joined
// by a literal marker; the middle is dropped. Returns text unchanged if
// it already fits.
func (p *Pruner) TruncateMiddle(text string, maxTokens int) string {
	tokens := p.CountTokens(text)
	if tokens <= maxTokens {
		return text
	}
	if maxTokens <= 0 {
		return truncationMarker
	}

	chars := []rune(text)
	totalChars := len(chars)
	keepFirstTokens := maxTokens * 40 / 100
	splitPoint := totalChars * keepFirstTokens / tokens
	if splitPoint < 0 {
		splitPoint = 0
	}
	if splitPoint > totalChars {
		splitPoint = totalChars
	}
	keepLastTokens := maxTokens - keepFirstTokens
	tailStart := totalChars - totalChars*keepLastTokens/tokens
	if tailStart < splitPoint {
		tailStart = splitPoint
	}
	return string(chars[:splitPoint]) + truncationMarker + string(chars[tailStart:])
}

// PruneForRetry builds a bounded retry context for the auto-fix loop:
// system messages, a single "lesson learned" user message describing
// the failure, then CompressMessages applied to the rest. If still over
// budget, the compressed archive is flattened and middle-truncated into
// one {role: compressed} message.
func (p *Pruner) PruneForRetry(messages []Message, errMsg string, maxTokens int) []Message {
	var system, other []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	lesson := Message{Role: "user", Content: fmt.Sprintf(
		"[AUTO-FIX RECOVERY]\nPrevious attempt failed: %s\nWe have rolled back to a previous checkpoint.\nPlease analyze the error and try a different approach.",
		errMsg,
	)}

	compressed := p.CompressMessages(other)

	all := make([]Message, 0, len(system)+1+len(compressed))
	all = append(all, system...)
	all = append(all, lesson)
	all = append(all, compressed...)

	if p.CountMessages(all) <= maxTokens {
		return all
	}

	var contents []string
	for _, m := range compressed {
		contents = append(contents, m.Content)
	}
	budget := maxTokens - p.CountMessages(system) - p.CountTokens(lesson.Content) - 500
	truncated := p.TruncateMiddle(strings.Join(contents, "\n"), budget)

	out := make([]Message, 0, len(system)+2)
	out = append(out, system...)
	out = append(out, lesson)
	out = append(out, Message{Role: "compressed", Content: truncated})
	return out
}
