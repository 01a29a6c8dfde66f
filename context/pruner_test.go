package context

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokensFallsBackWhenTextIsEmpty(t *testing.T) {
	p := NewPruner(PruningConfig{})
	assert.Equal(t, 0, p.CountTokens(""))
	assert.Greater(t, p.CountTokens("hello world"), 0)
}

func TestCountMessagesIncludesSurcharge(t *testing.T) {
	p := NewPruner(PruningConfig{})
	messages := []Message{{Role: "user", Content: "hi"}}
	assert.Equal(t, p.CountTokens("hi")+perMessageSurcharge, p.CountMessages(messages))
}

func TestPruneKeepsSystemAndRecent(t *testing.T) {
	p := NewPruner(PruningConfig{MaxTokens: 20, RetainedTurns: 1})
	messages := []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: strings.Repeat("a", 200)},
		{Role: "assistant", Content: strings.Repeat("b", 200)},
		{Role: "user", Content: "recent question"},
		{Role: "assistant", Content: "recent answer"},
	}
	pruned := p.Prune(messages)
	assert.Equal(t, "sys", pruned[0].Content)
	assert.Contains(t, pruned[len(pruned)-1].Content, "recent answer")
}

func TestPruneReturnsUnchangedWhenUnderBudget(t *testing.T) {
	p := NewPruner(PruningConfig{MaxTokens: 1_000_000})
	messages := []Message{{Role: "user", Content: "hi"}}
	assert.Equal(t, messages, p.Prune(messages))
}

func TestCompressMessagesTruncatesArchiveToolOutputs(t *testing.T) {
	p := NewPruner(PruningConfig{RetainedTurns: 1, MaxToolOutput: 10})
	longOutput := strings.Repeat("x", 50)
	messages := []Message{
		{Role: "system", Content: "sys"},
		{Role: "tool", Content: longOutput},
		{Role: "user", Content: "working user"},
		{Role: "assistant", Content: "working assistant"},
	}
	out := p.CompressMessages(messages)

	assert.Equal(t, "sys", out[0].Content)
	assert.Contains(t, out[1].Content, "[SYSTEM NOTE: Output truncated. 40 chars hidden.]")
	assert.Equal(t, "working user", out[2].Content)
	assert.Equal(t, "working assistant", out[3].Content)
}

func TestCompressMessagesPreservesNonToolArchive(t *testing.T) {
	p := NewPruner(PruningConfig{RetainedTurns: 1})
	messages := []Message{
		{Role: "user", Content: "old question"},
		{Role: "assistant", Content: "old answer"},
		{Role: "user", Content: "new question"},
		{Role: "assistant", Content: "new answer"},
	}
	out := p.CompressMessages(messages)
	assert.Equal(t, "old question", out[0].Content)
	assert.Equal(t, "old answer", out[1].Content)
}

func TestCompressMessagesNoopWithinSafetyZone(t *testing.T) {
	p := NewPruner(PruningConfig{RetainedTurns: 4})
	messages := []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}
	assert.Equal(t, messages, p.CompressMessages(messages))
}

func TestTruncateMiddleKeepsHeadAndTail(t *testing.T) {
	p := NewPruner(PruningConfig{})
	text := strings.Repeat("a", 1000)
	out := p.TruncateMiddle(text, 10)
	assert.Contains(t, out, "[... truncated ...]")
	assert.True(t, strings.HasPrefix(out, "a"))
	assert.True(t, strings.HasSuffix(out, "a"))
}

func TestTruncateMiddleNoopWhenUnderBudget(t *testing.T) {
	p := NewPruner(PruningConfig{})
	assert.Equal(t, "short", p.TruncateMiddle("short", 1_000_000))
}

func TestPruneForRetryIncludesLessonMessage(t *testing.T) {
	p := NewPruner(PruningConfig{MaxTokens: 1_000_000, RetainedTurns: 4})
	messages := []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
	}
	out := p.PruneForRetry(messages, "boom", 1_000_000)

	assert.Equal(t, "sys", out[0].Content)
	assert.Contains(t, out[1].Content, "[AUTO-FIX RECOVERY]")
	assert.Contains(t, out[1].Content, "Previous attempt failed: boom")
	assert.Equal(t, "user", out[1].Role)
}

func TestPruneForRetryFallsBackToMiddleTruncation(t *testing.T) {
	p := NewPruner(PruningConfig{RetainedTurns: 0, MaxToolOutput: 10})
	var messages []Message
	for i := 0; i < 20; i++ {
		messages = append(messages, Message{Role: "user", Content: strings.Repeat("z", 500)})
	}
	out := p.PruneForRetry(messages, "boom", 50)

	last := out[len(out)-1]
	assert.Equal(t, "compressed", last.Role)
	assert.Contains(t, last.Content, "[... truncated ...]")
}
