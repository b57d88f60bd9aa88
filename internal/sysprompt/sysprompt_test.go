package sysprompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForOS(t *testing.T) {
	linux := ForOS(OSLinux)
	assert.True(t, strings.HasPrefix(linux, SystemPromptBase))
	assert.Contains(t, linux, "bash")
	assert.Equal(t, linux, ForOS(""))

	for _, os := range []string{OSWindows, OSMacOS} {
		p := ForOS(os)
		assert.True(t, strings.HasPrefix(p, SystemPromptBase))
		assert.Contains(t, p, "GUI only")
		assert.NotContains(t, p, "str_replace_based_edit_tool")
	}
}

func TestIsLinux(t *testing.T) {
	assert.True(t, IsLinux(""))
	assert.True(t, IsLinux("Linux"))
	assert.False(t, IsLinux(OSWindows))
	assert.False(t, IsLinux(OSMacOS))
}

func TestInterpolatePlaceholders(t *testing.T) {
	got := InterpolatePlaceholders("{a} and {b} and {a}", map[string]string{"a": "x", "b": "{a}"})
	assert.Equal(t, "x and {a} and x", got)
	assert.Equal(t, "hello {missing}", InterpolatePlaceholders("hello {missing}", nil))
	assert.Equal(t, "goal: ship it", InterpolatePlaceholders("goal: {goal}", map[string]string{"goal": "ship it"}))
}

func TestBuildUserPrompt(t *testing.T) {
	t.Run("goal only", func(t *testing.T) {
		p := BuildUserPrompt("open firefox", nil, false)
		assert.Contains(t, p, "<task>\nopen firefox\n</task>")
		assert.NotContains(t, p, "{context}")
		assert.NotContains(t, p, "Additional context")
	})

	t.Run("goal with context", func(t *testing.T) {
		p := BuildUserPrompt("sign up", map[string]any{"email": "a@b.c"}, false)
		assert.Contains(t, p, "\nAdditional context:\n{\n  \"email\": \"a@b.c\"\n}")
		assert.Contains(t, p, "<task>\nsign up\n</task>")
	})

	t.Run("document without context", func(t *testing.T) {
		p := BuildUserPrompt("read this", nil, true)
		assert.Contains(t, p, "Execute the following task")
	})

	t.Run("context and document", func(t *testing.T) {
		p := BuildUserPrompt("ignored", map[string]any{"firstName": "John"}, true)
		assert.Contains(t, p, "<extracted_data>\n{\n  \"firstName\": \"John\"\n}\n</extracted_data>")
		assert.NotContains(t, p, "ignored")
	})
}

func TestBuildUserPrompt_GoalWithPlaceholderText(t *testing.T) {
	p := BuildUserPrompt("type {context} literally", map[string]any{"k": "v"}, false)
	assert.Contains(t, p, "<task>\ntype {context} literally\n</task>")
	assert.Contains(t, p, "Additional context")
}

func TestTaskPrompt(t *testing.T) {
	p := TaskPrompt("check email")
	assert.Contains(t, p, "check email")
	assert.NotContains(t, p, "{goal}")
	assert.NotContains(t, p, "{context}")
}
