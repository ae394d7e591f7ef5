package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEveryStage(t *testing.T) {
	in := PromptInput{
		Knowledge: "SMP: symmetric multi-processing",
		Target:    "the System Call score in Unixbench",
		Content:   "1 General setup\n2 Processor type and features\n",
	}
	for _, stage := range Stages() {
		t.Run(string(stage), func(t *testing.T) {
			out, err := Render(stage, in)
			require.NoError(t, err)
			assert.Contains(t, out, in.Knowledge)
			assert.Contains(t, out, in.Target)
			assert.Contains(t, out, in.Content)
			assert.Contains(t, out, BootSafety)
		})
	}
}

func TestRenderStageFormats(t *testing.T) {
	in := PromptInput{Target: "t", Content: "c"}
	tests := map[Stage]string{
		StageDirectory: "DIRECTORIES = c",
		StageBoolean:   "[config_name_1 increase]",
		StageChoice:    "[config_name]",
		StageValue:     "[option name] (recommended value)",
	}
	for stage, want := range tests {
		out, err := Render(stage, in)
		require.NoError(t, err)
		assert.Contains(t, out, want, stage)
	}

	value, err := Render(StageValue, PromptInput{Knowledge: "FRAME_WARN: warn above", Target: "t"})
	require.NoError(t, err)
	assert.Contains(t, value, "Here is value options information: FRAME_WARN: warn above\n")
	assert.Contains(t, value, "do not add units")
	assert.Contains(t, value, "reset it to the default value")
}

func TestRenderUnknownStage(t *testing.T) {
	_, err := Render(Stage("bogus"), PromptInput{})
	assert.Error(t, err)
}

func TestRenderDoesNotEscape(t *testing.T) {
	out, err := Render(StageChoice, PromptInput{Content: "<CONFIG_A> & \"B\""})
	require.NoError(t, err)
	assert.Contains(t, out, "<CONFIG_A> & \"B\"")
}
