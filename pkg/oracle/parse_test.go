package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirectories(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    []DirectoryPick
		flagged int
	}{
		{
			name:   "fenced with bracketed indices",
			answer: "```\n[1] drivers\n[2] fs\n```",
			want: []DirectoryPick{
				{Index: 1, HasIndex: true, Token: "1", Label: "drivers"},
				{Index: 2, HasIndex: true, Token: "2", Label: "fs"},
			},
		},
		{
			name:   "requested format",
			answer: "[1 General setup]\n[4 Processor type and features]\n",
			want: []DirectoryPick{
				{Index: 1, HasIndex: true, Token: "1", Label: "General setup"},
				{Index: 4, HasIndex: true, Token: "4", Label: "Processor type and features"},
			},
		},
		{
			name:   "blank lines dropped",
			answer: "\n\n[3 Networking support]\n   \n",
			want:   []DirectoryPick{{Index: 3, HasIndex: true, Token: "3", Label: "Networking support"}},
		},
		{
			name:   "raw token fallback",
			answer: "[drivers]\n[2. fs]",
			want: []DirectoryPick{
				{Token: "drivers", Label: "drivers"},
				{Index: 2, HasIndex: true, Token: "2", Label: "fs"},
			},
			flagged: 1,
		},
		{
			name:   "language tag on fence",
			answer: "```text\n1 Kernel hacking\n```",
			want:   []DirectoryPick{{Index: 1, HasIndex: true, Token: "1", Label: "Kernel hacking"}},
		},
		{name: "empty", answer: "", want: nil},
		{name: "only fences", answer: "```\n```", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, results := ParseDirectories(tt.answer)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.flagged, CountStatus(results)[LineFlagged])
			assert.Len(t, results, len(tt.want))
		})
	}
}

func TestParseBooleans(t *testing.T) {
	answer := "[cfg_a increase]\n[cfg_b decrease]\n[cfg_c - cannot determine impact without specific context]"
	got, results := ParseBooleans(answer)

	assert.Equal(t, BooleanDecision{"cfg_a": VerdictFavor, "cfg_b": VerdictDisfavor}, got)
	_, ok := got["cfg_c"]
	assert.False(t, ok)

	require.Len(t, results, 3)
	assert.Equal(t, LineAccepted, results[0].Status)
	assert.Equal(t, LineAccepted, results[1].Status)
	assert.Equal(t, LineSkipped, results[2].Status)
	assert.Equal(t, 3, results[2].Line)
}

func TestParseBooleansMalformedLines(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   BooleanDecision
		status LineStatus
	}{
		{"unbracketed pair accepted", "SMP increase", BooleanDecision{"SMP": VerdictFavor}, LineAccepted},
		{"case insensitive verdict", "[SMP Decrease]", BooleanDecision{"SMP": VerdictDisfavor}, LineAccepted},
		{"missing close bracket", "[SMP increase", BooleanDecision{}, LineFlagged},
		{"missing open bracket", "SMP increase]", BooleanDecision{}, LineFlagged},
		{"unknown verdict", "[SMP maybe]", BooleanDecision{}, LineFlagged},
		{"single token", "[SMP]", BooleanDecision{}, LineSkipped},
		{"three tokens", "[SMP increase a]", BooleanDecision{}, LineSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, results := ParseBooleans(tt.line)
			assert.Equal(t, tt.want, got)
			require.Len(t, results, 1)
			assert.Equal(t, tt.status, results[0].Status)
			if tt.status != LineAccepted {
				assert.NotEmpty(t, results[0].Reason)
			}
		})
	}
}

func TestParseBooleansOneBadLineKeepsTheRest(t *testing.T) {
	got, results := ParseBooleans("```\n[A increase]\n[B sideways]\n\n[C decrease]\n```")
	assert.Equal(t, BooleanDecision{"A": VerdictFavor, "C": VerdictDisfavor}, got)
	counts := CountStatus(results)
	assert.Equal(t, 2, counts[LineAccepted])
	assert.Equal(t, 1, counts[LineFlagged])
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		answer string
		want   string
		status LineStatus
	}{
		{"[SLUB]\n", "SLUB", LineAccepted},
		{"\n\n[SLAB]", "SLAB", LineAccepted},
		{"```\nHZ_1000\n```", "HZ_1000", LineAccepted},
		{"PREEMPT_NONE", "PREEMPT_NONE", LineAccepted},
		{"[ spaced name ]", " spaced name ", LineAccepted},
		{"[]", "", LineSkipped},
		{"\n", "", LineSkipped},
	}
	for _, tt := range tests {
		got, result := ParseChoice(tt.answer)
		assert.Equal(t, tt.want, got, "answer %q", tt.answer)
		assert.Equal(t, tt.status, result.Status, "answer %q", tt.answer)
	}
}

func TestParseValues(t *testing.T) {
	got, results := ParseValues("Warn for stack frames larger than (FRAME_WARN)  (512)")
	require.Equal(t, []ValuePair{{Label: "Warn for stack frames larger than (FRAME_WARN)", Value: "512"}}, got)
	require.Len(t, results, 1)
	assert.Equal(t, LineAccepted, results[0].Status)
}

func TestParseValuesMultipleLines(t *testing.T) {
	answer := "'maximum CPU number(1=>2 2=>4)  (cpunum) (2)\n" +
		"[Timer frequency] <on>\n" +
		"Some explanation the model was told not to give\n" +
		"[Kernel log buffer size] [17]\n"
	got, results := ParseValues(answer)

	assert.Equal(t, []ValuePair{
		{Label: "'maximum CPU number(1=>2 2=>4)  (cpunum)", Value: "2"},
		{Label: "[Timer frequency]", Value: "on"},
		{Label: "[Kernel log buffer size]", Value: "17"},
	}, got)

	counts := CountStatus(results)
	assert.Equal(t, 3, counts[LineAccepted])
	assert.Equal(t, 1, counts[LineSkipped])
}

func TestParseValuesNoMatches(t *testing.T) {
	got, results := ParseValues("I cannot help with that.")
	assert.Empty(t, got)
	require.Len(t, results, 1)
	assert.Equal(t, LineSkipped, results[0].Status)

	got, results = ParseValues("")
	assert.Empty(t, got)
	assert.Empty(t, results)
}

func TestParsersAreTotal(t *testing.T) {
	inputs := []string{"", "[", "]", "```", "[[[]]]", "\x00\xff", "[ ]\n[\n]", "(512)", "```\n```\n```"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			ParseDirectories(in)
			ParseBooleans(in)
			ParseChoice(in)
			ParseValues(in)
		}, "input %q", in)
	}
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "accepted", LineAccepted.String())
	assert.Equal(t, "skipped", LineSkipped.String())
	assert.Equal(t, "flagged", LineFlagged.String())
	assert.Equal(t, "favor", VerdictFavor.String())
	assert.Equal(t, "disfavor", VerdictDisfavor.String())
	assert.Equal(t, "undetermined", VerdictUndetermined.String())
}

func TestParseValuesSignedAndSplitLines(t *testing.T) {
	got, _ := ParseValues("[Nice level] (-5)\n[Timer] (-->)\n")
	assert.Equal(t, []ValuePair{
		{Label: "[Nice level]", Value: "-5"},
		{Label: "[Timer]", Value: "-->"},
	}, got)

	// a value alone on the next line still belongs to the label above it
	got, results := ParseValues("FOO\n(512)")
	assert.Equal(t, []ValuePair{{Label: "FOO", Value: "512"}}, got)
	require.Len(t, results, 1)
	assert.Equal(t, LineAccepted, results[0].Status)
	assert.Equal(t, 1, results[0].Line)
}
