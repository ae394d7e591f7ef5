package kconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSampleDump(t *testing.T) {
	tree, err := Load("testdata/sample.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Kconfig", tree.Source)
	assert.Equal(t, 13, tree.Len())

	root := tree.Node(tree.Root())
	require.NotNil(t, root)
	assert.Equal(t, KindMenu, root.Kind)
	assert.Equal(t, "Linux/riscv Kernel Configuration", root.Prompt)

	top := tree.Children(tree.Root())
	require.Len(t, top, 2)
	assert.Equal(t, "General setup", tree.Node(top[0]).Prompt)
	assert.Equal(t, "Kernel hacking", tree.Node(top[1]).Prompt)

	general := tree.Children(top[0])
	require.Len(t, general, 4)
	assert.Equal(t, "SWAP", tree.Node(general[0]).Name)
	assert.Equal(t, KindComment, tree.Node(general[1]).Kind)

	hidden := tree.Node(general[3])
	assert.False(t, hidden.HasPrompt, "HAVE_ARCH_AUDITSYSCALL has no prompt key")
	assert.Equal(t, "", hidden.Prompt)
}

func TestLoadParsesRangesAndTypes(t *testing.T) {
	tree, err := Load("testdata/sample.yaml")
	require.NoError(t, err)

	id, ok := tree.FindSymbol("FRAME_WARN")
	require.True(t, ok)
	n := tree.Node(id)
	assert.Equal(t, TypeInt, n.Type)
	require.NotNil(t, n.Range)
	assert.Equal(t, Range{Min: 0, Max: 8192}, *n.Range)
	assert.True(t, n.IsNumeric())
	assert.Contains(t, n.Help, "stack frames")

	id, ok = tree.FindSymbol("PAGE_OFFSET")
	require.True(t, ok)
	assert.Equal(t, TypeHex, tree.Node(id).Type)
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"source":"json","root":{"kind":"menu","prompt":"Main","children":[
		{"kind":"config","name":"SMP","type":"bool","prompt":"Symmetric multi-processing support"}]}}`

	tree, err := Decode(strings.NewReader(doc), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Len())

	children := tree.Children(tree.Root())
	require.Len(t, children, 1)
	smp := tree.Node(children[0])
	assert.Equal(t, KindSymbol, smp.Kind)
	assert.True(t, smp.IsBoolean())
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown kind", "root:\n  kind: widget\n"},
		{"unknown type", "root:\n  kind: symbol\n  type: float\n"},
		{"inverted range", "root:\n  kind: symbol\n  type: int\n  range: {min: '10', max: '1'}\n"},
		{"range on bool", "root:\n  kind: symbol\n  type: bool\n  range: {min: '0', max: '1'}\n"},
		{"bad nested child", "root:\n  kind: menu\n  children:\n    - kind: nope\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), FormatYAML)
			assert.Error(t, err)
		})
	}
}

func TestTreeAddSingleRoot(t *testing.T) {
	tree := NewTree("test")
	root, err := tree.Add(NoNode, Node{Kind: KindMenu, Prompt: "root", HasPrompt: true})
	require.NoError(t, err)

	_, err = tree.Add(NoNode, Node{Kind: KindMenu})
	assert.Error(t, err, "second root must be rejected")

	_, err = tree.Add(NodeID(42), Node{Kind: KindSymbol})
	assert.Error(t, err, "unknown parent must be rejected")

	a, _ := tree.Add(root, Node{Kind: KindSymbol, Name: "A"})
	b, _ := tree.Add(root, Node{Kind: KindSymbol, Name: "B"})
	c, _ := tree.Add(root, Node{Kind: KindSymbol, Name: "C"})
	assert.Equal(t, []NodeID{a, b, c}, tree.Children(root))
	assert.Nil(t, tree.Children(NodeID(99)))
	assert.Nil(t, tree.Node(NodeID(-5)))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		node Node
		want string
	}{
		{Node{Kind: KindMenu, Prompt: "Networking support", Name: "NET"}, "Networking support"},
		{Node{Kind: KindSymbol, Prompt: "Swap", Name: "SWAP"}, "SWAP"},
		{Node{Kind: KindChoice, Prompt: "Preemption Model"}, "Preemption Model"},
		{Node{Kind: KindComment, Prompt: "*** note ***"}, ""},
	}
	for _, tt := range tests {
		if got := tt.node.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%v) = %q, want %q", tt.node.Kind, got, tt.want)
		}
	}
}

func TestPathSkipsPromptlessNodes(t *testing.T) {
	tree, err := Load("testdata/sample.yaml")
	require.NoError(t, err)

	id, ok := tree.FindSymbol("AUDITSYSCALL")
	require.True(t, ok)
	assert.Equal(t,
		[]string{"Linux/riscv Kernel Configuration", "General setup", "Hidden child"},
		tree.Path(id))
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"prompted", Node{Kind: KindSymbol, Name: "A", Prompt: "a", HasPrompt: true}, true},
		{"absent", Node{Kind: KindSymbol, Name: "A"}, false},
		{"empty", Node{Kind: KindMenu, HasPrompt: true}, false},
		{"blank", Node{Kind: KindMenu, Prompt: "  ", HasPrompt: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.node.Visible())
		})
	}
}
