package richdoc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyDocEncodesContentArray(t *testing.T) {
	data, err := json.Marshal(Doc{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"doc","content":[]}`, string(data))
}

func TestMarshalTipTapShape(t *testing.T) {
	doc := Doc{Content: []Block{
		Heading{Level: 1, Text: "Standup"},
		Bullets("shipped the importer"),
		Tasks("write the changelog"),
	}}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	want := `{"type":"doc","content":[
		{"type":"heading","attrs":{"level":1},"content":[{"type":"text","text":"Standup"}]},
		{"type":"bulletList","content":[{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"shipped the importer"}]}]}]},
		{"type":"taskList","content":[{"type":"taskItem","attrs":{"checked":false},"content":[{"type":"paragraph","content":[{"type":"text","text":"write the changelog"}]}]}]}
	]}`
	assert.JSONEq(t, want, string(data))
}

func TestParseAcceptsEditorOutput(t *testing.T) {
	raw := `{"type":"doc","content":[
		{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Open "},{"type":"text","marks":[{"type":"bold"}],"text":"Questions"}]},
		{"type":"paragraph"},
		{"type":"taskList","content":[{"type":"taskItem","attrs":{"checked":true},"content":[{"type":"paragraph","content":[{"type":"text","text":"done"}]}]}]}
	]}`

	doc, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, doc.Content, 3)
	assert.Equal(t, Heading{Level: 2, Text: "Open Questions"}, doc.Content[0])
	assert.Equal(t, Paragraph{}, doc.Content[1])
	tasks, ok := doc.Content[2].(TaskList)
	require.True(t, ok)
	require.Len(t, tasks.Items, 1)
	assert.True(t, tasks.Items[0].Checked)
	assert.Equal(t, "done", ItemText(tasks.Items[0].Content))
}

func TestParseRejectsUnknownNodes(t *testing.T) {
	cases := map[string]string{
		"root":        `{"type":"paragraph"}`,
		"block":       `{"type":"doc","content":[{"type":"codeBlock"}]}`,
		"inline":      `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"image"}]}]}`,
		"list child":  `{"type":"doc","content":[{"type":"bulletList","content":[{"type":"paragraph"}]}]}`,
		"task child":  `{"type":"doc","content":[{"type":"taskList","content":[{"type":"listItem"}]}]}`,
		"level":       `{"type":"doc","content":[{"type":"heading","attrs":{"level":9}}]}`,
		"not json":    `{"type":"doc",`,
		"wrong shape": `[]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestRoundTripPreservesTree(t *testing.T) {
	doc := Doc{Content: []Block{
		Heading{Level: 1, Text: "Title"},
		Paragraph{Text: "body"},
		BulletList{Items: []ListItem{{Content: []Block{Paragraph{Text: "a"}, Bullets("nested")}}}},
	}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, doc, back)
}

func TestMarkdownAndPlainText(t *testing.T) {
	doc := Doc{Content: []Block{
		Heading{Level: 1, Text: "Trip"},
		Bullets("pack", "book hotel"),
		TaskList{Items: []TaskItem{{Checked: true, Content: []Block{Paragraph{Text: "renew passport"}}}}},
	}}

	assert.Equal(t, "# Trip\n\n- pack\n- book hotel\n\n- [x] renew passport\n", doc.Markdown())
	assert.Equal(t, "Trip\n\npack\n\nbook hotel\n\nrenew passport", doc.PlainText())
}
