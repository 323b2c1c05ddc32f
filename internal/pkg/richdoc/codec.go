package richdoc

import (
	"encoding/json"
	"fmt"
	"strings"
)

type wireAttrs struct {
	Level   *int  `json:"level,omitempty"`
	Checked *bool `json:"checked,omitempty"`
}

type wireNode struct {
	Type    string     `json:"type"`
	Attrs   *wireAttrs `json:"attrs,omitempty"`
	Content []wireNode `json:"content,omitempty"`
	Text    string     `json:"text,omitempty"`
}

type wireDoc struct {
	Type    string     `json:"type"`
	Content []wireNode `json:"content"`
}

// MarshalJSON encodes the document in TipTap JSON. The root always carries a
// content array, even when empty.
func (d Doc) MarshalJSON() ([]byte, error) {
	out := wireDoc{Type: "doc", Content: encodeBlocks(d.Content)}
	return json.Marshal(out)
}

// UnmarshalJSON decodes TipTap JSON, rejecting node kinds outside the closed set.
func (d *Doc) UnmarshalJSON(data []byte) error {
	var raw wireNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "doc" {
		return fmt.Errorf("richdoc: root node must be doc, got %q", raw.Type)
	}
	blocks, err := decodeBlocks(raw.Content)
	if err != nil {
		return err
	}
	d.Content = blocks
	return nil
}

// Parse decodes a TipTap JSON document.
func Parse(data []byte) (Doc, error) {
	var d Doc
	if err := json.Unmarshal(data, &d); err != nil {
		return Doc{}, err
	}
	return d, nil
}

func encodeBlocks(blocks []Block) []wireNode {
	nodes := make([]wireNode, 0, len(blocks))
	for _, b := range blocks {
		nodes = append(nodes, encodeBlock(b))
	}
	return nodes
}

func encodeBlock(b Block) wireNode {
	switch n := b.(type) {
	case Heading:
		level := n.Level
		return wireNode{Type: "heading", Attrs: &wireAttrs{Level: &level}, Content: inline(n.Text)}
	case Paragraph:
		return wireNode{Type: "paragraph", Content: inline(n.Text)}
	case BulletList:
		items := make([]wireNode, 0, len(n.Items))
		for _, item := range n.Items {
			items = append(items, wireNode{Type: "listItem", Content: encodeBlocks(item.Content)})
		}
		return wireNode{Type: "bulletList", Content: items}
	case TaskList:
		items := make([]wireNode, 0, len(n.Items))
		for _, item := range n.Items {
			checked := item.Checked
			items = append(items, wireNode{
				Type:    "taskItem",
				Attrs:   &wireAttrs{Checked: &checked},
				Content: encodeBlocks(item.Content),
			})
		}
		return wireNode{Type: "taskList", Content: items}
	}
	return wireNode{Type: "paragraph"}
}

// inline returns the text node list for a block; TipTap forbids empty text nodes.
func inline(text string) []wireNode {
	if text == "" {
		return nil
	}
	return []wireNode{{Type: "text", Text: text}}
}

func decodeBlocks(nodes []wireNode) ([]Block, error) {
	blocks := make([]Block, 0, len(nodes))
	for _, node := range nodes {
		b, err := decodeBlock(node)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func decodeBlock(node wireNode) (Block, error) {
	switch node.Type {
	case "heading":
		level := 1
		if node.Attrs != nil && node.Attrs.Level != nil {
			level = *node.Attrs.Level
		}
		if level < 1 || level > 6 {
			return nil, fmt.Errorf("richdoc: heading level %d out of range", level)
		}
		text, err := decodeInline(node.Content)
		if err != nil {
			return nil, err
		}
		return Heading{Level: level, Text: text}, nil
	case "paragraph":
		text, err := decodeInline(node.Content)
		if err != nil {
			return nil, err
		}
		return Paragraph{Text: text}, nil
	case "bulletList":
		list := BulletList{Items: make([]ListItem, 0, len(node.Content))}
		for _, child := range node.Content {
			if child.Type != "listItem" {
				return nil, fmt.Errorf("richdoc: bulletList child must be listItem, got %q", child.Type)
			}
			content, err := decodeBlocks(child.Content)
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, ListItem{Content: content})
		}
		return list, nil
	case "taskList":
		list := TaskList{Items: make([]TaskItem, 0, len(node.Content))}
		for _, child := range node.Content {
			if child.Type != "taskItem" {
				return nil, fmt.Errorf("richdoc: taskList child must be taskItem, got %q", child.Type)
			}
			content, err := decodeBlocks(child.Content)
			if err != nil {
				return nil, err
			}
			checked := child.Attrs != nil && child.Attrs.Checked != nil && *child.Attrs.Checked
			list.Items = append(list.Items, TaskItem{Checked: checked, Content: content})
		}
		return list, nil
	}
	return nil, fmt.Errorf("richdoc: unsupported node type %q", node.Type)
}

func decodeInline(nodes []wireNode) (string, error) {
	var sb strings.Builder
	for _, node := range nodes {
		if node.Type != "text" {
			return "", fmt.Errorf("richdoc: unsupported inline node %q", node.Type)
		}
		sb.WriteString(node.Text)
	}
	return sb.String(), nil
}
