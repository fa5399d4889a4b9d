package prompts

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Node is one element of a prompt document: a generic markup tree that
// survives a parse/serialize round trip without schema knowledge. Templates
// are authored as XML so that instructions, citation rules and the data
// block stay separately addressable.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// ParseDocument parses template text into its node tree. Whitespace-only
// character data from template indentation is dropped; element text is
// trimmed.
func ParseDocument(text string) (*Node, error) {
	var root Node
	if err := xml.Unmarshal([]byte(text), &root); err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	root.normalize()
	return &root, nil
}

// Serialize renders the node tree back to indented markup.
func (n *Node) Serialize() (string, error) {
	out, err := xml.MarshalIndent(n, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize prompt document: %w", err)
	}
	return string(out), nil
}

// LastChild returns the trailing element of this node, nil when there is
// none.
func (n *Node) LastChild() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return &n.Children[len(n.Children)-1]
}

// Child returns the first direct child with the given element name, nil
// when there is none.
func (n *Node) Child(name string) *Node {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			return &n.Children[i]
		}
	}
	return nil
}

func (n *Node) normalize() {
	n.Text = strings.TrimSpace(n.Text)
	for i := range n.Children {
		n.Children[i].normalize()
	}
}
