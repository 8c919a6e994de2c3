package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xmlNode is one element of a parsed response document. Attributes and
// namespaces are tolerated and discarded; only local element names, nesting,
// and character data survive. The decoder assumes nothing beyond "valid
// XML": unknown elements pass through untouched and extraction is by name,
// first match wins.
type xmlNode struct {
	name     string
	text     string
	children []*xmlNode
}

// parseXML builds the node tree for the document's root element.
func parseXML(data []byte) (*xmlNode, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("document has no root element")
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(decoder, start)
		}
	}
}

func parseElement(decoder *xml.Decoder, start xml.StartElement) (*xmlNode, error) {
	node := &xmlNode{name: start.Name.Local}
	var text strings.Builder
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(decoder, t)
			if err != nil {
				return nil, err
			}
			node.children = append(node.children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			node.text = strings.TrimSpace(text.String())
			return node, nil
		}
	}
}

// find returns the first descendant element with the given local name,
// depth-first, or nil.
func (n *xmlNode) find(name string) *xmlNode {
	for _, child := range n.children {
		if child.name == name {
			return child
		}
	}
	for _, child := range n.children {
		if found := child.find(name); found != nil {
			return found
		}
	}
	return nil
}

// child returns the direct child with the given name, or nil.
func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// value converts the subtree to the generic result shape: leaves become
// strings, containers of repeated <member> or <item> elements become
// slices, and everything else becomes a map. Repeated sibling names inside
// an ordinary element also collapse into a slice, some services flatten
// their lists that way.
func (n *xmlNode) value() any {
	if len(n.children) == 0 {
		return n.text
	}

	if n.isMemberList() {
		items := make([]any, 0, len(n.children))
		for _, child := range n.children {
			items = append(items, child.value())
		}
		return items
	}

	out := make(map[string]any, len(n.children))
	for _, child := range n.children {
		v := child.value()
		existing, seen := out[child.name]
		switch {
		case !seen:
			out[child.name] = v
		default:
			if list, ok := existing.([]any); ok {
				out[child.name] = append(list, v)
			} else {
				out[child.name] = []any{existing, v}
			}
		}
	}
	return out
}

// isMemberList reports whether every child is a repeated container entry.
func (n *xmlNode) isMemberList() bool {
	name := n.children[0].name
	if name != "member" && name != "item" && name != "entry" {
		return false
	}
	for _, child := range n.children {
		if child.name != name {
			return false
		}
	}
	return true
}
