package project

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is one attribute in document order.
type Attr struct {
	Name  string
	Value string
}

// Node is an XML element. Text holds its trimmed character data.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr updates the named attribute in place or appends it.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr drops the named attribute if present.
func (n *Node) RemoveAttr(name string) {
	out := n.Attrs[:0]
	for _, a := range n.Attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}
	n.Attrs = out
}

// Child returns the first child element with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all child elements with the given name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// RemoveChildren drops every child element with the given name.
func (n *Node) RemoveChildren(name string) {
	out := n.Children[:0]
	for _, c := range n.Children {
		if c.Name != name {
			out = append(out, c)
		}
	}
	n.Children = out
}

// parseNodes reads the root element from r. Prefixes are kept verbatim
// (RawToken), so namespaced names survive a round trip.
func parseNodes(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var stack []*Node
	var root *Node
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse project xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: qualified(t.Name)}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse project xml: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse project xml: unexpected </%s>", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			if text := strings.TrimSpace(string(t)); text != "" {
				top := stack[len(stack)-1]
				top.Text += text
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse project xml: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parse project xml: unclosed <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// cdataElements are written as CDATA sections.
var cdataElements = map[string]bool{
	"notes":       true,
	"description": true,
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// writeNode writes n with two-space indentation, one element per line.
func writeNode(buf *bytes.Buffer, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Name)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}

	switch {
	case len(n.Children) == 0 && n.Text == "":
		buf.WriteString("/>\n")
	case len(n.Children) == 0:
		buf.WriteByte('>')
		writeText(buf, n.Name, n.Text)
		buf.WriteString("</" + n.Name + ">\n")
	default:
		buf.WriteString(">\n")
		if n.Text != "" {
			buf.WriteString(indent + "  ")
			writeText(buf, n.Name, n.Text)
			buf.WriteByte('\n')
		}
		for _, c := range n.Children {
			writeNode(buf, c, depth+1)
		}
		buf.WriteString(indent + "</" + n.Name + ">\n")
	}
}

func writeText(buf *bytes.Buffer, element, text string) {
	if !cdataElements[element] {
		xml.EscapeText(buf, []byte(text))
		return
	}
	// A CDATA section cannot contain "]]>", so split it across sections.
	buf.WriteString("<![CDATA[")
	buf.WriteString(strings.ReplaceAll(text, "]]>", "]]]]><![CDATA[>"))
	buf.WriteString("]]>")
}
