// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vrt

import (
	"bytes"
	"encoding/xml"
	"math"
	"strconv"
	"strings"
)

// xmlNode is a generic element of a VRT document. Attribute and child order
// are preserved.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []*xmlNode `xml:",any"`
}

func newNode(name string) *xmlNode {
	return &xmlNode{XMLName: xml.Name{Local: name}}
}

func parseXML(data []byte) (*xmlNode, error) {
	n := &xmlNode{}
	if err := xml.Unmarshal(data, n); err != nil {
		return nil, errorf(ErrInvalidInput, "parse xml: %w", err)
	}
	return n, nil
}

func (n *xmlNode) marshal(indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if indent {
		enc.Indent("", "  ")
	}
	if err := enc.Encode(n); err != nil {
		return nil, errorf(ErrInvalidInput, "encode xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, errorf(ErrInvalidInput, "encode xml: %w", err)
	}
	if indent {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (n *xmlNode) name() string {
	return n.XMLName.Local
}

func (n *xmlNode) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value, true
		}
	}
	return "", false
}

func (n *xmlNode) attrOr(name, def string) string {
	if v, ok := n.attr(name); ok {
		return v
	}
	return def
}

func (n *xmlNode) setAttr(name, value string) *xmlNode {
	for i := range n.Attrs {
		if n.Attrs[i].Name.Local == name {
			n.Attrs[i].Value = value
			return n
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	return n
}

func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.Children {
		if strings.EqualFold(c.name(), name) {
			return c
		}
	}
	return nil
}

func (n *xmlNode) childrenNamed(name string) []*xmlNode {
	var ret []*xmlNode
	for _, c := range n.Children {
		if strings.EqualFold(c.name(), name) {
			ret = append(ret, c)
		}
	}
	return ret
}

func (n *xmlNode) text() string {
	return strings.TrimSpace(n.Text)
}

func (n *xmlNode) childText(name string) (string, bool) {
	c := n.child(name)
	if c == nil {
		return "", false
	}
	return c.text(), true
}

func (n *xmlNode) add(name string) *xmlNode {
	c := newNode(name)
	n.Children = append(n.Children, c)
	return c
}

func (n *xmlNode) addText(name, text string) *xmlNode {
	c := n.add(name)
	c.Text = text
	return c
}

func (n *xmlNode) appendChild(c *xmlNode) {
	if c != nil {
		n.Children = append(n.Children, c)
	}
}

// clone returns a deep copy of the subtree, with whitespace only text removed
func (n *xmlNode) clone() *xmlNode {
	c := &xmlNode{XMLName: n.XMLName, Attrs: append([]xml.Attr(nil), n.Attrs...)}
	if len(n.Children) == 0 || strings.TrimSpace(n.Text) != "" {
		c.Text = n.Text
	}
	for _, ch := range n.Children {
		c.Children = append(c.Children, ch.clone())
	}
	return c
}

// size estimates the number of bytes of the serialized subtree
func (n *xmlNode) size() int64 {
	s := int64(2*len(n.name()) + 5 + len(n.Text))
	for _, a := range n.Attrs {
		s += int64(len(a.Name.Local) + len(a.Value) + 4)
	}
	for _, c := range n.Children {
		s += c.size()
	}
	return s
}

// fmtFloat formats v with the shortest representation that parses back to v
func fmtFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloatText(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errorf(ErrInvalidInput, "invalid %s value %q", what, s)
	}
	return v, nil
}
