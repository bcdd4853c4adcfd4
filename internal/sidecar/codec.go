package sidecar

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/filtertree/internal/graph"
)

const (
	// FilterType is the entry type of explicit filter definitions.
	FilterType = "Filter"

	tagProject          = "Project"
	tagItemGroup        = "ItemGroup"
	tagFilter           = "Filter"
	tagUniqueIdentifier = "UniqueIdentifier"
	attrInclude         = "Include"
)

// Skeleton is written when a mutation needs a sidecar that does not exist.
const Skeleton = `<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="4.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <ItemGroup>
  </ItemGroup>
</Project>
`

var bom = []byte{0xEF, 0xBB, 0xBF}

// Document is a decoded sidecar. Entries are kept as ordered sequences in
// every group; the underlying element tree carries everything the codec does
// not interpret so it survives a write unchanged.
type Document struct {
	doc     *etree.Document
	root    *etree.Element
	Groups  []*ItemGroup
	bom     bool
	crlf    bool
	changed bool
}

// ItemGroup is one <ItemGroup> and the entries it holds, in document order.
type ItemGroup struct {
	el      *etree.Element
	Entries []*Entry
	touched bool
}

// Entry is one typed child of an ItemGroup. Filter definitions carry a
// UniqueIdentifier; file entries carry an optional Filter reference.
type Entry struct {
	el               *etree.Element
	group            *ItemGroup
	doc              *Document
	Type             string
	Include          string
	Filter           string
	UniqueIdentifier string
}

// IsFilter reports whether e is an explicit filter definition.
func (e *Entry) IsFilter() bool { return e.Type == FilterType }

// Decode parses sidecar text.
func Decode(data []byte) (*Document, error) {
	d := &Document{
		bom:  bytes.HasPrefix(data, bom),
		crlf: bytes.Contains(data, []byte("\r\n")),
	}
	data = bytes.TrimPrefix(data, bom)

	if err := wellFormed(data); err != nil {
		return nil, newParseError(err)
	}
	d.doc = etree.NewDocument()
	if err := d.doc.ReadFromBytes(data); err != nil {
		return nil, newParseError(err)
	}
	d.root = d.doc.Root()
	if d.root == nil || d.root.Tag != tagProject {
		return nil, newParseError(errNoProject)
	}

	for _, gel := range d.root.SelectElements(tagItemGroup) {
		g := &ItemGroup{el: gel}
		for _, el := range gel.ChildElements() {
			g.Entries = append(g.Entries, d.decodeEntry(g, el))
		}
		d.Groups = append(d.Groups, g)
	}
	return d, nil
}

// wellFormed runs a strict token pass so unbalanced or truncated input is
// rejected with a line number before the tree is built.
func wellFormed(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Load reads and decodes the sidecar name from fs. A missing file is
// returned as an error satisfying IsMissing.
func Load(fs billy.Filesystem, name string) (*Document, error) {
	data, err := util.ReadFile(fs, name)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = name
		}
		return nil, err
	}
	return doc, nil
}

func (d *Document) decodeEntry(g *ItemGroup, el *etree.Element) *Entry {
	e := &Entry{
		el:      el,
		group:   g,
		doc:     d,
		Type:    el.Tag,
		Include: el.SelectAttrValue(attrInclude, ""),
	}
	if e.IsFilter() {
		if uid := el.SelectElement(tagUniqueIdentifier); uid != nil {
			e.UniqueIdentifier = strings.TrimSpace(uid.Text())
		}
		return e
	}
	// Malformed input may repeat <Filter>; the last one wins.
	for _, f := range el.SelectElements(tagFilter) {
		e.Filter = strings.TrimSpace(f.Text())
	}
	return e
}

// Encode serializes the document. Groups emptied by a mutation are dropped;
// groups that were already empty are left alone.
func (d *Document) Encode() ([]byte, error) {
	kept := d.Groups[:0]
	for _, g := range d.Groups {
		if g.touched && len(g.Entries) == 0 {
			d.root.RemoveChild(g.el)
			continue
		}
		kept = append(kept, g)
	}
	d.Groups = kept

	d.doc.Indent(2)
	out, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	if d.crlf {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	if d.bom {
		out = append(append([]byte{}, bom...), out...)
	}
	return out, nil
}

// Changed reports whether any mutation was applied since Decode.
func (d *Document) Changed() bool { return d.changed }

// Filters returns the explicit filter definitions in document order.
func (d *Document) Filters() []*Entry {
	return d.entries(true)
}

// Files returns the file entries in document order.
func (d *Document) Files() []*Entry {
	return d.entries(false)
}

func (d *Document) entries(filters bool) []*Entry {
	var out []*Entry
	for _, g := range d.Groups {
		for _, e := range g.Entries {
			if e.IsFilter() == filters {
				out = append(out, e)
			}
		}
	}
	return out
}

// FindFilter returns the first definition for path. Filter paths compare
// case-sensitively.
func (d *Document) FindFilter(path string) *Entry {
	for _, e := range d.Filters() {
		if e.Include == path {
			return e
		}
	}
	return nil
}

// FindFiles returns every file entry whose Include names the same file as
// include, ignoring case and separator style.
func (d *Document) FindFiles(include string) []*Entry {
	var out []*Entry
	for _, e := range d.Files() {
		if graph.SameInclude(e.Include, include) {
			out = append(out, e)
		}
	}
	return out
}

// AddFilter appends a filter definition to the group that already holds
// filter definitions, or to a new group.
func (d *Document) AddFilter(path, uid string) *Entry {
	g := d.groupFor(FilterType)
	el := etree.NewElement(FilterType)
	el.CreateAttr(attrInclude, path)
	el.CreateElement(tagUniqueIdentifier).SetText(uid)
	return d.add(g, el, &Entry{Type: FilterType, Include: path, UniqueIdentifier: uid})
}

// AddFile appends a file entry of type typ. An empty filter leaves the entry
// unfiltered.
func (d *Document) AddFile(typ, include, filter string) *Entry {
	g := d.groupFor(typ)
	el := etree.NewElement(typ)
	el.CreateAttr(attrInclude, include)
	e := d.add(g, el, &Entry{Type: typ, Include: include})
	e.SetFilter(filter)
	return e
}

func (d *Document) add(g *ItemGroup, el *etree.Element, e *Entry) *Entry {
	g.el.AddChild(el)
	e.el, e.group, e.doc = el, g, d
	g.Entries = append(g.Entries, e)
	g.touched = true
	d.changed = true
	return e
}

// groupFor picks the first group holding entries of typ. Failing that it
// reuses an empty group, then creates one.
func (d *Document) groupFor(typ string) *ItemGroup {
	var empty *ItemGroup
	for _, g := range d.Groups {
		if len(g.Entries) == 0 && empty == nil {
			empty = g
		}
		for _, e := range g.Entries {
			if e.Type == typ {
				return g
			}
		}
	}
	if empty != nil {
		return empty
	}
	g := &ItemGroup{el: d.root.CreateElement(tagItemGroup)}
	d.Groups = append(d.Groups, g)
	return g
}

// Remove deletes e from its group.
func (d *Document) Remove(e *Entry) {
	g := e.group
	for i, cur := range g.Entries {
		if cur == e {
			g.Entries = append(g.Entries[:i], g.Entries[i+1:]...)
			g.el.RemoveChild(e.el)
			g.touched = true
			d.changed = true
			return
		}
	}
}

// SetFilter replaces the entry's filter reference. An empty value removes the
// reference instead of writing an empty one.
func (e *Entry) SetFilter(filter string) {
	if e.IsFilter() {
		return
	}
	existing := e.el.SelectElements(tagFilter)
	want := 0
	if filter != "" {
		want = 1
	}
	if filter == e.Filter && len(existing) == want {
		return
	}
	for _, f := range existing {
		e.el.RemoveChild(f)
	}
	if filter != "" {
		e.el.CreateElement(tagFilter).SetText(filter)
	}
	e.Filter = filter
	e.doc.changed = true
}

// SetInclude rewrites the Include attribute. For filter definitions this is
// the filter path.
func (e *Entry) SetInclude(include string) {
	if include == e.Include {
		return
	}
	e.el.CreateAttr(attrInclude, include)
	e.Include = include
	e.doc.changed = true
}
