package project

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Document is a parsed project file.
type Document struct {
	Root *Node
}

// ParseDocument parses a project file. The root element must be <project>.
func ParseDocument(data string) (*Document, error) {
	root, err := parseNodes(strings.NewReader(data))
	if err != nil {
		return nil, err
	}
	if root.Name != "project" {
		return nil, fmt.Errorf("parse project xml: root element is <%s>, expected <project>", root.Name)
	}
	return &Document{Root: root}, nil
}

// String serializes the document with an XML declaration.
func (d *Document) String() string {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	writeNode(&buf, d.Root, 0)
	return buf.String()
}

// tasksNode returns <tasks>, creating it when absent.
func (d *Document) tasksNode() *Node {
	if n := d.Root.Child("tasks"); n != nil {
		return n
	}
	n := &Node{Name: "tasks"}
	d.Root.Children = append(d.Root.Children, n)
	return n
}

// taskEntry is a task element together with its decoded row.
type taskEntry struct {
	node   *Node
	parent *Node
	task   Task
}

// walkTasks visits task elements depth-first in document order.
func (d *Document) walkTasks(fn func(e taskEntry)) {
	var walk func(parent *Node, parentUID string)
	walk = func(parent *Node, parentUID string) {
		for _, c := range parent.ChildrenNamed("task") {
			t := decodeTask(c)
			t.ParentUID = parentUID
			fn(taskEntry{node: c, parent: parent, task: t})
			walk(c, t.UID)
		}
	}
	if tasks := d.Root.Child("tasks"); tasks != nil {
		walk(tasks, "")
	}
}

// Tasks returns all tasks depth-first, parents before children.
func (d *Document) Tasks() []Task {
	var out []Task
	d.walkTasks(func(e taskEntry) { out = append(out, e.task) })
	return out
}

// Dependencies returns the dependency links declared by <depend> elements.
// A <depend id="N"> inside a task makes task N depend on that task.
func (d *Document) Dependencies() []Dependency {
	uidByNum := make(map[int]string)
	d.walkTasks(func(e taskEntry) { uidByNum[e.task.Num] = e.task.UID })

	var out []Dependency
	d.walkTasks(func(e taskEntry) {
		for _, dep := range e.node.ChildrenNamed("depend") {
			id, _ := strconv.Atoi(attr(dep, "id"))
			dependant, ok := uidByNum[id]
			if !ok {
				continue
			}
			lag, _ := strconv.Atoi(attr(dep, "difference"))
			out = append(out, Dependency{
				DependeeUID:  e.task.UID,
				DependantUID: dependant,
				Type:         attr(dep, "type"),
				Lag:          lag,
				Hardness:     attr(dep, "hardness"),
			})
		}
	})
	return out
}

// CustomPropertyDefs returns the task custom property definitions.
func (d *Document) CustomPropertyDefs() []CustomPropertyDef {
	tasks := d.Root.Child("tasks")
	if tasks == nil {
		return nil
	}
	props := tasks.Child("taskproperties")
	if props == nil {
		return nil
	}
	var out []CustomPropertyDef
	for _, p := range props.ChildrenNamed("taskproperty") {
		if attr(p, "type") == "default" {
			// Built-in columns, not custom properties.
			continue
		}
		def := CustomPropertyDef{
			ID:           attr(p, "id"),
			Name:         attr(p, "name"),
			Type:         attr(p, "type"),
			ValueType:    attr(p, "valuetype"),
			DefaultValue: attr(p, "defaultvalue"),
		}
		if sel := p.Child("simple-select"); sel != nil {
			def.Expression = attr(sel, "select")
		}
		out = append(out, def)
	}
	return out
}

// ApplyTasks rewrites the task elements to match rows.
//
// Existing tasks keep their position and parent, and only attributes whose
// values changed are touched. Tasks missing from rows are removed; their
// children move up to the removed task's parent. Rows with no element are
// appended under <tasks> in row order. Dependencies pointing at removed
// tasks are dropped.
func (d *Document) ApplyTasks(rows []Task) {
	byUID := make(map[string]Task, len(rows))
	for _, r := range rows {
		byUID[r.UID] = r
	}

	removedNums := make(map[int]bool)
	seen := make(map[string]bool, len(rows))

	var rebuild func(parent *Node)
	rebuild = func(parent *Node) {
		children := make([]*Node, 0, len(parent.Children))
		for _, c := range parent.Children {
			if c.Name != "task" {
				children = append(children, c)
				continue
			}
			old := decodeTask(c)
			rebuild(c)
			row, ok := byUID[old.UID]
			if !ok {
				removedNums[old.Num] = true
				for _, gc := range c.Children {
					if gc.Name == "task" {
						children = append(children, gc)
					}
				}
				continue
			}
			seen[old.UID] = true
			patchTask(c, old, row)
			children = append(children, c)
		}
		parent.Children = children
	}
	tasks := d.tasksNode()
	rebuild(tasks)

	for _, r := range rows {
		if !seen[r.UID] {
			tasks.Children = append(tasks.Children, encodeTask(r))
		}
	}

	if len(removedNums) > 0 {
		d.walkTasks(func(e taskEntry) {
			kept := e.node.Children[:0]
			for _, c := range e.node.Children {
				if c.Name == "depend" {
					if id, err := strconv.Atoi(attr(c, "id")); err == nil && removedNums[id] {
						continue
					}
				}
				kept = append(kept, c)
			}
			e.node.Children = kept
		})
	}
}

func attr(n *Node, name string) string {
	v, _ := n.Attr(name)
	return v
}

// decodeTask reads the mirrored fields of a task element. A task without a
// uid gets one derived from its id.
func decodeTask(n *Node) Task {
	t := Task{
		Name:          attr(n, "name"),
		UID:           attr(n, "uid"),
		Color:         attr(n, "color"),
		Shape:         attr(n, "shape"),
		Milestone:     attr(n, "meeting") == "true",
		ProjectTask:   attr(n, "project") == "true",
		Start:         attr(n, "start"),
		EarliestStart: attr(n, "thirdDate"),
		Priority:      attr(n, "priority"),
		WebLink:       attr(n, "webLink"),
		Cost:          Cost{ManualValue: attr(n, "cost-manual-value")},
	}
	t.Num, _ = strconv.Atoi(attr(n, "id"))
	t.Duration, _ = strconv.Atoi(attr(n, "duration"))
	t.Completion, _ = strconv.Atoi(attr(n, "complete"))
	if v, ok := n.Attr("thirdDate-constraint"); ok {
		if c, err := strconv.Atoi(v); err == nil {
			t.ThirdDateConstraint = &c
		}
	}
	if v, ok := n.Attr("cost-calculated"); ok {
		b := v == "true"
		t.Cost.Calculated = &b
	}
	if t.UID == "" {
		t.UID = "task-" + strconv.Itoa(t.Num)
	}
	if notes := n.Child("notes"); notes != nil {
		t.Notes = notes.Text
	}
	for _, cp := range n.ChildrenNamed("customproperty") {
		if t.CustomValues == nil {
			t.CustomValues = make(map[string]string)
		}
		t.CustomValues[attr(cp, "taskproperty-id")] = attr(cp, "value")
	}
	return t
}

// taskField binds an XML attribute to a Task field. Absent values are
// written by removing the attribute.
type taskField struct {
	attr   string
	always bool
	get    func(Task) (string, bool)
}

var taskFields = []taskField{
	{"id", true, func(t Task) (string, bool) { return strconv.Itoa(t.Num), true }},
	{"uid", true, func(t Task) (string, bool) { return t.UID, true }},
	{"name", true, func(t Task) (string, bool) { return t.Name, true }},
	{"color", false, func(t Task) (string, bool) { return t.Color, t.Color != "" }},
	{"shape", false, func(t Task) (string, bool) { return t.Shape, t.Shape != "" }},
	{"meeting", true, func(t Task) (string, bool) { return strconv.FormatBool(t.Milestone), true }},
	{"project", false, func(t Task) (string, bool) { return "true", t.ProjectTask }},
	{"start", true, func(t Task) (string, bool) { return t.Start, true }},
	{"duration", true, func(t Task) (string, bool) { return strconv.Itoa(t.Duration), true }},
	{"complete", true, func(t Task) (string, bool) { return strconv.Itoa(t.Completion), true }},
	{"thirdDate", false, func(t Task) (string, bool) { return t.EarliestStart, t.EarliestStart != "" }},
	{"thirdDate-constraint", false, func(t Task) (string, bool) {
		if t.ThirdDateConstraint == nil {
			return "", false
		}
		return strconv.Itoa(*t.ThirdDateConstraint), true
	}},
	{"priority", false, func(t Task) (string, bool) { return t.Priority, t.Priority != "" }},
	{"webLink", false, func(t Task) (string, bool) { return t.WebLink, t.WebLink != "" }},
	{"cost-manual-value", false, func(t Task) (string, bool) { return t.Cost.ManualValue, t.Cost.ManualValue != "" }},
	{"cost-calculated", false, func(t Task) (string, bool) {
		if t.Cost.Calculated == nil {
			return "", false
		}
		return strconv.FormatBool(*t.Cost.Calculated), true
	}},
}

// patchTask rewrites only the attributes and children whose values differ
// between old and row, so untouched attributes keep their original text.
func patchTask(n *Node, old, row Task) {
	for _, f := range taskFields {
		oldValue, oldOK := f.get(old)
		newValue, newOK := f.get(row)
		if oldValue == newValue && oldOK == newOK {
			continue
		}
		if f.attr == "uid" {
			if _, had := n.Attr("uid"); !had {
				// Derived uid, the file never had one.
				continue
			}
		}
		if newOK {
			n.SetAttr(f.attr, newValue)
		} else {
			n.RemoveAttr(f.attr)
		}
	}
	if old.Notes != row.Notes {
		setNotes(n, row.Notes)
	}
	if !sameValues(old.CustomValues, row.CustomValues) {
		n.RemoveChildren("customproperty")
		n.Children = append(n.Children, customPropertyNodes(row.CustomValues)...)
	}
}

func encodeTask(t Task) *Node {
	n := &Node{Name: "task"}
	for _, f := range taskFields {
		if v, ok := f.get(t); ok {
			n.Attrs = append(n.Attrs, Attr{Name: f.attr, Value: v})
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: "expand", Value: "true"})
	setNotes(n, t.Notes)
	n.Children = append(n.Children, customPropertyNodes(t.CustomValues)...)
	return n
}

func setNotes(n *Node, notes string) {
	if existing := n.Child("notes"); existing != nil {
		if notes == "" {
			n.RemoveChildren("notes")
			return
		}
		existing.Text = notes
		return
	}
	if notes != "" {
		n.Children = append([]*Node{{Name: "notes", Text: notes}}, n.Children...)
	}
}

func customPropertyNodes(values map[string]string) []*Node {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, &Node{Name: "customproperty", Attrs: []Attr{
			{Name: "taskproperty-id", Value: id},
			{Name: "value", Value: values[id]},
		}})
	}
	return out
}

func sameValues(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// ApplyDependencies rewrites the <depend> elements to match deps. A depend
// element that already describes a wanted dependency keeps its position;
// only its changed attributes are rewritten.
func (d *Document) ApplyDependencies(deps []Dependency) {
	numByUID := make(map[string]int)
	d.walkTasks(func(e taskEntry) { numByUID[e.task.UID] = e.task.Num })

	byDependee := make(map[string][]Dependency)
	for _, dep := range deps {
		byDependee[dep.DependeeUID] = append(byDependee[dep.DependeeUID], dep)
	}

	d.walkTasks(func(e taskEntry) {
		want := make(map[int]Dependency)
		for _, dep := range byDependee[e.task.UID] {
			if num, ok := numByUID[dep.DependantUID]; ok {
				want[num] = dep
			}
		}

		done := make(map[int]bool, len(want))
		kept := make([]*Node, 0, len(e.node.Children))
		for _, c := range e.node.Children {
			if c.Name != "depend" {
				kept = append(kept, c)
				continue
			}
			id, err := strconv.Atoi(attr(c, "id"))
			dep, ok := want[id]
			if err != nil || !ok || done[id] {
				continue
			}
			setDependAttrs(c, dep)
			done[id] = true
			kept = append(kept, c)
		}

		nums := make([]int, 0, len(want))
		for num := range want {
			if !done[num] {
				nums = append(nums, num)
			}
		}
		sort.Ints(nums)
		for _, num := range nums {
			n := &Node{Name: "depend", Attrs: []Attr{{Name: "id", Value: strconv.Itoa(num)}}}
			setDependAttrs(n, want[num])
			kept = append(kept, n)
		}
		e.node.Children = kept
	})
}

func setDependAttrs(n *Node, dep Dependency) {
	values := []Attr{
		{Name: "type", Value: dep.Type},
		{Name: "difference", Value: strconv.Itoa(dep.Lag)},
		{Name: "hardness", Value: dep.Hardness},
	}
	for _, a := range values {
		if v, ok := n.Attr(a.Name); !ok || v != a.Value {
			n.SetAttr(a.Name, a.Value)
		}
	}
}
