package engine

import (
	"strconv"
)

// QuestionType is the kind of prompt a question renders as.
type QuestionType string

const (
	QuestionGroup        QuestionType = "group"
	QuestionSingleSelect QuestionType = "singleSelect"
	QuestionMultiSelect  QuestionType = "multiSelect"
	QuestionText         QuestionType = "text"
)

// OptionItem is one choice of a select question.
type OptionItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

// Question is a single prompt.
type Question struct {
	Name          string       `json:"name"`
	Type          QuestionType `json:"type"`
	Title         string       `json:"title,omitempty"`
	StaticOptions []OptionItem `json:"staticOptions,omitempty"`
	Default       interface{}  `json:"default,omitempty"`
}

// QTreeNode is a node in a question tree. Group nodes only hold children.
type QTreeNode struct {
	Data     Question     `json:"data"`
	Children []*QTreeNode `json:"children,omitempty"`
}

// NewGroupNode creates an empty group node.
func NewGroupNode() *QTreeNode {
	return &QTreeNode{Data: Question{Type: QuestionGroup}}
}

// AddChild appends child and returns it. A nil child is ignored.
func (n *QTreeNode) AddChild(child *QTreeNode) *QTreeNode {
	if child != nil {
		n.Children = append(n.Children, child)
	}
	return child
}

// Walk visits the node and its descendants depth first.
func (n *QTreeNode) Walk(fn func(*QTreeNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first question with the given name.
func (n *QTreeNode) Find(name string) (*Question, bool) {
	var found *Question
	n.Walk(func(q *QTreeNode) {
		if found == nil && q.Data.Name == name {
			found = &q.Data
		}
	})
	return found, found != nil
}

// Question names.
const (
	QuestionModule   = "module"
	QuestionResource = "resource"
	QuestionFeature  = "feature"
)

// ModuleNone is the module answer that selects no module.
const ModuleNone = "none"

// SelectModuleQuestion lists each module by index plus a trailing "none".
func SelectModuleQuestion(modules []Module) *QTreeNode {
	options := make([]OptionItem, 0, len(modules)+1)
	for i, m := range modules {
		label := "module " + strconv.Itoa(i)
		if m.Dir != "" {
			label += " (" + m.Dir + ")"
		}
		detail := "not hosted"
		if m.HostingPlugin != "" {
			detail = "hosted by " + m.HostingPlugin
		}
		options = append(options, OptionItem{ID: strconv.Itoa(i), Label: label, Detail: detail})
	}
	options = append(options, OptionItem{ID: ModuleNone, Label: "none"})
	return &QTreeNode{Data: Question{
		Name:          QuestionModule,
		Type:          QuestionSingleSelect,
		Title:         "Select a module",
		StaticOptions: options,
		Default:       ModuleNone,
	}}
}

// SelectPluginQuestion lists the given plugins as options.
func SelectPluginQuestion(name, title string, plugins []Plugin) *QTreeNode {
	options := make([]OptionItem, 0, len(plugins))
	for _, p := range plugins {
		d := p.Descriptor()
		label := d.ResourceType
		if label == "" {
			label = d.DisplayName
		}
		options = append(options, OptionItem{ID: d.Name, Label: label, Detail: d.Description})
	}
	return &QTreeNode{Data: Question{
		Name:          name,
		Type:          QuestionSingleSelect,
		Title:         title,
		StaticOptions: options,
	}}
}
