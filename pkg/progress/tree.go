package progress

import (
	"encoding/json"
	"sort"
)

// TreeNode is a record together with its expanded children.
//
// Record.Children keeps the child order; Children maps each live child name
// to its node.
type TreeNode struct {
	Record
	Children map[string]*TreeNode
}

// MarshalJSON renders the record fields with "children" as a name to node
// mapping. A node without a record is written as {} when it has no child map
// (unknown root) and as {"children":{...}} otherwise (synthetic root).
func (n TreeNode) MarshalJSON() ([]byte, error) {
	if n.Name == "" {
		if n.Children == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(struct {
			Children map[string]*TreeNode `json:"children"`
		}{Children: n.Children})
	}

	children := n.Children
	if children == nil {
		children = map[string]*TreeNode{}
	}
	return json.Marshal(struct {
		recordJSON
		Children map[string]*TreeNode `json:"children"`
	}{
		recordJSON: n.Record.toJSON(),
		Children:   children,
	})
}

// UnmarshalJSON restores a node written by MarshalJSON, including the
// recordless {} and {"children":{...}} forms
func (n *TreeNode) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*n = TreeNode{}
	children, hasChildren := fields["children"]
	delete(fields, "children")
	if len(fields) == 0 && !hasChildren {
		return nil
	}

	rest, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rest, &n.Record); err != nil {
		return err
	}

	n.Children = map[string]*TreeNode{}
	if len(children) > 0 && string(children) != "null" {
		if err := json.Unmarshal(children, &n.Children); err != nil {
			return err
		}
	}
	for name := range n.Children {
		n.Record.Children = append(n.Record.Children, name)
	}
	sort.Strings(n.Record.Children)
	return nil
}

// Tree returns the operation hierarchy below root. With an empty root the
// result is a synthetic node whose children are all top-level operations.
// An unknown root yields an empty node with no child map.
func (r *Registry) Tree(root string) *TreeNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if root != "" {
		if _, ok := r.operations[root]; !ok {
			return &TreeNode{}
		}
		return r.buildNode(root)
	}

	top := &TreeNode{Children: map[string]*TreeNode{}}
	for name, record := range r.operations {
		if record.Parent == "" {
			top.Children[name] = r.buildNode(name)
			top.Record.Children = append(top.Record.Children, name)
		}
	}
	sort.Strings(top.Record.Children)
	return top
}

// buildNode must be called with r.mu held
func (r *Registry) buildNode(name string) *TreeNode {
	record := r.operations[name]
	node := &TreeNode{
		Record:   record.clone(),
		Children: make(map[string]*TreeNode, len(record.Children)),
	}
	for _, child := range record.Children {
		if _, ok := r.operations[child]; ok {
			node.Children[child] = r.buildNode(child)
		}
	}
	return node
}

// Summary counts operations per status and computes overall progress over
// determinate operations only.
func (r *Registry) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{TotalOperations: len(r.operations)}
	for _, record := range r.operations {
		switch record.Status {
		case StatusRunning:
			s.RunningOperations++
		case StatusCompleted:
			s.CompletedOperations++
		case StatusFailed:
			s.FailedOperations++
		case StatusCancelled:
			s.CancelledOperations++
		}
		if record.Total > 0 {
			s.TotalItems += record.Total
			s.CompletedItems += record.Current
		}
	}
	if s.TotalItems > 0 {
		s.OverallProgressPercentage = float64(s.CompletedItems) / float64(s.TotalItems) * 100
	}
	return s
}
