package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTreeRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	steps := []struct {
		name   string
		parent string
	}{
		{"docs", ""},
		{"parse", "docs"},
		{"render", "docs"},
		{"render/html", "render"},
		{"lint", ""},
	}
	for _, s := range steps {
		_, err := reg.Start(s.name, StartOptions{Parent: s.parent})
		require.NoError(t, err)
	}
	return reg
}

func TestRegistry_Tree(t *testing.T) {
	reg := buildTreeRegistry(t)

	t.Run("rooted at an operation", func(t *testing.T) {
		tree := reg.Tree("docs")

		assert.Equal(t, "docs", tree.Name)
		assert.Equal(t, []string{"parse", "render"}, tree.Record.Children)
		require.Len(t, tree.Children, 2)
		assert.Empty(t, tree.Children["parse"].Children)

		render := tree.Children["render"]
		require.NotNil(t, render)
		require.Contains(t, render.Children, "render/html")
		assert.Equal(t, "render", render.Children["render/html"].Parent)
	})

	t.Run("unknown root", func(t *testing.T) {
		tree := reg.Tree("missing")
		require.NotNil(t, tree)
		assert.Empty(t, tree.Name)
		assert.Empty(t, tree.Children)
	})

	t.Run("synthetic root over top-level operations", func(t *testing.T) {
		tree := reg.Tree("")
		assert.Empty(t, tree.Name)
		assert.Equal(t, []string{"docs", "lint"}, tree.Record.Children)
		require.Len(t, tree.Children, 2)
		assert.Len(t, tree.Children["docs"].Children, 2)
	})

	t.Run("orphans with unknown parents are not top-level", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Start("orphan", StartOptions{Parent: "ghost"})
		require.NoError(t, err)

		tree := reg.Tree("")
		assert.Empty(t, tree.Children)
	})

	t.Run("nodes are snapshots", func(t *testing.T) {
		tree := reg.Tree("docs")
		tree.Children["parse"].Message = "mutated"

		rec, _ := reg.Get("parse")
		assert.Empty(t, rec.Message)
	})
}

func TestTreeNode_MarshalJSON(t *testing.T) {
	reg := buildTreeRegistry(t)

	data, err := json.Marshal(reg.Tree("docs"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "docs", decoded["name"])
	assert.Equal(t, "running", decoded["status"])

	children, ok := decoded["children"].(map[string]any)
	require.True(t, ok, "children should be an object keyed by name")
	require.Contains(t, children, "parse")
	require.Contains(t, children, "render")

	render := children["render"].(map[string]any)
	assert.Equal(t, "docs", render["parent"])
	grandchildren := render["children"].(map[string]any)
	assert.Contains(t, grandchildren, "render/html")

	parse := children["parse"].(map[string]any)
	assert.Equal(t, map[string]any{}, parse["children"])
}

func TestTreeNode_UnmarshalJSON(t *testing.T) {
	reg := buildTreeRegistry(t)

	data, err := json.Marshal(reg.Tree(""))
	require.NoError(t, err)

	var restored TreeNode
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, []string{"docs", "lint"}, restored.Record.Children)
	docs := restored.Children["docs"]
	require.NotNil(t, docs)
	assert.Equal(t, StatusRunning, docs.Status)
	assert.Equal(t, []string{"parse", "render"}, docs.Record.Children)
	assert.Contains(t, docs.Children["render"].Children, "render/html")
	assert.Empty(t, restored.Children["lint"].Children)
}

func TestTreeNode_RecordlessJSON(t *testing.T) {
	reg := buildTreeRegistry(t)

	t.Run("unknown root is an empty object", func(t *testing.T) {
		data, err := json.Marshal(reg.Tree("missing"))
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(data))

		var restored TreeNode
		require.NoError(t, json.Unmarshal(data, &restored))
		assert.Empty(t, restored.Name)
		assert.Empty(t, restored.Children)
	})

	t.Run("synthetic root only carries children", func(t *testing.T) {
		data, err := json.Marshal(reg.Tree(""))
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Len(t, decoded, 1)
		children, ok := decoded["children"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, children, "docs")
		assert.Contains(t, children, "lint")

		var restored TreeNode
		require.NoError(t, json.Unmarshal(data, &restored))
		assert.Empty(t, restored.Name)
		assert.Equal(t, []string{"docs", "lint"}, restored.Record.Children)
	})

	t.Run("empty registry", func(t *testing.T) {
		data, err := json.Marshal(NewRegistry().Tree(""))
		require.NoError(t, err)
		assert.JSONEq(t, `{"children":{}}`, string(data))
	})
}
