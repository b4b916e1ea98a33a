package lang

import sitter "github.com/smacker/go-tree-sitter"

// Text returns the source slice a node spans. Exported for use by language
// provider packages.
func Text(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

// FindChildByType returns the first named child of the given type.
func FindChildByType(node *sitter.Node, t string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c != nil && c.Type() == t {
			return c
		}
	}
	return nil
}

// Walk calls fn for node and every named descendant, depth-first.
func Walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// DocComment returns the immediately preceding comment sibling's text, the
// common "doc string precedes declaration" convention shared by Go, Rust,
// JS/TS and (as a docstring-literal special case, handled by the Python
// provider itself) Python.
func DocComment(node *sitter.Node, source []byte, commentTypes ...string) string {
	parent := node.Parent()
	if parent == nil {
		return ""
	}
	idx := -1
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		if parent.NamedChild(i) == node {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return ""
	}
	prev := parent.NamedChild(idx - 1)
	if prev == nil {
		return ""
	}
	for _, t := range commentTypes {
		if prev.Type() == t {
			return Text(prev, source)
		}
	}
	return ""
}
