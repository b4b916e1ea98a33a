// Package python is the Python language plug-in for the extraction engine,
// grounded on the teacher's pkg/treesitter Python extractor.
package python

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	pygrammar "github.com/smacker/go-tree-sitter/python"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
)

// Provider implements lang.Provider for Python source files.
type Provider struct {
	grammar *sitter.Language
}

func New() *Provider { return &Provider{grammar: pygrammar.GetLanguage()} }

func (p *Provider) Language() entity.Language { return entity.LanguagePython }
func (p *Provider) Extensions() []string      { return []string{".py"} }
func (p *Provider) Grammar() *sitter.Language  { return p.grammar }
func (p *Provider) Separator() string         { return "." }

func (p *Provider) ScopePatterns() []lang.ScopePattern {
	return []lang.ScopePattern{
		{NodeKind: "class_definition", FieldName: "name"},
		{NodeKind: "function_definition", FieldName: "name"},
	}
}

// ModulePath derives the module path from the file's directory, folding
// __init__.py to the parent package (§4.1 / original_source module_path.rs).
func (p *Provider) ModulePath(relPath string) string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	base := filepath.Base(relPath)
	if base == "__init__.py" {
		if dir == "." {
			return ""
		}
		return strings.ReplaceAll(dir, "/", ".")
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "." {
		return stem
	}
	return strings.ReplaceAll(dir, "/", ".") + "." + stem
}

func (p *Provider) Handlers() []*lang.Handler {
	return []*lang.Handler{moduleHandler(), classHandler(), functionHandler(), importHandler()}
}

func classHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "class",
		Query: `(class_definition name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeClass, name, qname, "")
			en.DocSummary = docstring(node, ctx.SourceCode)
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func functionHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "function",
		Query: `(function_definition name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)

			t := entity.TypeFunction
			parent := node.Parent()
			if parent != nil && parent.Type() == "block" {
				grand := parent.Parent()
				if grand != nil && grand.Type() == "class_definition" {
					t = entity.TypeMethod
				}
			}

			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, t, name, qname, "")
			en.DocSummary = docstring(node, ctx.SourceCode)
			en.Signature = signature(node, ctx.SourceCode)
			return []*entity.Entity{en}, callRelationships(node, ctx, en), nil
		},
	}
}

// moduleHandler emits the TypeModule entity for the file itself, named after
// ModulePath, so other entities' Contains/Imports edges have a node to attach
// to (§8 scenario 2).
func moduleHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "module",
		Query: `(module) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			modPath := ctx.Provider.ModulePath(ctx.FilePath)
			if modPath == "" {
				return nil, nil, nil
			}
			node := c["entity.node"]
			name := modPath
			if idx := strings.LastIndex(modPath, "."); idx >= 0 {
				name = modPath[idx+1:]
			}
			return []*entity.Entity{{
				Name:          name,
				QualifiedName: modPath,
				EntityType:    entity.TypeModule,
				Visibility:    entity.VisibilityPublic,
				LineRange:     entity.LineRange{Start: int(node.StartPoint().Row) + 1, End: int(node.EndPoint().Row) + 1},
			}}, nil, nil
		},
	}
}

// importHandler emits RelImports edges for `import x`, `import x as y` and
// `from pkg import name [as alias]` statements; `from pkg import *` emits a
// wildcard import with no bound symbol.
func importHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "import",
		Query: `[(import_statement) (import_from_statement)] @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			modPath := ctx.Provider.ModulePath(ctx.FilePath)
			sourceID := entity.DeriveID(ctx.RepositoryID, ctx.FilePath, modPath)
			line := int(node.StartPoint().Row) + 1
			var rels []*entity.Relationship
			rel := func(sourceModule, symbol, localName string, wildcard bool) *entity.Relationship {
				target := localName
				if wildcard {
					target = ""
				}
				return &entity.Relationship{
					SourceID:            sourceID,
					TargetQualifiedName: target,
					Kind:                entity.RelImports,
					Line:                line,
					ImportSourceModule:  sourceModule,
					ImportSymbol:        symbol,
					ImportWildcard:      wildcard,
				}
			}

			switch node.Type() {
			case "import_statement":
				for i := 0; i < int(node.NamedChildCount()); i++ {
					imp := node.NamedChild(i)
					if imp == nil {
						continue
					}
					switch imp.Type() {
					case "dotted_name":
						source := lang.Text(imp, ctx.SourceCode)
						rels = append(rels, rel(source, "", lastDottedSegment(source), false))
					case "aliased_import":
						source := ""
						if n := imp.ChildByFieldName("name"); n != nil {
							source = lang.Text(n, ctx.SourceCode)
						}
						local := source
						if a := imp.ChildByFieldName("alias"); a != nil {
							local = lang.Text(a, ctx.SourceCode)
						}
						rels = append(rels, rel(source, "", local, false))
					}
				}
			case "import_from_statement":
				source := ""
				if n := node.ChildByFieldName("module_name"); n != nil {
					source = lang.Text(n, ctx.SourceCode)
				}
				if hasWildcardImport(node) {
					rels = append(rels, rel(source, "", "", true))
					break
				}
				for i := 0; i < int(node.NamedChildCount()); i++ {
					n := node.NamedChild(i)
					if n == nil || n == node.ChildByFieldName("module_name") {
						continue
					}
					switch n.Type() {
					case "dotted_name":
						name := lang.Text(n, ctx.SourceCode)
						rels = append(rels, rel(source, name, name, false))
					case "aliased_import":
						symbol := ""
						if sn := n.ChildByFieldName("name"); sn != nil {
							symbol = lang.Text(sn, ctx.SourceCode)
						}
						local := symbol
						if a := n.ChildByFieldName("alias"); a != nil {
							local = lang.Text(a, ctx.SourceCode)
						}
						rels = append(rels, rel(source, symbol, local, false))
					}
				}
			}
			return nil, rels, nil
		},
	}
}

func hasWildcardImport(node *sitter.Node) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if n := node.NamedChild(i); n != nil && n.Type() == "wildcard_import" {
			return true
		}
	}
	return false
}

func lastDottedSegment(dotted string) string {
	if idx := strings.LastIndex(dotted, "."); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

func signature(node *sitter.Node, source []byte) *entity.Signature {
	sig := &entity.Signature{}
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return sig
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "identifier":
			sig.Parameters = append(sig.Parameters, entity.Param{Name: lang.Text(p, source)})
		case "typed_parameter":
			name := ""
			typ := ""
			if id := p.NamedChild(0); id != nil {
				name = lang.Text(id, source)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				typ = lang.Text(t, source)
			}
			sig.Parameters = append(sig.Parameters, entity.Param{Name: name, Type: typ})
		case "default_parameter", "typed_default_parameter":
			if nameNode := p.ChildByFieldName("name"); nameNode != nil {
				sig.Parameters = append(sig.Parameters, entity.Param{Name: lang.Text(nameNode, source)})
			}
		}
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig.ReturnType = lang.Text(ret, source)
	}
	return sig
}

// docstring returns the first statement of the function/class body when it
// is a bare string literal, Python's documentation convention (unlike Go/
// Rust/JS, Python doc comments are not preceding-comment based).
func docstring(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" {
		return ""
	}
	expr := first.NamedChild(0)
	if expr == nil || expr.Type() != "string" {
		return ""
	}
	return lang.Text(expr, source)
}

func callRelationships(node *sitter.Node, ctx *lang.MatchContext, caller *entity.Entity) []*entity.Relationship {
	var rels []*entity.Relationship
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	lang.Walk(body, func(n *sitter.Node) {
		if n.Type() != "call" {
			return
		}
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Type() != "identifier" {
			return
		}
		rels = append(rels, &entity.Relationship{
			SourceID:            caller.ID,
			TargetQualifiedName: lang.Text(fn, ctx.SourceCode),
			Kind:                entity.RelCalls,
			Line:                int(n.StartPoint().Row) + 1,
		})
	})
	return rels
}

func newEntity(node *sitter.Node, ctx *lang.MatchContext, t entity.Type, name, qname, parentScope string) *entity.Entity {
	start, end := node.StartPoint(), node.EndPoint()
	vis := entity.VisibilityPublic
	if strings.HasPrefix(name, "_") {
		vis = entity.VisibilityPrivate
	}
	return &entity.Entity{
		Name:          name,
		QualifiedName: qname,
		ParentScope:   parentScope,
		EntityType:    t,
		Visibility:    vis,
		LineRange:     entity.LineRange{Start: int(start.Row) + 1, End: int(end.Row) + 1},
		Content:       lang.Text(node, ctx.SourceCode),
	}
}
