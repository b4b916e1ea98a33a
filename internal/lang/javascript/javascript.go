// Package javascript is the JavaScript language plug-in for the extraction
// engine, grounded on the teacher's pkg/treesitter JavaScript extractor.
package javascript

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	jsgrammar "github.com/smacker/go-tree-sitter/javascript"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
)

// Provider implements lang.Provider for JavaScript source files.
type Provider struct {
	grammar *sitter.Language
}

func New() *Provider { return &Provider{grammar: jsgrammar.GetLanguage()} }

func (p *Provider) Language() entity.Language { return entity.LanguageJavaScript }
func (p *Provider) Extensions() []string      { return []string{".js", ".jsx", ".mjs"} }
func (p *Provider) Grammar() *sitter.Language  { return p.grammar }
func (p *Provider) Separator() string { return "." }

// ModulePath derives a module path from the file's directory and stem,
// folding index.js (and its variants) to the parent directory, the same
// convention as Python's __init__.py folding (§4.1); unlike original_source's
// JavaScript extractor (stubbed pending macro migration), this is a
// supplemented design decision since there is no original grounding for it.
func (p *Provider) ModulePath(relPath string) string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	base := filepath.Base(relPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "index" {
		if dir == "." {
			return ""
		}
		return strings.ReplaceAll(dir, "/", ".")
	}
	if dir == "." {
		return stem
	}
	return strings.ReplaceAll(dir, "/", ".") + "." + stem
}

func (p *Provider) ScopePatterns() []lang.ScopePattern {
	return []lang.ScopePattern{
		{NodeKind: "class_declaration", FieldName: "name"},
	}
}

func (p *Provider) Handlers() []*lang.Handler {
	return []*lang.Handler{moduleHandler(), classHandler(), functionHandler(), methodHandler(), importHandler()}
}

func classHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "class",
		Query: `(class_declaration name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeClass, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "comment")
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func functionHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "function",
		Query: `(function_declaration name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeFunction, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "comment")
			return []*entity.Entity{en}, callRelationships(node, ctx, en), nil
		},
	}
}

func methodHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "method",
		Query: `(method_definition name: (property_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeMethod, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "comment")
			return []*entity.Entity{en}, callRelationships(node, ctx, en), nil
		},
	}
}

// moduleHandler emits the TypeModule entity for the file, named after
// ModulePath, so Contains/Imports edges have a node to attach to (§8
// scenario 2).
func moduleHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "module",
		Query: `(program) @entity.node`,
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

// importHandler emits RelImports edges for `import ... from "spec"` and
// RelReexports edges for `export ... from "spec"`; relative specifiers are
// resolved against the importing file's directory into the same dotted
// module-path convention ModulePath uses.
func importHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "import",
		Query: `[(import_statement) (export_statement)] @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			sourceNode := lang.FindChildByType(node, "string")
			if sourceNode == nil {
				return nil, nil, nil
			}
			spec := strings.Trim(lang.Text(sourceNode, ctx.SourceCode), `"'`)
			sourceModule := resolveModuleSpecifier(ctx.FilePath, spec)

			modPath := ctx.Provider.ModulePath(ctx.FilePath)
			sourceID := entity.DeriveID(ctx.RepositoryID, ctx.FilePath, modPath)
			line := int(node.StartPoint().Row) + 1
			kind := entity.RelImports
			if node.Type() == "export_statement" {
				kind = entity.RelReexports
			}
			rel := func(symbol, localName string, wildcard bool) *entity.Relationship {
				target := localName
				if wildcard {
					target = ""
				}
				return &entity.Relationship{
					SourceID:            sourceID,
					TargetQualifiedName: target,
					Kind:                kind,
					Line:                line,
					ImportSourceModule:  sourceModule,
					ImportSymbol:        symbol,
					ImportWildcard:      wildcard,
				}
			}

			var rels []*entity.Relationship
			lang.Walk(node, func(n *sitter.Node) {
				switch n.Type() {
				case "namespace_import":
					rels = append(rels, rel("", "", true))
				case "import_specifier":
					symbol := ""
					local := ""
					if nn := n.ChildByFieldName("name"); nn != nil {
						symbol = lang.Text(nn, ctx.SourceCode)
						local = symbol
					}
					if alias := n.ChildByFieldName("alias"); alias != nil {
						local = lang.Text(alias, ctx.SourceCode)
					}
					rels = append(rels, rel(symbol, local, false))
				case "identifier":
					if p := n.Parent(); p != nil && p.Type() == "import_clause" {
						name := lang.Text(n, ctx.SourceCode)
						rels = append(rels, rel("default", name, false))
					}
				}
			})
			if len(rels) == 0 {
				rels = append(rels, rel("", "", true))
			}
			return nil, rels, nil
		},
	}
}

// resolveModuleSpecifier turns an import specifier into the dotted module
// path convention ModulePath uses: relative specifiers resolve against the
// importing file's directory; bare package specifiers pass through as-is
// (they name an external dependency, not a workspace module).
func resolveModuleSpecifier(relPath, spec string) string {
	if !strings.HasPrefix(spec, ".") {
		return spec
	}
	dir := filepath.ToSlash(filepath.Dir(relPath))
	joined := filepath.ToSlash(filepath.Join(dir, spec))
	joined = strings.TrimSuffix(joined, filepath.Ext(joined))
	base := filepath.Base(joined)
	if base == "index" {
		joined = filepath.ToSlash(filepath.Dir(joined))
	}
	return strings.ReplaceAll(strings.TrimPrefix(joined, "./"), "/", ".")
}

func callRelationships(node *sitter.Node, ctx *lang.MatchContext, caller *entity.Entity) []*entity.Relationship {
	var rels []*entity.Relationship
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	lang.Walk(body, func(n *sitter.Node) {
		if n.Type() != "call_expression" {
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
	return &entity.Entity{
		Name:          name,
		QualifiedName: qname,
		ParentScope:   parentScope,
		EntityType:    t,
		Visibility:    entity.VisibilityPublic,
		LineRange:     entity.LineRange{Start: int(start.Row) + 1, End: int(end.Row) + 1},
		Content:       lang.Text(node, ctx.SourceCode),
	}
}
