// Package rust is the Rust language plug-in for the extraction engine,
// grounded on the teacher's pkg/treesitter Rust extractor. Rust is the one
// language family that joins qualified names with "::" (§3).
package rust

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	rustgrammar "github.com/smacker/go-tree-sitter/rust"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
)

// Provider implements lang.Provider for Rust source files.
type Provider struct {
	grammar *sitter.Language
}

func New() *Provider { return &Provider{grammar: rustgrammar.GetLanguage()} }

func (p *Provider) Language() entity.Language { return entity.LanguageRust }
func (p *Provider) Extensions() []string      { return []string{".rs"} }
func (p *Provider) Grammar() *sitter.Language  { return p.grammar }
func (p *Provider) Separator() string         { return "::" }

func (p *Provider) ScopePatterns() []lang.ScopePattern {
	return []lang.ScopePattern{
		{NodeKind: "mod_item", FieldName: "name"},
		{NodeKind: "impl_item", FieldName: "type"},
		{NodeKind: "trait_item", FieldName: "name"},
	}
}

// ModulePath folds crate-root files (lib.rs, main.rs, mod.rs) to the parent
// module, matching original_source's crate-root folding rule.
func (p *Provider) ModulePath(relPath string) string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	base := filepath.Base(relPath)
	switch base {
	case "lib.rs", "main.rs", "mod.rs":
		if dir == "." {
			return ""
		}
		return strings.ReplaceAll(dir, "/", "::")
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "." {
		return stem
	}
	return strings.ReplaceAll(dir, "/", "::") + "::" + stem
}

func (p *Provider) Handlers() []*lang.Handler {
	return []*lang.Handler{
		moduleHandler(), structHandler(), enumHandler(), traitHandler(),
		functionHandler(), constHandler(), typeAliasHandler(), importHandler(),
	}
}

func structHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "struct",
		Query: `(struct_item name: (type_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeStruct, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "line_comment", "block_comment")
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func enumHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "enum",
		Query: `(enum_item name: (type_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeEnum, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "line_comment", "block_comment")

			var children []*entity.Entity
			if body := lang.FindChildByType(node, "enum_variant_list"); body != nil {
				for i := 0; i < int(body.NamedChildCount()); i++ {
					variant := body.NamedChild(i)
					if variant == nil || variant.Type() != "enum_variant" {
						continue
					}
					vn := variant.ChildByFieldName("name")
					if vn == nil {
						continue
					}
					vname := lang.Text(vn, ctx.SourceCode)
					// ParentScope is left for fixupParentScopes to derive from
					// the final (module-prefixed) QualifiedName: qname here is
					// pre-prefix and would otherwise permanently mismatch en's
					// QualifiedName once finishEntity prepends the module path.
					children = append(children, newEntity(variant, ctx, entity.TypeEnumVariant, vname, qname+"::"+vname, ""))
				}
			}
			return append([]*entity.Entity{en}, children...), nil, nil
		},
	}
}

func traitHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "trait",
		Query: `(trait_item name: (type_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeTrait, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "line_comment", "block_comment")
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func functionHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "function",
		Query: `(function_item name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)

			t := entity.TypeFunction
			if enclosingImpl(node) != nil {
				t = entity.TypeMethod
			}
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)

			en := newEntity(node, ctx, t, name, qname, "")
			en.DocSummary = lang.DocComment(node, ctx.SourceCode, "line_comment", "block_comment")
			en.Signature = signature(node, ctx.SourceCode)
			return []*entity.Entity{en}, callRelationships(node, ctx, en), nil
		},
	}
}

func constHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "const",
		Query: `(const_item name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeConstant, name, qname, "")
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func typeAliasHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "type_alias",
		Query: `(type_item name: (type_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := lang.Text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeTypeAlias, name, qname, "")
			return []*entity.Entity{en}, nil, nil
		},
	}
}

// moduleHandler emits the TypeModule entity for the file, named after
// ModulePath, grounded on original_source's module_handlers.rs (which
// scans a module's use_declaration children); unlike that original, which
// stores import paths as a comma-joined metadata string, this emits real
// graph edges since the resolver (§4.2) needs structured Import records.
func moduleHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "module",
		Query: `(source_file) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			modPath := ctx.Provider.ModulePath(ctx.FilePath)
			if modPath == "" {
				return nil, nil, nil
			}
			node := c["entity.node"]
			name := modPath
			if idx := strings.LastIndex(modPath, "::"); idx >= 0 {
				name = modPath[idx+2:]
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

// importHandler emits RelImports edges for every use_declaration in the
// file, nested ones included, grounded on original_source's handle_module_impl (which scans a module's
// immediate children for use_declaration nodes). collectUseItems recurses
// into scoped_use_list/use_list groups and use_as_clause/use_wildcard so
// `use a::{b, c as d, e::*}` yields one relationship per bound name.
func importHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "import",
		Query: `(use_declaration) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			modPath := ctx.Provider.ModulePath(ctx.FilePath)
			sourceID := entity.DeriveID(ctx.RepositoryID, ctx.FilePath, modPath)
			line := int(node.StartPoint().Row) + 1

			arg := node.ChildByFieldName("argument")
			if arg == nil {
				return nil, nil, nil
			}
			var rels []*entity.Relationship
			collectUseItems(arg, "", ctx.SourceCode, func(sourceModule, symbol, localName string, wildcard bool) {
				target := localName
				if wildcard {
					target = ""
				}
				rels = append(rels, &entity.Relationship{
					SourceID:            sourceID,
					TargetQualifiedName: target,
					Kind:                entity.RelImports,
					Line:                line,
					ImportSourceModule:  sourceModule,
					ImportSymbol:        symbol,
					ImportWildcard:      wildcard,
				})
			})
			return nil, rels, nil
		},
	}
}

// collectUseItems walks a use-tree node (scoped_identifier, identifier,
// use_as_clause, use_wildcard, scoped_use_list, use_list), accumulating the
// "::"-joined path prefix, and invokes emit(sourceModule, symbol, localName,
// wildcard) once per bound name.
func collectUseItems(node *sitter.Node, prefix string, source []byte, emit func(sourceModule, symbol, localName string, wildcard bool)) {
	switch node.Type() {
	case "scoped_identifier":
		path := lang.Text(node, source)
		name := path
		if idx := strings.LastIndex(path, "::"); idx >= 0 {
			name = path[idx+2:]
		}
		emit(path, "", name, false)
	case "identifier":
		path := joinUsePath(prefix, lang.Text(node, source))
		emit(path, "", lang.Text(node, source), false)
	case "use_as_clause":
		pathNode := node.ChildByFieldName("path")
		aliasNode := node.ChildByFieldName("alias")
		if pathNode == nil || aliasNode == nil {
			return
		}
		path := joinUsePath(prefix, lang.Text(pathNode, source))
		emit(path, lang.Text(pathNode, source), lang.Text(aliasNode, source), false)
	case "use_wildcard":
		path := prefix
		if pathNode := lang.FindChildByType(node, "scoped_identifier"); pathNode != nil {
			path = joinUsePath(prefix, lang.Text(pathNode, source))
		} else if pathNode := lang.FindChildByType(node, "identifier"); pathNode != nil {
			path = joinUsePath(prefix, lang.Text(pathNode, source))
		}
		emit(path, "", "", true)
	case "scoped_use_list":
		pathNode := node.ChildByFieldName("path")
		listNode := node.ChildByFieldName("list")
		base := prefix
		if pathNode != nil {
			base = joinUsePath(prefix, lang.Text(pathNode, source))
		}
		if listNode != nil {
			collectUseItems(listNode, base, source, emit)
		}
	case "use_list":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child != nil {
				collectUseItems(child, prefix, source, emit)
			}
		}
	}
}

func joinUsePath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "::" + segment
}

func enclosingImpl(node *sitter.Node) *sitter.Node {
	cur := node.Parent()
	for cur != nil {
		if cur.Type() == "impl_item" {
			return cur
		}
		cur = cur.Parent()
	}
	return nil
}

func signature(node *sitter.Node, source []byte) *entity.Signature {
	sig := &entity.Signature{}
	params := node.ChildByFieldName("parameters")
	if params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p == nil || p.Type() != "parameter" {
				continue
			}
			nameNode := p.ChildByFieldName("pattern")
			typeNode := p.ChildByFieldName("type")
			param := entity.Param{}
			if nameNode != nil {
				param.Name = lang.Text(nameNode, source)
			}
			if typeNode != nil {
				param.Type = lang.Text(typeNode, source)
			}
			sig.Parameters = append(sig.Parameters, param)
		}
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig.ReturnType = lang.Text(ret, source)
	}
	if fnMod := lang.FindChildByType(node, "function_modifiers"); fnMod != nil {
		sig.Async = strings.Contains(lang.Text(fnMod, source), "async")
	}
	return sig
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
	vis := entity.VisibilityPrivate
	if visNode := lang.FindChildByType(node, "visibility_modifier"); visNode != nil {
		vis = entity.VisibilityPublic
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
