// Package golang is the Go language plug-in for the extraction engine,
// grounded on the teacher's pkg/treesitter Go extractor.
package golang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	gogrammar "github.com/smacker/go-tree-sitter/golang"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
)

// Provider implements lang.Provider for Go source files.
type Provider struct {
	grammar *sitter.Language
}

// New constructs the Go language provider.
func New() *Provider {
	return &Provider{grammar: gogrammar.GetLanguage()}
}

func (p *Provider) Language() entity.Language { return entity.LanguageGo }
func (p *Provider) Extensions() []string      { return []string{".go"} }
func (p *Provider) Grammar() *sitter.Language  { return p.grammar }
func (p *Provider) Separator() string         { return "." }

func (p *Provider) ScopePatterns() []lang.ScopePattern {
	return []lang.ScopePattern{
		{NodeKind: "type_spec", FieldName: "name"},
	}
}

// ModulePath returns "" for Go: no prefix is derived from the file path, so
// Go qualified names carry no package or directory segment. The
// package_clause handler below emits a separate package entity named
// "/"+package; the file's other entities do not nest under it, since their
// qualified names do not start with that name.
func (p *Provider) ModulePath(relPath string) string { return "" }

func (p *Provider) Handlers() []*lang.Handler {
	return []*lang.Handler{
		packageHandler(),
		functionHandler(),
		methodHandler(),
		structHandler(),
		interfaceHandler(),
		typeAliasHandler(),
		constHandler(),
		varHandler(),
	}
}

func packageHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "package",
		Query: `(package_clause (package_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			name := text(c["entity.name"], ctx.SourceCode)
			node := c["entity.node"]
			return []*entity.Entity{
				newEntity(node, ctx, entity.TypeModule, name, "/"+name, ""),
			}, nil, nil
		},
	}
}

func functionHandler() *lang.Handler {
	return &lang.Handler{
		Name: "function",
		Query: `(function_declaration
			name: (identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeFunction, name, qname, "")
			en.Signature = functionSignature(node, ctx.SourceCode)
			en.DocSummary = docString(node, ctx.SourceCode)
			return []*entity.Entity{en}, callRelationships(node, ctx, en), nil
		},
	}
}

func methodHandler() *lang.Handler {
	return &lang.Handler{
		Name: "method",
		Query: `(method_declaration
			name: (field_identifier) @entity.name) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			name := text(c["entity.name"], ctx.SourceCode)

			receiver := receiverType(node, ctx.SourceCode)
			qname := name
			if receiver != "" {
				qname = receiver + "." + name
			}

			en := newEntity(node, ctx, entity.TypeMethod, name, qname, "")
			en.Signature = functionSignature(node, ctx.SourceCode)
			en.DocSummary = docString(node, ctx.SourceCode)
			if receiver != "" {
				en.Metadata = map[string]any{"receiver_type": receiver}
			}
			return []*entity.Entity{en}, callRelationships(node, ctx, en), nil
		},
	}
}

func structHandler() *lang.Handler {
	return &lang.Handler{
		Name: "struct",
		Query: `(type_declaration
			(type_spec
				name: (type_identifier) @entity.name
				type: (struct_type) @entity.body)) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			name := text(c["entity.name"], ctx.SourceCode)
			typeSpec := c["entity.node"]
			qname := lang.BuildQualifiedName(typeSpec, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(typeSpec, ctx, entity.TypeStruct, name, qname, "")
			en.DocSummary = docString(typeSpec, ctx.SourceCode)
			entities := []*entity.Entity{en}
			entities = append(entities, structFields(c["entity.body"], ctx, qname)...)
			return entities, nil, nil
		},
	}
}

func interfaceHandler() *lang.Handler {
	return &lang.Handler{
		Name: "interface",
		Query: `(type_declaration
			(type_spec
				name: (type_identifier) @entity.name
				type: (interface_type) @entity.body)) @entity.node`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			name := text(c["entity.name"], ctx.SourceCode)
			typeSpec := c["entity.node"]
			qname := lang.BuildQualifiedName(typeSpec, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(typeSpec, ctx, entity.TypeInterface, name, qname, "")
			en.DocSummary = docString(typeSpec, ctx.SourceCode)
			entities := []*entity.Entity{en}
			entities = append(entities, interfaceMethods(c["entity.body"], ctx, qname)...)
			return entities, nil, nil
		},
	}
}

func typeAliasHandler() *lang.Handler {
	return &lang.Handler{
		Name: "type_alias",
		Query: `(type_declaration
			(type_spec
				name: (type_identifier) @entity.name) @entity.node)`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			node := c["entity.node"]
			// struct_type and interface_type specs are covered by the
			// dedicated handlers above; skip those here to avoid duplicates.
			if typeNode := node.ChildByFieldName("type"); typeNode != nil {
				switch typeNode.Type() {
				case "struct_type", "interface_type":
					return nil, nil, nil
				}
			}
			name := text(c["entity.name"], ctx.SourceCode)
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeTypeAlias, name, qname, "")
			en.DocSummary = docString(node, ctx.SourceCode)
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func constHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "const",
		Query: `(const_declaration (const_spec name: (identifier) @entity.name) @entity.node)`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			name := text(c["entity.name"], ctx.SourceCode)
			node := c["entity.node"]
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeConstant, name, qname, "")
			en.DocSummary = docString(node, ctx.SourceCode)
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func varHandler() *lang.Handler {
	return &lang.Handler{
		Name:  "var",
		Query: `(var_declaration (var_spec name: (identifier) @entity.name) @entity.node)`,
		Handle: func(ctx *lang.MatchContext, c map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error) {
			name := text(c["entity.name"], ctx.SourceCode)
			node := c["entity.node"]
			qname := lang.BuildQualifiedName(node, ctx.SourceCode, ctx.Provider.ScopePatterns(), ctx.Provider.Separator(), name)
			en := newEntity(node, ctx, entity.TypeVariable, name, qname, "")
			en.DocSummary = docString(node, ctx.SourceCode)
			return []*entity.Entity{en}, nil, nil
		},
	}
}

func structFields(body *sitter.Node, ctx *lang.MatchContext, parentQName string) []*entity.Entity {
	if body == nil {
		return nil
	}
	fieldList := findChildByType(body, "field_declaration_list")
	if fieldList == nil {
		return nil
	}
	var out []*entity.Entity
	for i := 0; i < int(fieldList.NamedChildCount()); i++ {
		field := fieldList.NamedChild(i)
		if field == nil || field.Type() != "field_declaration" {
			continue
		}
		for j := 0; j < int(field.NamedChildCount()); j++ {
			nameNode := field.NamedChild(j)
			if nameNode != nil && nameNode.Type() == "field_identifier" {
				name := text(nameNode, ctx.SourceCode)
				en := newEntity(field, ctx, entity.TypeProperty, name, parentQName+"."+name, parentQName)
				out = append(out, en)
			}
		}
	}
	return out
}

func interfaceMethods(body *sitter.Node, ctx *lang.MatchContext, parentQName string) []*entity.Entity {
	if body == nil {
		return nil
	}
	var out []*entity.Entity
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child == nil || child.Type() != "method_spec" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := text(nameNode, ctx.SourceCode)
		en := newEntity(child, ctx, entity.TypeMethod, name, parentQName+"."+name, parentQName)
		en.Signature = &entity.Signature{}
		out = append(out, en)
	}
	return out
}

// callRelationships walks a function/method body for call_expression nodes
// whose function is a bare identifier, emitting unresolved Calls edges;
// qualified/selector calls emit no edge, since the receiver type is not
// known syntactically here.
func callRelationships(node *sitter.Node, ctx *lang.MatchContext, caller *entity.Entity) []*entity.Relationship {
	var rels []*entity.Relationship
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	walk(body, func(n *sitter.Node) {
		if n.Type() != "call_expression" {
			return
		}
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Type() != "identifier" {
			return
		}
		rels = append(rels, &entity.Relationship{
			SourceID:            caller.ID,
			TargetQualifiedName: text(fn, ctx.SourceCode),
			Kind:                entity.RelCalls,
			Line:                int(n.StartPoint().Row) + 1,
		})
	})
	return rels
}

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

func receiverType(methodNode *sitter.Node, source []byte) string {
	receiver := methodNode.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	for i := 0; i < int(receiver.NamedChildCount()); i++ {
		param := receiver.NamedChild(i)
		if param == nil || param.Type() != "parameter_declaration" {
			continue
		}
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		return typeName(typeNode, source)
	}
	return ""
}

func typeName(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "pointer_type":
		if child := node.NamedChild(0); child != nil {
			return typeName(child, source)
		}
	}
	return text(node, source)
}

func functionSignature(node *sitter.Node, source []byte) *entity.Signature {
	sig := &entity.Signature{}
	params := node.ChildByFieldName("parameters")
	if params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p == nil || p.Type() != "parameter_declaration" {
				continue
			}
			typeNode := p.ChildByFieldName("type")
			typeStr := ""
			if typeNode != nil {
				typeStr = text(typeNode, source)
			}
			for j := 0; j < int(p.NamedChildCount()); j++ {
				ident := p.NamedChild(j)
				if ident != nil && ident.Type() == "identifier" {
					sig.Parameters = append(sig.Parameters, entity.Param{Name: text(ident, source), Type: typeStr})
				}
			}
		}
	}
	if result := node.ChildByFieldName("result"); result != nil {
		sig.ReturnType = text(result, source)
	}
	return sig
}

func docString(node *sitter.Node, source []byte) string {
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
	if prev != nil && prev.Type() == "comment" {
		return text(prev, source)
	}
	return ""
}

func findChildByType(node *sitter.Node, t string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c != nil && c.Type() == t {
			return c
		}
	}
	return nil
}

func text(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

func newEntity(node *sitter.Node, ctx *lang.MatchContext, t entity.Type, name, qname, parentScope string) *entity.Entity {
	start, end := node.StartPoint(), node.EndPoint()
	content := text(node, ctx.SourceCode)
	vis := entity.VisibilityPrivate
	if len(name) > 0 && strings.ToUpper(name[:1]) == name[:1] {
		vis = entity.VisibilityPublic
	}
	return &entity.Entity{
		Name:          name,
		QualifiedName: qname,
		ParentScope:   parentScope,
		EntityType:    t,
		Visibility:    vis,
		LineRange:     entity.LineRange{Start: int(start.Row) + 1, End: int(end.Row) + 1},
		Content:       content,
	}
}
