package lang

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/madeindigio/codesearch/internal/entity"
)

// FileError is reported for files that fail to parse; per §4.1 this is
// non-fatal, the file is simply skipped.
type FileError struct {
	FilePath string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("lang: parse failed for %s: %v", e.FilePath, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ExtractResult is the per-file output of the extraction engine.
type ExtractResult struct {
	FilePath      string
	Entities      []*entity.Entity
	Relationships []*entity.Relationship
}

// Engine parses a single file with its language provider and runs every
// registered handler's query against the resulting tree, then assembles
// qualified names and fixes up parent_scope (§4.1).
//
// Engine is not safe for concurrent use: tree-sitter parsers are not
// thread-safe, so the indexing pipeline constructs one Engine per extraction
// worker (see internal/pipeline).
type Engine struct {
	registry *Registry
	parser   *sitter.Parser
}

// NewEngine creates an extraction engine backed by the given provider
// registry, with its own dedicated tree-sitter parser.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry, parser: sitter.NewParser()}
}

// ExtractFile parses sourceCode according to the provider matching the
// file's extension and returns its entities and intra-file relationships.
// relPath is the file path relative to the repository root, used both for
// entity.FilePath and for module-path derivation.
func (e *Engine) ExtractFile(ctx context.Context, repositoryID, relPath string, sourceCode []byte) (*ExtractResult, error) {
	ext := filepath.Ext(relPath)
	provider, ok := e.registry.ForExtension(ext)
	if !ok {
		return nil, &ErrUnsupportedExtension{Ext: ext}
	}

	e.parser.SetLanguage(provider.Grammar())
	tree, err := e.parser.ParseCtx(ctx, nil, sourceCode)
	if err != nil {
		return nil, &FileError{FilePath: relPath, Err: err}
	}
	defer tree.Close()

	mctx := &MatchContext{
		FilePath:     relPath,
		RepositoryID: repositoryID,
		SourceCode:   sourceCode,
		Provider:     provider,
	}

	var entities []*entity.Entity
	var rels []*entity.Relationship

	for _, h := range provider.Handlers() {
		q, err := sitter.NewQuery([]byte(h.Query), provider.Grammar())
		if err != nil {
			// A malformed handler query is a programmer error in the
			// provider, not a per-file failure; skip this handler only.
			continue
		}
		cursor := sitter.NewQueryCursor()
		cursor.Exec(q, tree.RootNode())

		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, sourceCode)

			captures := make(map[string]*sitter.Node, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				node := c.Node
				captures[name] = node
			}

			hEntities, hRels, err := h.Handle(mctx, captures)
			if err != nil {
				// Per-entity/per-match errors are logged by the caller and
				// skipped; the engine itself keeps going (§4.1 failure
				// semantics).
				continue
			}
			for _, en := range hEntities {
				e.finishEntity(en, provider, repositoryID, relPath, captures)
			}
			entities = append(entities, hEntities...)
			rels = append(rels, hRels...)
		}
	}

	fixupParentScopes(entities)
	rels = append(rels, containsRelationships(entities)...)

	for i := range rels {
		for _, en := range entities {
			if rels[i].TargetQualifiedName == en.QualifiedName {
				rels[i].TargetID = en.ID
			}
		}
	}

	return &ExtractResult{FilePath: relPath, Entities: entities, Relationships: rels}, nil
}

// finishEntity populates the fields a Handler does not set directly:
// RepositoryID, FilePath, Language, ID and ContentHash. QualifiedName and
// Name must already be set by the Handler; when the provider declares a
// module prefix, the engine prepends it to every entity's QualifiedName that
// does not already start with it, nested declarations included. Module
// entities themselves already carry their full module path as QualifiedName
// (it IS the prefix), so they are excluded from prefixing.
func (e *Engine) finishEntity(en *entity.Entity, provider Provider, repositoryID, relPath string, _ map[string]*sitter.Node) {
	en.RepositoryID = repositoryID
	en.FilePath = relPath
	en.Language = provider.Language()

	if modPrefix := provider.ModulePath(relPath); modPrefix != "" && en.EntityType != entity.TypeModule &&
		!strings.HasPrefix(en.QualifiedName, modPrefix+provider.Separator()) {
		en.QualifiedName = modPrefix + provider.Separator() + en.QualifiedName
	}

	en.ID = entity.DeriveID(repositoryID, relPath, en.QualifiedName)
	en.ContentHash = entity.HashContent(en.Content)
}

// containsRelationships emits one RelContains edge per entity whose
// ParentScope was resolved by fixupParentScopes, satisfying the invariant
// that every non-null parent_scope has a matching Contains edge (§3).
func containsRelationships(entities []*entity.Entity) []*entity.Relationship {
	byQName := make(map[string]*entity.Entity, len(entities))
	for _, en := range entities {
		byQName[en.QualifiedName] = en
	}

	var rels []*entity.Relationship
	for _, en := range entities {
		if en.ParentScope == "" {
			continue
		}
		parent, ok := byQName[en.ParentScope]
		if !ok {
			continue
		}
		rels = append(rels, &entity.Relationship{
			SourceID:            parent.ID,
			TargetID:            en.ID,
			TargetQualifiedName: en.QualifiedName,
			Kind:                entity.RelContains,
		})
	}
	return rels
}

// fixupParentScopes assigns each entity's ParentScope as the longest strict
// prefix (split on the language separator) that identifies another emitted
// entity in the same file, per §4.1. Entities with no matching parent are
// left with an empty ParentScope.
func fixupParentScopes(entities []*entity.Entity) {
	byName := make(map[string]*entity.Entity, len(entities))
	for _, en := range entities {
		byName[en.QualifiedName] = en
	}

	for _, en := range entities {
		if en.ParentScope != "" {
			continue
		}
		sep := separatorOf(en.QualifiedName)
		segments := strings.Split(en.QualifiedName, sep)
		for i := len(segments) - 1; i > 0; i-- {
			candidate := strings.Join(segments[:i], sep)
			if parent, ok := byName[candidate]; ok && parent.QualifiedName != en.QualifiedName {
				en.ParentScope = parent.QualifiedName
				break
			}
		}
	}
}

// separatorOf guesses the separator actually present in a qualified name;
// both "::" and "." are supported across the registered languages.
func separatorOf(qualifiedName string) string {
	if strings.Contains(qualifiedName, "::") {
		return "::"
	}
	return "."
}

// BuildQualifiedName walks the ancestor chain of node, collecting a path
// segment from every ancestor whose (kind, field) matches one of the
// provider's scope patterns, then appends name. Segments are accumulated
// root-to-leaf (§4.1).
func BuildQualifiedName(node *sitter.Node, sourceCode []byte, patterns []ScopePattern, separator, name string) string {
	var segments []string
	cur := node.Parent()
	for cur != nil {
		for _, p := range patterns {
			if cur.Type() != p.NodeKind {
				continue
			}
			field := cur.ChildByFieldName(p.FieldName)
			if field == nil {
				continue
			}
			segments = append(segments, string(sourceCode[field.StartByte():field.EndByte()]))
			break
		}
		cur = cur.Parent()
	}

	// segments were collected leaf-to-root; reverse to root-to-leaf.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	segments = append(segments, name)
	return strings.Join(segments, separator)
}
