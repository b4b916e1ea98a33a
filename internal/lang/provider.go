// Package lang implements the tree-sitter–driven extraction engine (C2):
// a per-language grammar and query registry that dispatches query matches to
// entity handlers and assembles qualified names by walking ancestor scopes.
package lang

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/madeindigio/codesearch/internal/entity"
)

// ScopePattern is a pair (ast-node-kind, field-name) whose presence in an
// ancestor chain contributes a segment to a qualified name (§4.1).
type ScopePattern struct {
	NodeKind  string
	FieldName string
}

// MatchContext is handed to a Handler for one query match.
type MatchContext struct {
	FilePath     string
	RepositoryID string
	SourceCode   []byte
	Provider     Provider
}

// Handler maps one tree-sitter query match to zero or more entities and
// intra-file relationships. Relationships whose target is not yet known as
// an entity id carry TargetQualifiedName instead; C3 resolves it.
type Handler struct {
	// Name identifies the handler for diagnostics.
	Name string
	// Query is the tree-sitter query source executed against the file's tree.
	Query string
	// Handle receives the named captures of one match (by capture name) and
	// produces entities/relationships. Handle is responsible for computing
	// each entity's QualifiedName itself, normally via BuildQualifiedName
	// with the provider's own ScopePatterns/Separator; the engine only
	// prepends the file's module prefix and fills in the fields a handler
	// cannot know (RepositoryID, FilePath, ID, ContentHash).
	Handle func(ctx *MatchContext, captures map[string]*sitter.Node) ([]*entity.Entity, []*entity.Relationship, error)
}

// ModulePathDeriver computes a module-scoped qualified-name prefix from a
// file path, for language-specific overrides that ancestor-walking alone
// cannot express (§4.1): file-path-derived modules, __init__/crate-root
// folding.
type ModulePathDeriver func(filePathRelativeToRoot string) string

// Provider is the language plug-in contract (§4.1, §9 "dynamic dispatch by
// language"): a value record registered into a process-wide registry keyed
// by file extension, not a class hierarchy.
type Provider interface {
	Language() entity.Language
	Extensions() []string
	Grammar() *sitter.Language
	Handlers() []*Handler
	ScopePatterns() []ScopePattern
	Separator() string
	// ModulePath returns the module-qualified-name prefix for a file, or ""
	// if the language has no file-scoped module concept.
	ModulePath(relPath string) string
}

// Registry maps file extensions and languages to providers. It is the
// "process-wide registry keyed by file extension" of §9.
type Registry struct {
	byExt  map[string]Provider
	byLang map[entity.Language]Provider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]Provider),
		byLang: make(map[entity.Language]Provider),
	}
}

// Register adds a provider for every extension and language it declares.
func (r *Registry) Register(p Provider) {
	for _, ext := range p.Extensions() {
		r.byExt[ext] = p
	}
	r.byLang[p.Language()] = p
}

// ForExtension looks up a provider by file extension (including the dot,
// e.g. ".go").
func (r *Registry) ForExtension(ext string) (Provider, bool) {
	p, ok := r.byExt[ext]
	return p, ok
}

// ForLanguage looks up a provider by language identifier.
func (r *Registry) ForLanguage(l entity.Language) (Provider, bool) {
	p, ok := r.byLang[l]
	return p, ok
}

// Languages returns the set of enabled languages, used to honor the
// `languages.enabled` configuration option.
func (r *Registry) Languages() []entity.Language {
	out := make([]entity.Language, 0, len(r.byLang))
	for l := range r.byLang {
		out = append(out, l)
	}
	return out
}

// ErrUnsupportedExtension is returned when no provider claims a file's
// extension.
type ErrUnsupportedExtension struct{ Ext string }

func (e *ErrUnsupportedExtension) Error() string {
	return fmt.Sprintf("lang: no provider registered for extension %q", e.Ext)
}
