// Package entity defines the typed representation of code entities,
// relationships, file snapshots and outbox records shared across the
// extraction, indexing and retrieval subsystems.
package entity

import "time"

// Type enumerates the kinds of program constructs an extractor can produce.
type Type string

const (
	TypeModule      Type = "module"
	TypeFunction    Type = "function"
	TypeMethod      Type = "method"
	TypeStruct      Type = "struct"
	TypeClass       Type = "class"
	TypeEnum        Type = "enum"
	TypeEnumVariant Type = "enum_variant"
	TypeInterface   Type = "interface"
	TypeTrait       Type = "trait"
	TypeImpl        Type = "impl"
	TypeTypeAlias   Type = "type_alias"
	TypeProperty    Type = "property"
	TypeConstant    Type = "constant"
	TypeStatic      Type = "static"
	TypeVariable    Type = "variable"
	TypeMacro       Type = "macro"
	TypeUnion       Type = "union"
)

// Visibility represents the declared accessibility of an entity.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityPrivate    Visibility = "private"
	VisibilityNone       Visibility = "none"
)

// Language is a supported source language identifier.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageRust       Language = "rust"
)

// Separator returns the qualified-name join separator for the language
// family. Rust uses "::"; the rest of the supported languages use ".".
func (l Language) Separator() string {
	if l == LanguageRust {
		return "::"
	}
	return "."
}

// Param describes one parameter in a signature.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Signature captures a callable's parameter list, return type and modifiers.
type Signature struct {
	Parameters []Param `json:"parameters,omitempty"`
	ReturnType string  `json:"return_type,omitempty"`
	Generics   []string `json:"generics,omitempty"`
	Async      bool    `json:"async,omitempty"`
}

// LineRange is an inclusive 1-based line span within a file.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Valid reports whether the range respects start <= end.
func (r LineRange) Valid() bool { return r.Start <= r.End }

// Entity is the central record produced by the extraction engine and stored
// by the relational store.
type Entity struct {
	// ID is derived deterministically from (RepositoryID, FilePath,
	// QualifiedName) via DeriveID; it is reproducible across re-indexings of
	// identical inputs.
	ID             string         `json:"id"`
	RepositoryID   string         `json:"repository_id"`
	Name           string         `json:"name"`
	QualifiedName  string         `json:"qualified_name"`
	ParentScope    string         `json:"parent_scope,omitempty"`
	EntityType     Type           `json:"entity_type"`
	Visibility     Visibility     `json:"visibility"`
	Language       Language       `json:"language"`
	FilePath       string         `json:"file_path"`
	LineRange      LineRange      `json:"line_range"`
	Content        string         `json:"content,omitempty"`
	DocSummary     string         `json:"documentation_summary,omitempty"`
	Signature      *Signature     `json:"signature,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ContentHash    string         `json:"content_hash"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RelationshipKind enumerates the directed edge kinds between entities.
type RelationshipKind string

const (
	RelContains   RelationshipKind = "Contains"
	RelCalls      RelationshipKind = "Calls"
	RelImports    RelationshipKind = "Imports"
	RelReexports  RelationshipKind = "Reexports"
	RelInherits   RelationshipKind = "Inherits"
	RelImplements RelationshipKind = "Implements"
	RelExtends    RelationshipKind = "Extends"
	RelUses       RelationshipKind = "Uses"
	RelTypeOf     RelationshipKind = "TypeOf"
	RelReferences RelationshipKind = "References"
)

// AllowedRelationshipKinds is the whitelist enforced at the storage boundary
// (§4.5): any relationship whose kind is not present here is rejected.
var AllowedRelationshipKinds = map[RelationshipKind]bool{
	RelContains: true, RelCalls: true, RelImports: true, RelReexports: true,
	RelInherits: true, RelImplements: true, RelExtends: true, RelUses: true,
	RelTypeOf: true, RelReferences: true,
}

// Relationship is a directed edge between two entities. TargetQualifiedName
// is populated when TargetID has not yet been resolved by the cross-file
// resolver (C3); once resolved, TargetID is set and TargetQualifiedName is
// kept for audit purposes.
type Relationship struct {
	SourceID            string           `json:"source_id"`
	TargetID            string           `json:"target_id,omitempty"`
	TargetQualifiedName string           `json:"target_qualified_name,omitempty"`
	Kind                RelationshipKind `json:"kind"`
	Line                int              `json:"line,omitempty"`

	// ImportSourceModule, ImportSymbol and ImportWildcard carry the resolver
	// binding for RelImports/RelReexports edges: the module the import
	// statement names, the symbol it binds TargetQualifiedName to (empty for
	// a bare module import), and whether it is a wildcard/star import.
	ImportSourceModule string `json:"import_source_module,omitempty"`
	ImportSymbol       string `json:"import_symbol,omitempty"`
	ImportWildcard     bool   `json:"import_wildcard,omitempty"`
}

// Snapshot is the per-file indexing fingerprint used to compute tombstones
// on re-index.
type Snapshot struct {
	RepositoryID string    `json:"repository_id"`
	FilePath     string    `json:"file_path"`
	ContentHash  string    `json:"content_hash"`
	CommitHash   string    `json:"commit_hash,omitempty"`
	EntityIDs    []string  `json:"entity_ids"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OutboxTarget is the destination store tag for an outbox record.
type OutboxTarget string

const (
	TargetVector OutboxTarget = "Vector"
	TargetGraph  OutboxTarget = "Graph"
)

// OutboxOp is the kind of mutation an outbox record replicates.
type OutboxOp string

const (
	OpInsert OutboxOp = "Insert"
	OpUpdate OutboxOp = "Update"
	OpDelete OutboxOp = "Delete"
)

// OutboxStatus is the processing state of an outbox record.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxClaimed   OutboxStatus = "claimed"
	OutboxProcessed OutboxStatus = "processed"
	OutboxDead      OutboxStatus = "dead"
)

// OutboxRecord is a pending replication unit from the relational store to a
// derived store (vector or graph).
type OutboxRecord struct {
	ID           int64        `json:"id"`
	Target       OutboxTarget `json:"target"`
	Op           OutboxOp     `json:"op"`
	EntityID     string       `json:"entity_id"`
	Payload      []byte       `json:"payload"`
	RetryCount   int          `json:"retry_count"`
	LastError    string       `json:"last_error,omitempty"`
	Status       OutboxStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty"`
}

// Repository identifies a single indexed source repository.
type Repository struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	LastCommit    string    `json:"last_commit,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
