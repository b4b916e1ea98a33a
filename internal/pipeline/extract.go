package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
	"github.com/madeindigio/codesearch/internal/resolver"
)

// fileExtraction is one file's extraction output, the unit produced by the
// Extract stage and consumed by the resolve/batch step.
type fileExtraction struct {
	FilePath      string
	ContentHash   string
	Entities      []*entity.Entity
	Relationships []*entity.Relationship
}

// runExtractStage starts p.Cfg.ExtractWorkers workers, each with its own
// lang.Engine (tree-sitter parsers are not safe for concurrent use — the
// same constraint the teacher's processFiles documents), reading file paths
// from pathCh and emitting fileExtraction values to extractedCh.
func runExtractStage(ctx context.Context, p *Pipeline, repositoryID, rootPath string, pathCh <-chan string, extractedCh chan<- *fileExtraction, errs *errCollector) *sync.WaitGroup {
	var wg sync.WaitGroup
	workers := p.Cfg.ExtractWorkers
	if workers < 1 {
		workers = 1
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine := lang.NewEngine(p.Registry)
			for relPath := range pathCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				content, err := readFile(rootPath, relPath)
				if err != nil {
					errs.add(fmt.Errorf("pipeline: read %s: %w", relPath, err))
					continue
				}

				result, err := engine.ExtractFile(ctx, repositoryID, relPath, content)
				if err != nil {
					// Per §4.1, a parse failure is reported but non-fatal: the
					// file is skipped.
					p.Logger.Warn("pipeline: skipping file that failed to parse", "file", relPath, "error", err)
					errs.add(err)
					continue
				}

				fe := &fileExtraction{
					FilePath:      relPath,
					ContentHash:   entity.HashContent(string(content)),
					Entities:      result.Entities,
					Relationships: result.Relationships,
				}
				select {
				case <-ctx.Done():
					return
				case extractedCh <- fe:
				}
			}
		}()
	}
	return &wg
}

// resolveAndBatch consumes every fileExtraction, builds the cross-file
// resolver (C3) graph from the entities and Import/Reexport edges C2
// produced, resolves every reference left unresolved by intra-file
// extraction by walking import and reexport chains (§4.2), then emits
// Batches to batchCh, flushing once a batch holds at least BatchSize
// entities. Whole files are never split, so a batch can be larger than
// BatchSize and the last one smaller.
//
// Definitions are grouped by module using the TypeModule entity each file
// carries (moduleOfFile; a file with none groups under the empty-string
// module, which degrades to a flat repository-wide namespace). Relationships
// of kind RelImports/RelReexports become resolver.Import bindings; every
// other relationship left with an empty TargetID and a non-empty
// TargetQualifiedName becomes a resolver.Reference keyed by that local name.
// Resolve() returns one Resolution per Reference in registration order,
// which lets the results be correlated back to relationships positionally.
func resolveAndBatch(_ context.Context, repositoryID, commitHash, collectionID string, extractedCh <-chan *fileExtraction, batchCh chan<- Batch) {
	var files []*fileExtraction
	for fe := range extractedCh {
		files = append(files, fe)
	}

	graph := resolver.New()
	for _, fe := range files {
		module := moduleOfFile(fe.Entities)
		for _, e := range fe.Entities {
			graph.AddDefinition(resolver.Definition{
				EntityID:      e.ID,
				QualifiedName: e.QualifiedName,
				Name:          e.Name,
				FilePath:      fe.FilePath,
				Module:        module,
			})
		}
		for _, rel := range fe.Relationships {
			if rel.Kind != entity.RelImports && rel.Kind != entity.RelReexports {
				continue
			}
			graph.AddImport(resolver.Import{
				FilePath:     fe.FilePath,
				LocalName:    rel.TargetQualifiedName,
				SourceModule: rel.ImportSourceModule,
				Symbol:       rel.ImportSymbol,
				Wildcard:     rel.ImportWildcard,
				Public:       rel.Kind == entity.RelReexports,
			})
		}
	}

	var pending []*entity.Relationship
	for _, fe := range files {
		for _, rel := range fe.Relationships {
			if rel.TargetID != "" || rel.TargetQualifiedName == "" {
				continue
			}
			graph.AddReference(resolver.Reference{
				FilePath:     fe.FilePath,
				LocalName:    rel.TargetQualifiedName,
				SourceEntity: rel.SourceID,
				Line:         rel.Line,
			})
			pending = append(pending, rel)
		}
	}

	for i, res := range graph.Resolve() {
		if res.Resolved {
			pending[i].TargetID = res.Target.EntityID
		}
	}
	logResolutionAudit(graph)

	entities := make([]*entity.Entity, 0, 256)
	relationships := make([]*entity.Relationship, 0, 256)
	fileIndices := make(map[string][]int, len(files))

	for _, fe := range files {
		start := len(entities)
		entities = append(entities, fe.Entities...)
		relationships = append(relationships, fe.Relationships...)
		indices := make([]int, len(fe.Entities))
		for i := range fe.Entities {
			indices[i] = start + i
		}
		fileIndices[fe.FilePath] = indices

		if len(entities) >= BatchSize {
			flushBatch(repositoryID, commitHash, collectionID, &entities, &relationships, &fileIndices, batchCh)
		}
	}

	if len(entities) > 0 {
		flushBatch(repositoryID, commitHash, collectionID, &entities, &relationships, &fileIndices, batchCh)
	}
}

// moduleOfFile returns the QualifiedName of the file's first TypeModule
// entity, or "" if the language provider emitted none (untagged files share
// the empty module). Go's package entity is a TypeModule too, so Go files
// group under its "/"-prefixed name.
func moduleOfFile(entities []*entity.Entity) string {
	for _, e := range entities {
		if e.EntityType == entity.TypeModule {
			return e.QualifiedName
		}
	}
	return ""
}

// logResolutionAudit surfaces the resolver's read-only evaluation mode
// (§4.2) as aggregate resolved/total counts after every resolve pass.
func logResolutionAudit(graph *resolver.Graph) {
	audit := graph.Audit()
	var resolved, total int
	for _, fa := range audit {
		resolved += fa.ResolvedCount
		total += fa.TotalCount
	}
	if total == 0 {
		return
	}
	slog.Default().Info("cross-file resolution audit", "resolved", resolved, "total", total, "files", len(audit))
}

func flushBatch(repositoryID, commitHash, collectionID string, entities *[]*entity.Entity, relationships *[]*entity.Relationship, fileIndices *map[string][]int, batchCh chan<- Batch) {
	batchCh <- Batch{
		RepositoryID:  repositoryID,
		CommitHash:    commitHash,
		CollectionID:  collectionID,
		Entities:      *entities,
		Relationships: *relationships,
		FileIndices:   *fileIndices,
	}
	*entities = make([]*entity.Entity, 0, BatchSize)
	*relationships = make([]*entity.Relationship, 0, BatchSize)
	*fileIndices = make(map[string][]int)
}
