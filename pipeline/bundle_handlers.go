package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/resolver"
)

// confidenceEpsilon avoids float flap when re-resolving an already-resolved
// cross-reference: a confidence swing smaller than this is not a change.
const confidenceEpsilon = 0.001

func confidenceChanged(oldConf, newConf float64) bool {
	return math.Abs(oldConf-newConf) > confidenceEpsilon
}

// EntityTypeValidator logs unrecognized entity types at debug level; it
// never stops the chain since unknown types are expected from peers running
// a different ontology version.
func EntityTypeValidator(log logger.Logger, schemas *resolver.SchemaRegistry) HandlerFunc {
	return func(_ context.Context, _ *Context, obj *Object) error {
		if obj.EntityType == "" {
			return nil
		}
		if schemas == nil {
			return nil
		}
		if schemas.For(obj.EntityType) == resolver.DefaultSchema {
			log.Debug("unrecognized entity type", logger.String("entity_type", obj.EntityType))
		}
		return nil
	}
}

// CrossReferenceResolver resolves the object's entity against the local
// registry via the multi-tier resolver and upserts a cross-reference row.
// On an UPDATE event it refreshes an existing cross-ref in place when the
// resolved target, relationship, or confidence changed.
func CrossReferenceResolver(log logger.Logger) HandlerFunc {
	return func(ctx context.Context, hctx *Context, obj *Object) error {
		entityName := obj.EntityName
		entityType := obj.EntityType

		localURI := ""
		confidence := 0.0
		relationship := string(resolver.RelationshipUnresolved)

		if entityName != "" && hctx.Resolver != nil {
			mode := hctx.CrossrefMode
			if mode == "" {
				mode = resolver.ModeExactAlias
			}
			embed := func(ctx context.Context, text string) ([]float64, error) {
				if hctx.EmbedFn == nil {
					return nil, nil
				}
				return hctx.EmbedFn(ctx, text)
			}
			if mode == resolver.ModeSemantic && hctx.EmbedFn == nil {
				mode = resolver.ModeFuzzy // graceful fallback when no embedder is registered
			}

			result, err := resolver.Resolve(ctx, hctx.Resolver, hctx.Schemas, entityName, entityType, mode, embed)
			if err != nil {
				return fmt.Errorf("pipeline: resolve entity: %w", err)
			}
			localURI = result.URI
			confidence = result.Confidence
			relationship = string(result.Relationship)
		}

		if localURI == "" {
			localURI = fmt.Sprintf("unresolved:%s:%s", entityType, entityName)
			relationship = string(resolver.RelationshipUnresolved)
			confidence = 0.0
		}

		if err := upsertCrossRef(ctx, hctx, obj, localURI, relationship, confidence, log); err != nil {
			return err
		}

		obj.LocalURI = localURI
		obj.CrossRefConfidence = confidence
		obj.CrossRefRelationship = relationship
		return nil
	}
}

func upsertCrossRef(ctx context.Context, hctx *Context, obj *Object, localURI, relationship string, confidence float64, log logger.Logger) error {
	var existingID int64
	var existingURI, existingRelationship string
	var existingConfidence float64

	err := hctx.Pool.QueryRow(ctx, `
		SELECT id, local_uri, relationship, confidence FROM cross_refs
		WHERE remote_rid = $1 AND remote_node = $2
	`, obj.RID, obj.SourceNode).Scan(&existingID, &existingURI, &existingRelationship, &existingConfidence)

	switch {
	case err == nil:
		needsUpdate := false
		if existingRelationship == string(resolver.RelationshipUnresolved) && relationship != string(resolver.RelationshipUnresolved) {
			needsUpdate = true
		} else if obj.EventType == "UPDATE" &&
			(existingURI != localURI || existingRelationship != relationship || confidenceChanged(existingConfidence, confidence)) {
			needsUpdate = true
		}
		if !needsUpdate {
			return nil
		}
		_, err = hctx.Pool.Exec(ctx, `
			UPDATE cross_refs SET local_uri = $1, relationship = $2, confidence = $3, updated_at = NOW()
			WHERE id = $4
		`, localURI, relationship, confidence, existingID)
		if err != nil {
			return fmt.Errorf("pipeline: update cross-ref: %w", err)
		}
		log.Info("updated cross-ref",
			logger.String("rid", obj.RID),
			logger.String("from_relationship", existingRelationship),
			logger.String("to_relationship", relationship))
		return nil

	case err == pgx.ErrNoRows:
		_, err = hctx.Pool.Exec(ctx, `
			INSERT INTO cross_refs (local_uri, remote_rid, remote_node, relationship, confidence)
			VALUES ($1, $2, $3, $4, $5)
		`, localURI, obj.RID, obj.SourceNode, relationship, confidence)
		if err != nil {
			return fmt.Errorf("pipeline: insert cross-ref: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("pipeline: lookup cross-ref: %w", err)
	}
}
