package pipeline

import (
	"context"
	"strings"

	"github.com/DarrenZal/koi-node/internal/logger"
)

// BlockSelfReferential drops events where the RID is the node's own RID but
// the event arrived from a different source: "don't let anyone else tell me
// who I am".
func BlockSelfReferential(log logger.Logger) HandlerFunc {
	return func(_ context.Context, hctx *Context, obj *Object) error {
		if obj.RID == hctx.NodeRID && obj.SourceNode != "" && obj.SourceNode != hctx.NodeRID {
			log.Info("blocked self-referential event", logger.String("rid", obj.RID), logger.String("source_node", obj.SourceNode))
			return ErrStopChain
		}
		return nil
	}
}

// SetForgetFlag normalizes a FORGET event_type onto the object for
// downstream handlers to branch on.
func SetForgetFlag(_ context.Context, _ *Context, obj *Object) error {
	if obj.EventType == "FORGET" {
		obj.NormalizedEventType = "FORGET"
	}
	return nil
}

// ForgetDeleteAndStop removes the cross-reference for a forgotten RID and
// halts the pipeline: a FORGET carries no bundle to process further.
func ForgetDeleteAndStop(log logger.Logger) HandlerFunc {
	return func(ctx context.Context, hctx *Context, obj *Object) error {
		if obj.NormalizedEventType != "FORGET" {
			return nil
		}
		_, err := hctx.Pool.Exec(ctx, `
			DELETE FROM cross_refs WHERE remote_rid = $1 AND remote_node = $2
		`, obj.RID, obj.SourceNode)
		if err != nil {
			return err
		}
		log.Info("removed cross-ref for forgotten rid", logger.String("rid", obj.RID))
		return ErrStopChain
	}
}

// ExtractEntityType pulls entity_name/entity_type out of the bundle
// contents, stripping a leading ontology prefix (e.g. "bkc:") if present.
func ExtractEntityType(_ context.Context, _ *Context, obj *Object) error {
	if obj.Contents == nil {
		obj.Contents = map[string]any{}
	}
	obj.EntityName, _ = obj.Contents["name"].(string)

	entityType, _ := obj.Contents["@type"].(string)
	if entityType == "" {
		entityType, _ = obj.Contents["entity_type"].(string)
	}
	obj.EntityType = strings.TrimPrefix(entityType, "bkc:")
	return nil
}
