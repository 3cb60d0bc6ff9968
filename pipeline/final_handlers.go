package pipeline

import (
	"context"

	"github.com/DarrenZal/koi-node/internal/logger"
)

// LogProcessingResult logs the cross-reference outcome once an object has
// cleared every preceding phase.
func LogProcessingResult(log logger.Logger) HandlerFunc {
	return func(_ context.Context, _ *Context, obj *Object) error {
		log.Info("cross-ref resolved",
			logger.String("rid", obj.RID),
			logger.String("local_uri", obj.LocalURI),
			logger.String("relationship", obj.CrossRefRelationship),
			logger.Any("confidence", obj.CrossRefConfidence))
		return nil
	}
}
