package pipeline

import (
	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/resolver"
)

// DefaultHandlers returns the stock handler chain: RID-phase self-reference
// and FORGET handling, Bundle-phase entity validation and cross-reference
// resolution, and a Final-phase result log.
func DefaultHandlers(log logger.Logger, schemas *resolver.SchemaRegistry) []Handler {
	return []Handler{
		{Phase: PhaseRID, Name: "block_self_referential", Fn: BlockSelfReferential(log)},
		{Phase: PhaseRID, Name: "set_forget_flag", Fn: SetForgetFlag},
		{Phase: PhaseRID, Name: "forget_delete_and_stop", Fn: ForgetDeleteAndStop(log)},
		{Phase: PhaseRID, Name: "extract_entity_type", Fn: ExtractEntityType},

		{Phase: PhaseBundle, Name: "entity_type_validator", Fn: EntityTypeValidator(log, schemas)},
		{Phase: PhaseBundle, Name: "cross_reference_resolver", Fn: CrossReferenceResolver(log)},

		{Phase: PhaseFinal, Name: "log_processing_result", Fn: LogProcessingResult(log)},
	}
}
