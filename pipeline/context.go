package pipeline

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DarrenZal/koi-node/queue"
	"github.com/DarrenZal/koi-node/resolver"
)

// EmbedFunc computes an embedding for a piece of text, used by the
// cross-reference resolver's semantic tier. A nil EmbedFunc disables it.
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// Context is the shared state passed to every handler: the store, the
// node's own identity, its outgoing queue, and optional embedding support.
type Context struct {
	Pool         *pgxpool.Pool
	NodeRID      string
	EventQueue   *queue.Queue
	Resolver     resolver.Store
	Schemas      *resolver.SchemaRegistry
	EmbedFn      EmbedFunc
	CrossrefMode resolver.Mode
}
