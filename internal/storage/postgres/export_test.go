package postgres

import (
	"context"
	"fmt"

	"github.com/scrypster/multihop/internal/storage/sqlgraph"
)

// TruncateForTest removes every node and edge.
func TruncateForTest(ctx context.Context, store *sqlgraph.Store) error {
	_, err := store.DB().ExecContext(ctx, "TRUNCATE TABLE graph_relations, graph_entities")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate graph tables: %w", err)
	}
	return nil
}
