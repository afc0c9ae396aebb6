package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// PoolSource resolves the connection pool for the tenant on the context.
// *db.Manager satisfies it.
type PoolSource interface {
	Get(ctx context.Context, tenant db.TenantID) (*db.Entry, error)
}

// Recorder writes audit rows into the calling tenant's audit_logs table.
// Every tenant schema has the table before its pool is handed out, so
// inserts here never race schema setup.
type Recorder struct {
	pools  PoolSource
	logger zerolog.Logger
}

func NewRecorder(pools PoolSource, logger zerolog.Logger) *Recorder {
	return &Recorder{pools: pools, logger: logger}
}

const insertEntry = `
	INSERT INTO audit_logs (
		id, item_id, item_type, event, actor_id, actor_type,
		object_changes, request_id, remote_addr, user_agent
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Record inserts one audit row for the tenant on ctx. The actor is taken
// from the entry when set, otherwise from the authenticated user on ctx.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	tenant, ok := db.TenantFromContext(ctx)
	if !ok {
		return db.ErrNoTenant
	}

	if e.ActorID == "" {
		e.ActorID = auth.UserIDFromContext(ctx)
		if e.ActorID != "" {
			e.ActorType = "user"
		}
	}

	changes, err := encodeChanges(e.ObjectChanges)
	if err != nil {
		return err
	}

	entry, err := r.pools.Get(ctx, tenant)
	if err != nil {
		return fmt.Errorf("resolve pool for %s: %w", tenant, err)
	}

	_, err = entry.Pool().Exec(ctx, insertEntry,
		uuid.New(), e.ItemID, e.ItemType, string(e.Event), e.ActorID, e.ActorType,
		changes, e.RequestID, e.RemoteAddr, e.UserAgent)
	if err != nil {
		return fmt.Errorf("insert audit row for %s: %w", tenant, err)
	}

	r.logger.Debug().
		Str("tenant", tenant.String()).
		Str("item_type", e.ItemType).
		Str("event", string(e.Event)).
		Msg("audit row recorded")
	return nil
}

// encodeChanges marshals the change set for the jsonb column. A nil map
// becomes SQL NULL rather than the string "null".
func encodeChanges(changes map[string]interface{}) ([]byte, error) {
	if changes == nil {
		return nil, nil
	}
	buf, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("encode object_changes: %w", err)
	}
	return buf, nil
}
