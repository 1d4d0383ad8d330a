package services

import (
	"context"

	"domiflash/db"
)

// RecordDispatchTransition appends one row to dispatch_status_history.
// Best effort audit trail: a no-op without a pool, and callers only log
// failures, since the in-memory state transition has already happened and
// must not be blocked by the database.
func RecordDispatchTransition(ctx context.Context, dispatchID, fromStatus, toStatus string, driverChatID int64) error {
	if db.Pool == nil {
		return nil
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO dispatch_status_history (dispatch_id, from_status, to_status, driver_chat_id)
		VALUES ($1, NULLIF($2, ''), $3, $4)`,
		dispatchID, fromStatus, toStatus, driverChatID,
	)
	return err
}
