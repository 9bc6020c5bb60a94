// Package database opens the bridge's SQLite file and applies its schema
// migrations. The transition history and the audit trail live here.
//
// The store is optional. With database.enabled=false the history and audit
// endpoints answer 503 and nothing is recorded.
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx)
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with an optional
// matching .down.sql; the top-level migrations package embeds them.
package database
