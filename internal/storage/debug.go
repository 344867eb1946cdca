package storage

import (
	"fmt"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachDebug mounts a live SQL console over the session store on the
// debug handler.
func (db *DB) AttachDebug(debug *tsweb.DebugHandler) error {
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("creating tailsql server: %w", err)
	}
	tsql.SetDB(db.driver+"://formreps", db.SQL, &tailsql.DBOptions{
		Label: "FormReps sessions",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.KV("Database driver", db.driver)
	return nil
}
