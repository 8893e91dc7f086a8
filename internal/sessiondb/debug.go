package sessiondb

import (
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rigcam/internal/httputil"
)

// AttachAdminRoutes mounts the session history and a tailsql console under
// /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return err
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Session DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	// Query params:
	//   - limit (optional, default 50)
	//   - id (optional) returns that session's transitions instead
	debug.HandleFunc("sessions", "recent acquisition sessions (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("id"); id != "" {
			trs, err := db.Transitions(r.Context(), id)
			if err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
			if len(trs) == 0 {
				httputil.NotFound(w, "unknown session "+id)
				return
			}
			httputil.WriteJSONOK(w, trs)
			return
		}
		limit, err := httputil.QueryInt(r, "limit", 50)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		sessions, err := db.Sessions(r.Context(), limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if sessions == nil {
			sessions = []Session{}
		}
		httputil.WriteJSONOK(w, sessions)
	})
	return nil
}
