package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/cron"
)

var errWorkspaceEscape = errors.New("workspace path escapes the configured workspace root")

func cronParse(expr string) (*cron.Expression, error) { return cron.Parse(expr) }

func nowUTC() time.Time { return time.Now().UTC() }

// cronExamples is a fixed curated list exercising every special syntax
// form, useful for a UI's autocomplete.
var cronExamples = []map[string]string{
	{"expr": "0 9 * * 1-5", "description": "every weekday at 9am"},
	{"expr": "*/15 * * * *", "description": "every 15 minutes"},
	{"expr": "0 0 1 * *", "description": "midnight on the 1st of every month"},
	{"expr": "0 0 L * *", "description": "midnight on the last day of the month"},
	{"expr": "0 0 LW * *", "description": "midnight on the last weekday of the month"},
	{"expr": "0 0 15W * *", "description": "midnight on the weekday nearest the 15th"},
	{"expr": "0 0 * * fri#2", "description": "midnight on the second Friday"},
	{"expr": "@daily", "description": "alias for 0 0 * * *"},
	{"expr": "0 */6 * * *", "description": "every 6 hours"},
}

func (s *Server) handleCronExamples(w http.ResponseWriter, r *http.Request) {
	writeOK(w, cronExamples)
}

func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, ok := s.sched.RunLog(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such scheduled task: "+id)
		return
	}
	writeOK(w, entries)
}
