package api

import (
	"net/http"
	"strings"

	"github.com/sentrygrid/twinctl/internal/model"
)

// NewRouter builds the REST port's handler tree on the standard library's
// ServeMux with manual path-segment parsing rather than a third-party
// router.
func NewRouter(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/devices/", func(w http.ResponseWriter, r *http.Request) {
		segs := splitPath(strings.TrimPrefix(r.URL.Path, "/devices/"))
		if len(segs) < 2 {
			writeProblem(w, http.StatusNotFound, "not found", "expected /devices/{controller}/{component}[/intent]")
			return
		}
		deviceId := model.DeviceId{ControllerId: segs[0], ComponentId: segs[1]}

		switch {
		case len(segs) == 3 && segs[2] == "intent" && r.Method == http.MethodPut:
			h.PutIntent(w, r, deviceId)
		case len(segs) == 2 && r.Method == http.MethodGet:
			h.GetTwin(w, r, deviceId)
		case len(segs) == 2 && r.Method == http.MethodDelete:
			h.DeleteDevice(w, r, deviceId)
		default:
			writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", r.Method+" "+r.URL.Path)
		}
	})

	mux.HandleFunc("/overrides/", func(w http.ResponseWriter, r *http.Request) {
		segs := splitPath(strings.TrimPrefix(r.URL.Path, "/overrides/"))
		if len(segs) < 2 {
			writeProblem(w, http.StatusNotFound, "not found", "expected /overrides/{targetId}/{category}")
			return
		}
		targetId := segs[0]
		category := model.OverrideCategory(segs[1])

		switch r.Method {
		case http.MethodPut:
			h.PutOverride(w, r, targetId, category)
		case http.MethodDelete:
			scope := model.ScopeDevice
			if r.URL.Query().Get("scope") == string(model.ScopeSystem) {
				scope = model.ScopeSystem
			}
			h.DeleteOverride(w, r, targetId, category, scope)
		default:
			writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", r.Method+" "+r.URL.Path)
		}
	})

	mux.HandleFunc("/systems", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeProblem(w, http.StatusMethodNotAllowed, "method not allowed", r.Method+" "+r.URL.Path)
			return
		}
		h.PostSystem(w, r)
	})

	mux.HandleFunc("/systems/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/systems/")
		if id == "" || r.Method != http.MethodGet {
			writeProblem(w, http.StatusNotFound, "not found", r.URL.Path)
			return
		}
		h.GetSystem(w, r, id)
	})

	return mux
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
