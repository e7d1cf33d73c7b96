package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/weaveworks/common/middleware"

	"github.com/convergeproj/converge/pkg/api"
	transport "github.com/convergeproj/converge/pkg/http"
	convergemetrics "github.com/convergeproj/converge/pkg/metrics"
)

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "converge",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{convergemetrics.LabelMethod, "route", "status_code", "ws"})
)

// An API server for the daemon
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()

	// We assume every request that doesn't match a route is a client
	// calling an old or hitherto unsupported API.
	r.NewRoute().Name("NotFound").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})

	return r
}

func NewHandler(s api.Server, r *mux.Router) http.Handler {
	handle := HTTPServer{s}

	r.Get(transport.Ping).HandlerFunc(handle.Ping)
	r.Get(transport.Version).HandlerFunc(handle.Version)
	r.Get(transport.Notify).HandlerFunc(handle.Notify)
	r.Get(transport.ListApplications).HandlerFunc(handle.ListApplications)
	r.Get(transport.Status).HandlerFunc(handle.Status)
	r.Get(transport.TriggerSync).HandlerFunc(handle.TriggerSync)
	r.Get(transport.RemoveApplication).HandlerFunc(handle.RemoveApplication)
	r.Get(transport.ListEvents).HandlerFunc(handle.ListEvents)

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	server api.Server
}

func (s HTTPServer) Ping(w http.ResponseWriter, r *http.Request) {
	if err := s.server.Ping(r.Context()); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) Version(w http.ResponseWriter, r *http.Request) {
	version, err := s.server.Version(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, version)
}

func (s HTTPServer) Notify(w http.ResponseWriter, r *http.Request) {
	var change api.Change
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		transport.WriteError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.server.NotifyChange(r.Context(), change); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s HTTPServer) ListApplications(w http.ResponseWriter, r *http.Request) {
	res, err := s.server.ListApplications(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, res)
}

func (s HTTPServer) Status(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	status, err := s.server.Status(r.Context(), app)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, status)
}

func (s HTTPServer) TriggerSync(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	if err := s.server.TriggerSync(r.Context(), app); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s HTTPServer) RemoveApplication(w http.ResponseWriter, r *http.Request) {
	app := mux.Vars(r)["app"]
	if err := s.server.RemoveApplication(r.Context(), app); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	app := q.Get("app")
	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			transport.WriteError(w, r, http.StatusBadRequest, err)
			return
		}
		limit = n
	}
	events, err := s.server.ListEvents(r.Context(), app, limit)
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, events)
}
