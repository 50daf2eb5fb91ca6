package web

import (
	"context"
	"dagsync/client"
	"dagsync/internal/logger"
	"dagsync/types"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// DetailFactory creates a detail observer for a new panel.
type DetailFactory func() (*client.DetailObserver, error)

// HttpRouteHandler exposes the list observer and any number of detail panels
// to a renderer as JSON snapshots and actions.
type HttpRouteHandler struct {
	list      *client.ListObserver
	newDetail DetailFactory
	log       *logger.Logger
	Port      uint
	now       func() time.Time

	mu     sync.Mutex
	panels map[string]*client.DetailObserver
}

func NewRouteHandler(list *client.ListObserver, newDetail DetailFactory, log *logger.Logger, port uint) *HttpRouteHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HttpRouteHandler{
		list:      list,
		newDetail: newDetail,
		log:       log.With("component", "web"),
		Port:      port,
		now:       time.Now,
		panels:    make(map[string]*client.DetailObserver),
	}
}

func (handler *HttpRouteHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", handler.handleListJobs)
		r.Put("/filter", handler.handleSetFilter)
		r.Post("/refresh", handler.handleRefresh)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", handler.handleGetJob)
			r.Post("/trigger", handler.handleTrigger)
			r.Post("/pause", handler.handleListAction)
			r.Post("/unpause", handler.handleListAction)
			r.Post("/cancel", handler.handleListAction)
			r.Post("/favorite", handler.handleFavorite)
		})
	})

	r.Route("/panels", func(r chi.Router) {
		r.Post("/", handler.handleCreatePanel)
		r.Route("/{panelID}", func(r chi.Router) {
			r.Get("/", handler.handleGetPanel)
			r.Delete("/", handler.handleDisposePanel)
			r.Post("/run", handler.handleGoToRun)
			r.Post("/refresh", handler.handlePanelRefresh)
			r.Post("/trigger", handler.handlePanelTrigger)
			r.Post("/pause", handler.handlePanelAction)
			r.Post("/unpause", handler.handlePanelAction)
			r.Post("/cancel", handler.handlePanelAction)
		})
	})
	return r
}

// Serve listens on Port until ctx is done, then shuts down and disposes open panels.
func (handler *HttpRouteHandler) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", handler.Port)
	srv := &http.Server{Addr: addr, Handler: handler.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	printBanner(addr)
	err := srv.ListenAndServe()
	handler.disposePanels()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type listSnapshot struct {
	Filter types.JobFilter `json:"filter"`
	Total  int             `json:"total"`
	Jobs   []jobView       `json:"jobs"`
}

func (handler *HttpRouteHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, handler.listSnapshot())
}

func (handler *HttpRouteHandler) listSnapshot() listSnapshot {
	now := handler.now()
	visible := handler.list.Visible()
	views := make([]jobView, 0, len(visible))
	for _, job := range visible {
		views = append(views, newJobView(job, now))
	}
	return listSnapshot{Filter: handler.list.Filter(), Total: len(handler.list.Jobs()), Jobs: views}
}

func (handler *HttpRouteHandler) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var filter types.JobFilter
	if err := decodeJSON(r, &filter); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	handler.list.SetFilter(filter)
	writeJSON(w, http.StatusOK, handler.listSnapshot())
}

func (handler *HttpRouteHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := handler.list.RefreshVisibleRunStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"refreshed": refreshed})
}

func (handler *HttpRouteHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := handler.list.Job(chi.URLParam(r, "jobID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, newJobView(*job, handler.now()))
}

type triggerRequest struct {
	Conf        map[string]any `json:"conf"`
	LogicalDate *time.Time     `json:"logical_date"`
}

func (handler *HttpRouteHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	run, err := handler.list.Trigger(r.Context(), chi.URLParam(r, "jobID"), req.Conf, req.LogicalDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (handler *HttpRouteHandler) handleListAction(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	var err error
	switch lastSegment(r) {
	case "pause":
		err = handler.list.Pause(r.Context(), jobID)
	case "unpause":
		err = handler.list.Unpause(r.Context(), jobID)
	case "cancel":
		err = handler.list.Cancel(r.Context(), jobID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	job, ok := handler.list.Job(jobID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(*job, handler.now()))
}

func (handler *HttpRouteHandler) handleFavorite(w http.ResponseWriter, r *http.Request) {
	favorite, err := handler.list.ToggleFavorite(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": favorite})
}

type panelRequest struct {
	JobID string `json:"job_id"`
	RunID string `json:"run_id"`
}

type panelSnapshot struct {
	PanelID string           `json:"panel_id"`
	Focus   client.Focus     `json:"focus"`
	Job     *jobView         `json:"job,omitempty"`
	Run     *types.RunRecord `json:"run,omitempty"`
	Polling bool             `json:"polling"`
}

func (handler *HttpRouteHandler) panelSnapshot(id string, d *client.DetailObserver) panelSnapshot {
	snap := panelSnapshot{PanelID: id, Focus: d.Focus(), Run: d.Run(), Polling: d.Polling()}
	if job := d.Job(); job != nil {
		view := newJobView(*job, handler.now())
		snap.Job = &view
	}
	return snap
}

func (handler *HttpRouteHandler) handleCreatePanel(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id is required"})
		return
	}
	d, err := handler.newDetail()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.GoToRun(r.Context(), req.JobID, req.RunID); err != nil {
		d.Dispose()
		writeError(w, err)
		return
	}

	id := uuid.NewString()
	handler.mu.Lock()
	handler.panels[id] = d
	handler.mu.Unlock()

	handler.log.Debug("panel opened", "panel_id", id, "job_id", req.JobID, "run_id", req.RunID)
	writeJSON(w, http.StatusCreated, handler.panelSnapshot(id, d))
}

// panel resolves the panelID URL parameter, writing a 404 when it is unknown.
func (handler *HttpRouteHandler) panel(w http.ResponseWriter, r *http.Request) (string, *client.DetailObserver, bool) {
	id := chi.URLParam(r, "panelID")
	handler.mu.Lock()
	d, ok := handler.panels[id]
	handler.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "panel not found"})
	}
	return id, d, ok
}

func (handler *HttpRouteHandler) handleGetPanel(w http.ResponseWriter, r *http.Request) {
	id, d, ok := handler.panel(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, handler.panelSnapshot(id, d))
}

func (handler *HttpRouteHandler) handleDisposePanel(w http.ResponseWriter, r *http.Request) {
	id, d, ok := handler.panel(w, r)
	if !ok {
		return
	}
	handler.mu.Lock()
	delete(handler.panels, id)
	handler.mu.Unlock()

	d.Dispose()
	w.WriteHeader(http.StatusNoContent)
}

func (handler *HttpRouteHandler) handleGoToRun(w http.ResponseWriter, r *http.Request) {
	id, d, ok := handler.panel(w, r)
	if !ok {
		return
	}
	var req panelRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id is required"})
		return
	}
	if err := d.GoToRun(r.Context(), req.JobID, req.RunID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handler.panelSnapshot(id, d))
}

func (handler *HttpRouteHandler) handlePanelRefresh(w http.ResponseWriter, r *http.Request) {
	id, d, ok := handler.panel(w, r)
	if !ok {
		return
	}
	if err := d.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handler.panelSnapshot(id, d))
}

func (handler *HttpRouteHandler) handlePanelTrigger(w http.ResponseWriter, r *http.Request) {
	id, d, ok := handler.panel(w, r)
	if !ok {
		return
	}
	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, err := d.Trigger(r.Context(), req.Conf, req.LogicalDate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, handler.panelSnapshot(id, d))
}

func (handler *HttpRouteHandler) handlePanelAction(w http.ResponseWriter, r *http.Request) {
	id, d, ok := handler.panel(w, r)
	if !ok {
		return
	}
	var err error
	switch lastSegment(r) {
	case "pause":
		err = d.Pause(r.Context())
	case "unpause":
		err = d.Unpause(r.Context())
	case "cancel":
		err = d.Cancel(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handler.panelSnapshot(id, d))
}

func (handler *HttpRouteHandler) disposePanels() {
	handler.mu.Lock()
	panels := handler.panels
	handler.panels = make(map[string]*client.DetailObserver)
	handler.mu.Unlock()

	for _, d := range panels {
		d.Dispose()
	}
}

func lastSegment(r *http.Request) string {
	return path.Base(r.URL.Path)
}
