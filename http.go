package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API is the HTTP surface over the scheduler: schedule CRUD, tracker
// history and the manual run trigger. The checker itself never goes
// through here.
type API struct {
	store *Store
	queue *ExecutionQueue
	clock Clock
	cfg   CheckerConfig
	log   zerolog.Logger
}

func NewAPI(store *Store, queue *ExecutionQueue, clock Clock, cfg CheckerConfig) *API {
	return &API{
		store: store,
		queue: queue,
		clock: clock,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("pkg", "api").Logger(),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", a.listSchedules)
		r.Post("/", a.createSchedule)
		r.Get("/{id}", a.getSchedule)
		r.Put("/{id}", a.updateSchedule)
		r.Delete("/{id}", a.deleteSchedule)
	})

	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/trackers", a.listTrackers)
		r.Post("/run", a.runJob)
	})

	r.Get("/trackers/{id}/result", a.trackerResult)

	return r
}

type scheduleRequest struct {
	JobID        uuid.UUID    `json:"jobId"`
	UserID       uuid.UUID    `json:"userId"`
	ScheduleType ScheduleType `json:"scheduleType"`
	StartTime    time.Time    `json:"startTime"`
	Active       bool         `json:"active"`
}

type scheduleResponse struct {
	ID           uuid.UUID    `json:"id"`
	JobID        uuid.UUID    `json:"jobId"`
	UserID       uuid.UUID    `json:"userId"`
	ScheduleType ScheduleType `json:"scheduleType"`
	Crontab      string       `json:"crontab"`
	NextRun      *time.Time   `json:"nextRun,omitempty"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func newScheduleResponse(s *Schedule) scheduleResponse {
	resp := scheduleResponse{
		ID:           s.ID,
		JobID:        s.JobID,
		UserID:       s.UserID,
		ScheduleType: s.Recurrence.Type(),
		Crontab:      Crontab(s),
		Active:       s.IsActive(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.NextRun.Valid {
		t := s.NextRun.Time
		resp.NextRun = &t
	}

	return resp
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	schedule, err := NewSchedule(a.clock, req.JobID, req.UserID, req.ScheduleType, req.StartTime, req.Active)
	if err != nil {
		a.writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	if err := a.store.CreateSchedule(r.Context(), schedule); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, http.StatusCreated, newScheduleResponse(schedule))
}

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	schedules, err := a.store.ListSchedules(r.Context(), userID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	resp := make([]scheduleResponse, 0, len(schedules))
	for i := range schedules {
		resp = append(resp, newScheduleResponse(&schedules[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := a.findSchedule(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
}

// updateSchedule re-anchors an existing schedule to a new type and start
// time, or toggles it on and off.
func (a *API) updateSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := a.findSchedule(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	rec, err := RecurrenceAt(req.ScheduleType, req.StartTime)
	if err != nil {
		a.writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	schedule.Recurrence = rec
	schedule.Active = req.Active
	if err := schedule.SetStartTime(a.clock, req.StartTime); err != nil {
		a.writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	if err := a.store.UpdateSchedule(r.Context(), schedule); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	if err := a.store.SoftDeleteSchedule(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotUpdated) {
			a.writeError(w, http.StatusNotFound, err)

			return
		}
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type trackerResponse struct {
	ID          uuid.UUID  `json:"id"`
	JobID       uuid.UUID  `json:"jobId"`
	ScheduleID  *uuid.UUID `json:"scheduleId,omitempty"`
	ScheduledOn time.Time  `json:"scheduledOn"`
	RanOn       *time.Time `json:"ranOn,omitempty"`
	DurationMS  int64      `json:"durationMs"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

func newTrackerResponse(t *Tracker) trackerResponse {
	resp := trackerResponse{
		ID:          t.ID,
		JobID:       t.JobID,
		ScheduledOn: t.ScheduledOn,
		DurationMS:  t.Duration,
		Status:      t.Status.String(),
		Error:       t.ErrorString.String,
	}
	if t.ScheduleID.Valid {
		id := t.ScheduleID.UUID
		resp.ScheduleID = &id
	}
	if t.RanOn.Valid {
		ranOn := t.RanOn.Time
		resp.RanOn = &ranOn
	}

	return resp
}

// listTrackers returns a job's run history, newest first. Results past
// their TTL are expired on the way out; there is no background sweep.
func (a *API) listTrackers(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	trackers, err := a.store.ListTrackersByJob(r.Context(), jobID, 100)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	resp := make([]trackerResponse, 0, len(trackers))
	for i := range trackers {
		tracker := &trackers[i]
		if tracker.CheckExpiration(a.clock, a.cfg.ResultTTL) {
			if err := a.store.UpdateTracker(r.Context(), tracker); err != nil {
				a.log.Err(err).Str("tracker", tracker.ID.String()).Msg("failed to persist expiration")
			}
		}

		resp = append(resp, newTrackerResponse(tracker))
	}

	writeJSON(w, http.StatusOK, resp)
}

// runJob queues a one-off manual execution outside any schedule.
func (a *API) runJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	job, err := a.store.FindJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.writeError(w, http.StatusNotFound, err)

			return
		}
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if !job.IsActive() {
		a.writeError(w, http.StatusConflict, errors.New("job has no connection to run against"))

		return
	}

	tracker := NewTracker(a.clock, job.ID, uuid.NullUUID{})
	if err := a.store.CreateTracker(r.Context(), tracker); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if _, err := a.queue.Enqueue(r.Context(), ExecutionRequest{
		TrackerID:      tracker.ID,
		JobID:          job.ID,
		ExecuteTimeout: a.cfg.ExecuteTimeout,
		EnqueueTTL:     a.cfg.EnqueueTTL,
		ResultTTL:      a.cfg.ResultTTL,
	}); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, http.StatusAccepted, newTrackerResponse(tracker))
}

func (a *API) trackerResult(w http.ResponseWriter, r *http.Request) {
	trackerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return
	}

	exec, err := a.queue.Find(r.Context(), trackerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.writeError(w, http.StatusNotFound, err)

			return
		}
		a.writeError(w, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trackerId": exec.TrackerID,
		"result":    exec.Result.String,
	})
}

func (a *API) findSchedule(w http.ResponseWriter, r *http.Request) (*Schedule, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)

		return nil, false
	}

	schedule, err := a.store.FindSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.writeError(w, http.StatusNotFound, err)

			return nil, false
		}
		a.writeError(w, http.StatusInternalServerError, err)

		return nil, false
	}

	return schedule, true
}

func (a *API) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		a.log.Err(err).Msg("request failed")
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
