package geofencing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nandanugg/geotrack/module/core/domain"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
	"github.com/nandanugg/geotrack/module/core/internal/repository/publisher"
)

var _ platform.GeofencingBackend = (*Engine)(nil)

const storeTimeout = 5 * time.Second

type fence struct {
	spec    domain.GeofenceSpec
	handle  domain.PendingHandle
	addedAt time.Time
	initial domain.Trigger

	seen      bool
	inside    bool
	enteredAt time.Time
	dwelled   bool
}

func (f *fence) expired(now time.Time) bool {
	return f.spec.Expiration > 0 && !now.Before(f.addedAt.Add(f.spec.Expiration))
}

type firing struct {
	handle     domain.PendingHandle
	transition domain.GeofenceTransition
}

// Engine is a geofencing backend that evaluates device fixes against circular
// fences. Fences are persisted so they survive a restart. Each transition is
// published to the target of the fence's pending handle and then reported
// through the dispatcher.
type Engine struct {
	repo       database.GeofenceRepository
	publisher  publisher.TransitionPublisher
	dispatcher platform.Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	fences map[string]*fence
	// latest maps a geofence id to the submission that last asked for it.
	// Removal deletes the entry.
	latest map[string]string

	// store serializes registrations so a superseded write never lands
	// after the newer one.
	store sync.Mutex
	wg    sync.WaitGroup
}

func NewEngine(repo database.GeofenceRepository, pub publisher.TransitionPublisher,
	dispatcher platform.Dispatcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:       repo,
		publisher:  pub,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		fences:     make(map[string]*fence),
		latest:     make(map[string]string),
	}
}

// Load restores stored fences. Expired fences are deleted instead.
func (e *Engine) Load(ctx context.Context) error {
	stored, err := e.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load geofences: %w", err)
	}

	now := e.now()
	var expired []string
	e.mu.Lock()
	for _, g := range stored {
		f := &fence{spec: g.Spec, handle: g.Handle, addedAt: g.AddedAt}
		if f.expired(now) {
			expired = append(expired, g.Spec.ID)
			continue
		}
		e.fences[g.Spec.ID] = f
	}
	e.mu.Unlock()

	if len(expired) > 0 {
		if err := e.repo.Delete(ctx, expired); err != nil {
			return fmt.Errorf("delete expired geofences: %w", err)
		}
	}
	e.logger.Info("geofences loaded", "active", len(stored)-len(expired), "expired", len(expired))
	return nil
}

// AddGeofences stores the request and reports the outcome as a
// CallbackRegistrationResult. Fences with an existing id are replaced; only
// the latest submission for an id is installed.
func (e *Engine) AddGeofences(ctx context.Context, req domain.GeofencingRequest, handle domain.PendingHandle) error {
	if len(req.Geofences) == 0 {
		return fmt.Errorf("add geofences: %w: empty request", domain.ErrInvalidSpec)
	}

	e.mu.Lock()
	for _, spec := range req.Geofences {
		e.latest[spec.ID] = req.SubmissionID
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.register(ctx, req, handle)
	}()
	return nil
}

// current reports whether submission is still the latest for id. Callers
// hold e.mu.
func (e *Engine) current(id, submission string) bool {
	latest, ok := e.latest[id]
	return ok && latest == submission
}

func (e *Engine) register(ctx context.Context, req domain.GeofencingRequest, handle domain.PendingHandle) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	e.store.Lock()
	defer e.store.Unlock()

	ids := make([]string, 0, len(req.Geofences))
	added := make([]*fence, 0, len(req.Geofences))
	now := e.now()

	var err error
	for _, spec := range req.Geofences {
		ids = append(ids, spec.ID)
		if err != nil {
			continue
		}
		if verr := spec.Validate(); verr != nil {
			err = verr
			continue
		}

		e.mu.Lock()
		live := e.current(spec.ID, req.SubmissionID)
		e.mu.Unlock()
		if !live {
			e.logger.Debug("skipping superseded geofence", "id", spec.ID, "submission", req.SubmissionID)
			continue
		}

		g := &database.StoredGeofence{Spec: spec, Handle: handle, AddedAt: now}
		if uerr := e.repo.Upsert(ctx, g); uerr != nil {
			err = fmt.Errorf("store geofence %s: %w", spec.ID, uerr)
			continue
		}
		added = append(added, &fence{spec: spec, handle: handle, addedAt: now, initial: req.InitialTrigger})
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrGeofenceRegistrationFailed, err)
		e.logger.Error("geofence registration failed", "submission", req.SubmissionID, "error", err)
	} else {
		e.install(ctx, req.SubmissionID, added)
	}

	e.dispatcher.Dispatch(domain.Callback{
		Kind:         domain.CallbackRegistrationResult,
		SubmissionID: req.SubmissionID,
		GeofenceIDs:  ids,
		Handle:       handle,
		Err:          err,
	})
}

// install adds the stored fences that are still current. A fence removed or
// superseded while it was being stored has its row deleted again; the newer
// submission, if any, writes its own row after this one.
func (e *Engine) install(ctx context.Context, submission string, added []*fence) {
	var stale []string
	e.mu.Lock()
	for _, f := range added {
		if !e.current(f.spec.ID, submission) {
			stale = append(stale, f.spec.ID)
			continue
		}
		e.fences[f.spec.ID] = f
	}
	e.mu.Unlock()

	if len(stale) == 0 {
		return
	}
	if err := e.repo.Delete(ctx, stale); err != nil {
		e.logger.Error("delete stale geofences", "ids", stale, "submission", submission, "error", err)
	}
}

// RemoveGeofences stops evaluating ids at once and deletes them from the
// store. A registration still in flight for an id is dropped.
func (e *Engine) RemoveGeofences(ctx context.Context, ids []string) error {
	e.mu.Lock()
	for _, id := range ids {
		delete(e.fences, id)
		delete(e.latest, id)
	}
	e.mu.Unlock()

	if err := e.repo.Delete(ctx, ids); err != nil {
		return fmt.Errorf("remove geofences: %w", err)
	}
	return nil
}

// Wait blocks until every pending registration has reported.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Observe evaluates fix against every fence and sends the resulting
// transitions.
func (e *Engine) Observe(ctx context.Context, fix *domain.Fix) error {
	now := e.now()

	e.mu.Lock()
	ids := make([]string, 0, len(e.fences))
	for id := range e.fences {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		fired   []firing
		expired []string
	)
	for _, id := range ids {
		f := e.fences[id]
		if f.expired(now) {
			delete(e.fences, id)
			expired = append(expired, id)
			continue
		}
		for _, t := range f.evaluate(fix) {
			fired = append(fired, firing{
				handle: f.handle,
				transition: domain.GeofenceTransition{
					GeofenceID: id,
					Transition: t,
					Point:      fix.Point,
					Timestamp:  fix.Timestamp,
				},
			})
		}
	}
	e.mu.Unlock()

	var errs []error
	if len(expired) > 0 {
		e.logger.Info("geofences expired", "ids", expired)
		if err := e.repo.Delete(ctx, expired); err != nil {
			errs = append(errs, fmt.Errorf("delete expired geofences: %w", err))
		}
	}

	for _, fr := range fired {
		e.send(ctx, fr)
	}
	return errors.Join(errs...)
}

// evaluate advances the fence state for one fix and returns the transitions
// it fired.
func (f *fence) evaluate(fix *domain.Fix) []domain.Trigger {
	inside := Distance(fix.Point, f.spec.Center) <= f.spec.RadiusMeters
	triggers := f.spec.Triggers

	var fired []domain.Trigger
	switch {
	case !f.seen:
		f.seen = true
		f.inside = inside
		if inside {
			f.enteredAt = fix.Timestamp
			if f.initial.Has(domain.TriggerEnter) && triggers.Has(domain.TriggerEnter) {
				fired = append(fired, domain.TriggerEnter)
			}
		}
	case inside && !f.inside:
		f.inside = true
		f.enteredAt = fix.Timestamp
		f.dwelled = false
		if triggers.Has(domain.TriggerEnter) {
			fired = append(fired, domain.TriggerEnter)
		}
	case !inside && f.inside:
		f.inside = false
		f.dwelled = false
		if triggers.Has(domain.TriggerExit) {
			fired = append(fired, domain.TriggerExit)
		}
	}

	if f.inside && !f.dwelled && triggers.Has(domain.TriggerDwell) &&
		fix.Timestamp.Sub(f.enteredAt) >= f.spec.DwellDelay {
		f.dwelled = true
		fired = append(fired, domain.TriggerDwell)
	}
	return fired
}

// send publishes one transition to its handle target. A failed publish is
// reported as CallbackSendFailed.
func (e *Engine) send(ctx context.Context, fr firing) {
	tr := fr.transition
	if err := e.publisher.PublishTransition(ctx, fr.handle, tr); err != nil {
		e.logger.Warn("geofence transition send failed", "id", tr.GeofenceID, "handle", fr.handle.ID, "error", err)
		e.dispatcher.Dispatch(domain.Callback{Kind: domain.CallbackSendFailed, Handle: fr.handle, Err: err})
		return
	}
	e.logger.Info("geofence transition", "id", tr.GeofenceID, "transition", tr.Transition.String())
	e.dispatcher.Dispatch(domain.Callback{Kind: domain.CallbackTransition, Handle: fr.handle, Transition: &tr})
}
