// Package undo implements the Undo Log (C12): an append-only action
// journal with an inverse-operation table so any recorded change to a
// bead, dependency, or worker assignment can be atomically reversed or
// replayed. Grounded on original_source/store/action_log.py and on
// store.ActionRepository for persistence.
package undo

import (
	"fmt"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

// Repository is the persistence surface undo needs; satisfied by
// store.ActionRepository.
type Repository interface {
	Record(a *models.Action) (int64, error)
	Get(id int64) (*models.Action, error)
	MarkReversed(id int64, reversed bool) error
	RecentForProject(projectID string, limit int) ([]*models.Action, error)
}

// Applier performs the actual mutation an inverse operation needs;
// callers implement this against their own store/scheduler wiring so
// undo stays decoupled from any one entity's repository shape.
type Applier interface {
	ApplyBeadFields(beadID string, fields map[string]any) error
	DeleteBead(beadID string) error
	CreateBead(fields map[string]any) error
	RemoveDependency(beadID, dependsOnID string) error
	AddDependency(beadID, dependsOnID string) error
	AssignWorker(beadID, workerID string) error
}

// Log wraps a Repository with the inverse-operation table.
type Log struct {
	repo Repository
}

func New(repo Repository) *Log {
	return &Log{repo: repo}
}

// Record appends a new action to the log.
func (l *Log) Record(projectID string, actionType models.ActionType, entityID string, before, after map[string]any) (int64, error) {
	return l.repo.Record(&models.Action{
		ProjectID: projectID,
		Type:      actionType,
		EntityID:  entityID,
		Before:    before,
		After:     after,
	})
}

// GetLastUndoable returns the most recent action for a project that has
// not yet been reversed, or nil if there is nothing to undo.
func (l *Log) GetLastUndoable(projectID string) (*models.Action, error) {
	actions, err := l.repo.RecentForProject(projectID, 50)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if !a.Reversed {
			return a, nil
		}
	}
	return nil, nil
}

// GetLastRedoable returns the most recently reversed action for a
// project, or nil if there is nothing to redo. Undo reverses actions
// newest-first, so walking newest-first the most recent undo is the last
// entry of the first run of reversed actions.
func (l *Log) GetLastRedoable(projectID string) (*models.Action, error) {
	actions, err := l.repo.RecentForProject(projectID, 50)
	if err != nil {
		return nil, err
	}
	var last *models.Action
	for _, a := range actions {
		if a.Reversed {
			last = a
		} else if last != nil {
			break
		}
	}
	return last, nil
}

// Undo reverses the project's last undoable action by applying its
// inverse operation, then marks it reversed. Atomic per action: either
// the inverse fully applies and the action is marked reversed, or
// neither happens.
func (l *Log) Undo(projectID string, applier Applier) (*models.Action, error) {
	a, err := l.GetLastUndoable(projectID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if err := applyInverse(a, applier); err != nil {
		return nil, err
	}
	if err := l.repo.MarkReversed(a.ID, true); err != nil {
		return nil, err
	}
	return a, nil
}

// Redo re-applies the project's last reversed action's forward
// operation, then marks it un-reversed.
func (l *Log) Redo(projectID string, applier Applier) (*models.Action, error) {
	a, err := l.GetLastRedoable(projectID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if err := applyForward(a, applier); err != nil {
		return nil, err
	}
	if err := l.repo.MarkReversed(a.ID, false); err != nil {
		return nil, err
	}
	return a, nil
}

// applyInverse dispatches on the action's entity/type to the matching
// undo operation, per the table:
//
//	bead_created      -> delete the bead
//	bead_updated      -> restore Before fields
//	bead_deleted      -> recreate from Before fields
//	dependency_added  -> remove the dependency edge
//	worker_assigned   -> restore the prior assignment (from Before)
func applyInverse(a *models.Action, applier Applier) error {
	switch a.Type {
	case models.ActionBeadCreated:
		return applier.DeleteBead(a.EntityID)
	case models.ActionBeadUpdated:
		return applier.ApplyBeadFields(a.EntityID, a.Before)
	case models.ActionBeadDeleted:
		return applier.CreateBead(a.Before)
	case models.ActionDependencyAdded:
		dependsOn, _ := a.After["depends_on_id"].(string)
		return applier.RemoveDependency(a.EntityID, dependsOn)
	case models.ActionWorkerAssigned:
		prior, _ := a.Before["assigned_worker_id"].(string)
		return applier.AssignWorker(a.EntityID, prior)
	default:
		return fmt.Errorf("undo: no inverse operation registered for action type %q", a.Type)
	}
}

// applyForward re-does the action's original effect from its After snapshot.
func applyForward(a *models.Action, applier Applier) error {
	switch a.Type {
	case models.ActionBeadCreated:
		return applier.CreateBead(a.After)
	case models.ActionBeadUpdated:
		return applier.ApplyBeadFields(a.EntityID, a.After)
	case models.ActionBeadDeleted:
		return applier.DeleteBead(a.EntityID)
	case models.ActionDependencyAdded:
		dependsOn, _ := a.After["depends_on_id"].(string)
		return applier.AddDependency(a.EntityID, dependsOn)
	case models.ActionWorkerAssigned:
		worker, _ := a.After["assigned_worker_id"].(string)
		return applier.AssignWorker(a.EntityID, worker)
	default:
		return fmt.Errorf("redo: no forward operation registered for action type %q", a.Type)
	}
}
