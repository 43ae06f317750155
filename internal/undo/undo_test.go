package undo

import (
	"testing"

	"github.com/ringmaster-dev/ringmaster/internal/models"
)

type fakeRepo struct {
	actions []*models.Action
	nextID  int64
}

func (f *fakeRepo) Record(a *models.Action) (int64, error) {
	f.nextID++
	a.ID = f.nextID
	f.actions = append([]*models.Action{a}, f.actions...)
	return a.ID, nil
}

func (f *fakeRepo) Get(id int64) (*models.Action, error) {
	for _, a := range f.actions {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) MarkReversed(id int64, reversed bool) error {
	for _, a := range f.actions {
		if a.ID == id {
			a.Reversed = reversed
		}
	}
	return nil
}

func (f *fakeRepo) RecentForProject(projectID string, limit int) ([]*models.Action, error) {
	return f.actions, nil
}

type fakeApplier struct {
	assigned map[string]string
}

func (f *fakeApplier) ApplyBeadFields(beadID string, fields map[string]any) error { return nil }
func (f *fakeApplier) DeleteBead(beadID string) error                            { return nil }
func (f *fakeApplier) CreateBead(fields map[string]any) error                    { return nil }
func (f *fakeApplier) RemoveDependency(beadID, dependsOnID string) error          { return nil }
func (f *fakeApplier) AddDependency(beadID, dependsOnID string) error             { return nil }
func (f *fakeApplier) AssignWorker(beadID, workerID string) error {
	if f.assigned == nil {
		f.assigned = map[string]string{}
	}
	f.assigned[beadID] = workerID
	return nil
}

func TestUndoRedo_WorkerAssignment(t *testing.T) {
	repo := &fakeRepo{}
	log := New(repo)
	applier := &fakeApplier{}

	_, err := log.Record("proj", models.ActionWorkerAssigned, "bead-1",
		map[string]any{"assigned_worker_id": "worker-old"},
		map[string]any{"assigned_worker_id": "worker-new"})
	if err != nil {
		t.Fatal(err)
	}

	undone, err := log.Undo("proj", applier)
	if err != nil {
		t.Fatal(err)
	}
	if undone == nil {
		t.Fatal("expected an action to undo")
	}
	if applier.assigned["bead-1"] != "worker-old" {
		t.Fatalf("expected worker-old after undo, got %q", applier.assigned["bead-1"])
	}

	redone, err := log.Redo("proj", applier)
	if err != nil {
		t.Fatal(err)
	}
	if redone == nil {
		t.Fatal("expected an action to redo")
	}
	if applier.assigned["bead-1"] != "worker-new" {
		t.Fatalf("expected worker-new after redo, got %q", applier.assigned["bead-1"])
	}
}

func TestGetLastUndoable_NoneWhenEmpty(t *testing.T) {
	log := New(&fakeRepo{})
	a, err := log.GetLastUndoable("proj")
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil, got %+v, %v", a, err)
	}
}
