package tools_test

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/xiaolang/backend/internal/service/tools"
	"github.com/zhouzirui/xiaolang/backend/internal/testutil"
)

type patchCall struct {
	ID    string
	Input tools.EventInput
}

type fakeCalendar struct {
	mu       sync.Mutex
	events   []tools.Event
	busy     []tools.BusySlot
	err      error
	created  []tools.EventInput
	patched  []patchCall
	deleted  []string
	tasks    []tools.TaskInput
	panicMsg string
}

func (f *fakeCalendar) FreeBusy(_ context.Context, _ string, _, _ time.Time) ([]tools.BusySlot, error) {
	return f.busy, f.err
}

func (f *fakeCalendar) CreateEvent(_ context.Context, in tools.EventInput) (tools.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tools.Event{}, f.err
	}
	f.created = append(f.created, in)
	return tools.Event{ID: "new", Summary: in.Summary}, nil
}

func (f *fakeCalendar) ListEvents(_ context.Context, _, _ time.Time) ([]tools.Event, error) {
	return f.events, f.err
}

func (f *fakeCalendar) PatchEvent(_ context.Context, id string, in tools.EventInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.patched = append(f.patched, patchCall{ID: id, Input: in})
	return nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCalendar) CreateTask(_ context.Context, in tools.TaskInput) (tools.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tools.Task{}, f.err
	}
	f.tasks = append(f.tasks, in)
	return tools.Task{ID: "t1", Summary: in.Summary}, nil
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.FixedZone("CST", 8*3600))

func newRegistry(cal *fakeCalendar, picker *testutil.ScriptedModel) *tools.Registry {
	deps := tools.Deps{
		Calendar: cal,
		Tasks:    cal,
		Clock:    func() time.Time { return fixedNow },
	}
	if picker != nil {
		deps.Picker = picker
	}
	reg, err := tools.NewRegistry(nil, tools.Default(deps)...)
	if err != nil {
		panic(err)
	}
	return reg
}
