package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mirai-edu/tutorflow/store"
)

// scriptedCaller routes calls to per-service handlers and records every
// call for assertions.
type scriptedCaller struct {
	mu       sync.Mutex
	handlers map[string]func(payload map[string]any) (map[string]any, error)
	calls    []scriptedCall
}

type scriptedCall struct {
	service string
	payload map[string]any
}

func newScriptedCaller() *scriptedCaller {
	return &scriptedCaller{handlers: make(map[string]func(map[string]any) (map[string]any, error))}
}

func (c *scriptedCaller) on(service string, handler func(map[string]any) (map[string]any, error)) {
	c.handlers[service] = handler
}

func (c *scriptedCaller) respond(service string, resp map[string]any) {
	c.on(service, func(map[string]any) (map[string]any, error) { return resp, nil })
}

func (c *scriptedCaller) Call(_ context.Context, service string, payload map[string]any) (map[string]any, error) {
	c.mu.Lock()
	c.calls = append(c.calls, scriptedCall{service: service, payload: payload})
	c.mu.Unlock()

	handler, ok := c.handlers[service]
	if !ok {
		return nil, fmt.Errorf("unscripted service %q", service)
	}
	return handler(payload)
}

func (c *scriptedCaller) callsTo(service string) []scriptedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []scriptedCall
	for _, call := range c.calls {
		if call.service == service {
			out = append(out, call)
		}
	}
	return out
}

// memDriver is an in-memory store driver for workflow tests.
type memDriver struct {
	mu      sync.Mutex
	records []*store.SessionRecord
	nextID  int32
	failing bool
}

func (d *memDriver) GetDB() *sql.DB                { return nil }
func (d *memDriver) Close() error                  { return nil }
func (d *memDriver) Migrate(context.Context) error { return nil }

func (d *memDriver) CreateSessionRecord(_ context.Context, create *store.SessionRecord) (*store.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing {
		return nil, fmt.Errorf("store unavailable")
	}
	d.nextID++
	create.ID = d.nextID
	d.records = append(d.records, create)
	return create, nil
}

func (d *memDriver) ListSessionRecords(_ context.Context, find *store.FindSessionRecord) ([]*store.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.SessionRecord
	for i := len(d.records) - 1; i >= 0; i-- {
		r := d.records[i]
		if find.UID != nil && r.UID != *find.UID {
			continue
		}
		if find.StudentID != nil && r.StudentID != *find.StudentID {
			continue
		}
		out = append(out, r)
		if find.Limit != nil && len(out) >= *find.Limit {
			break
		}
	}
	return out, nil
}
