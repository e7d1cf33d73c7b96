package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/convergeproj/converge/pkg/api"
	convergeerr "github.com/convergeproj/converge/pkg/errors"
	"github.com/convergeproj/converge/pkg/event"
	"github.com/convergeproj/converge/pkg/http/client"
)

type fakeServer struct {
	statuses map[string]api.ApplicationStatus
	synced   []string
	removed  []string
	changes  []api.Change
}

func (f *fakeServer) Ping(context.Context) error              { return nil }
func (f *fakeServer) Version(context.Context) (string, error) { return "test-version", nil }

func (f *fakeServer) ListApplications(context.Context) ([]api.ApplicationStatus, error) {
	var res []api.ApplicationStatus
	for _, s := range f.statuses {
		res = append(res, s)
	}
	return res, nil
}

func (f *fakeServer) Status(ctx context.Context, app string) (api.ApplicationStatus, error) {
	s, ok := f.statuses[app]
	if !ok {
		return api.ApplicationStatus{}, convergeerr.AppNotFound(app)
	}
	return s, nil
}

func (f *fakeServer) TriggerSync(ctx context.Context, app string) error {
	if _, ok := f.statuses[app]; !ok {
		return convergeerr.AppNotFound(app)
	}
	f.synced = append(f.synced, app)
	return nil
}

func (f *fakeServer) RemoveApplication(ctx context.Context, app string) error {
	if _, ok := f.statuses[app]; !ok {
		return convergeerr.AppNotFound(app)
	}
	delete(f.statuses, app)
	f.removed = append(f.removed, app)
	return nil
}

func (f *fakeServer) NotifyChange(ctx context.Context, change api.Change) error {
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeServer) ListEvents(ctx context.Context, app string, limit int) ([]event.Event, error) {
	return []event.Event{{Application: app, Type: event.EventSync}}, nil
}

func newTestClient(t *testing.T, s api.Server) (*client.Client, func()) {
	router := NewRouter()
	ts := httptest.NewServer(NewHandler(s, router))
	return client.New(http.DefaultClient, router, ts.URL), ts.Close
}

func TestPingVersion(t *testing.T) {
	c, stop := newTestClient(t, &fakeServer{})
	defer stop()

	assert.NoError(t, c.Ping(context.Background()))
	v, err := c.Version(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "test-version", v)
}

func TestStatusRoundtrip(t *testing.T) {
	fake := &fakeServer{statuses: map[string]api.ApplicationStatus{
		"podinfo": {Application: "podinfo", Phase: api.PhaseIdle, Revision: "abcdef0"},
	}}
	c, stop := newTestClient(t, fake)
	defer stop()

	status, err := c.Status(context.Background(), "podinfo")
	assert.NoError(t, err)
	assert.Equal(t, "podinfo", status.Application)
	assert.Equal(t, api.PhaseIdle, status.Phase)
	assert.Equal(t, "abcdef0", status.Revision)
}

func TestStatusNotFound(t *testing.T) {
	c, stop := newTestClient(t, &fakeServer{})
	defer stop()

	_, err := c.Status(context.Background(), "no-such-app")
	assert.Error(t, err)
	apiErr, ok := err.(*convergeerr.Error)
	if assert.True(t, ok, "expected *errors.Error, got %T", err) {
		assert.Equal(t, convergeerr.Type(convergeerr.Missing), apiErr.Type)
	}
}

func TestTriggerSync(t *testing.T) {
	fake := &fakeServer{statuses: map[string]api.ApplicationStatus{
		"podinfo": {Application: "podinfo"},
	}}
	c, stop := newTestClient(t, fake)
	defer stop()

	assert.NoError(t, c.TriggerSync(context.Background(), "podinfo"))
	assert.Equal(t, []string{"podinfo"}, fake.synced)
}

func TestRemoveApplication(t *testing.T) {
	fake := &fakeServer{statuses: map[string]api.ApplicationStatus{
		"podinfo": {Application: "podinfo"},
	}}
	c, stop := newTestClient(t, fake)
	defer stop()

	assert.NoError(t, c.RemoveApplication(context.Background(), "podinfo"))
	assert.Equal(t, []string{"podinfo"}, fake.removed)
	assert.Error(t, c.RemoveApplication(context.Background(), "podinfo"))
}

func TestNotifyChange(t *testing.T) {
	fake := &fakeServer{}
	c, stop := newTestClient(t, fake)
	defer stop()

	err := c.NotifyChange(context.Background(), api.Change{
		Kind:   api.GitChange,
		Source: api.GitUpdate{URL: "git@example.com:org/repo", Ref: "master"},
	})
	assert.NoError(t, err)
	if assert.Len(t, fake.changes, 1) {
		assert.Equal(t, api.GitChange, fake.changes[0].Kind)
		update, ok := fake.changes[0].Source.(api.GitUpdate)
		if assert.True(t, ok) {
			assert.Equal(t, "git@example.com:org/repo", update.URL)
		}
	}
}

func TestListEvents(t *testing.T) {
	c, stop := newTestClient(t, &fakeServer{})
	defer stop()

	events, err := c.ListEvents(context.Background(), "podinfo", 10)
	assert.NoError(t, err)
	if assert.Len(t, events, 1) {
		assert.Equal(t, "podinfo", events[0].Application)
	}
}
