package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/backend/internal/models"
)

type fakeSub struct {
	mu       sync.Mutex
	handlers map[string]func(*models.GenerationJob)
	subs     int
	cancels  int
}

func newFakeSub() *fakeSub {
	return &fakeSub{handlers: map[string]func(*models.GenerationJob){}}
}

func (f *fakeSub) SubscribeJob(jobID string, handler func(*models.GenerationJob)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	f.handlers[jobID] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancels++
		delete(f.handlers, jobID)
	}, nil
}

func (f *fakeSub) publish(job *models.GenerationJob) {
	f.mu.Lock()
	h := f.handlers[job.ID]
	f.mu.Unlock()
	if h != nil {
		h(job)
	}
}

func newClient(id, jobID string) *Client {
	return &Client{ID: id, JobID: jobID, send: make(chan WSMessage, 4)}
}

func TestHub_SubscriptionLifecycle(t *testing.T) {
	sub := newFakeSub()
	hub := NewHub(sub, nil)
	a, b := newClient("a", "j1"), newClient("b", "j1")
	a.hub, b.hub = hub, hub

	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 1, sub.subs)
	assert.Equal(t, 2, hub.Watchers("j1"))

	sub.publish(&models.GenerationJob{ID: "j1", Status: models.JobStatusRunning})
	for _, c := range []*Client{a, b} {
		msg := <-c.send
		assert.Equal(t, EventJobStatus, msg.Event)
		var job models.GenerationJob
		require.NoError(t, json.Unmarshal(msg.Data, &job))
		assert.Equal(t, models.JobStatusRunning, job.Status)
	}

	hub.Unregister(a)
	assert.Equal(t, 0, sub.cancels)
	hub.Unregister(b)
	assert.Equal(t, 1, sub.cancels)
	assert.Equal(t, 0, hub.Watchers("j1"))
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(nil, nil)
	c := &Client{ID: "a", JobID: "j1", send: make(chan WSMessage, 1)}
	hub.Register(c)

	hub.Broadcast("j1", &models.GenerationJob{ID: "j1", Status: models.JobStatusRunning})
	hub.Broadcast("j1", &models.GenerationJob{ID: "j1", Status: models.JobStatusDone})

	assert.Len(t, c.send, 1)
	hub.Broadcast("other", &models.GenerationJob{ID: "other"})
}

func TestNewMessage_Finished(t *testing.T) {
	for status, want := range map[string]string{
		models.JobStatusQueued:  EventJobStatus,
		models.JobStatusRunning: EventJobStatus,
		models.JobStatusDone:    EventJobFinished,
		models.JobStatusFailed:  EventJobFinished,
	} {
		msg, err := NewMessage(&models.GenerationJob{ID: "j", Status: status})
		require.NoError(t, err)
		assert.Equal(t, want, msg.Event, status)
	}
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	u := NewUpgrader("https://app.example.com/, https://admin.example.com")
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"https://admin.example.com/", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/jobs/j/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.want, u.CheckOrigin(r), tc.origin)
	}

	r := httptest.NewRequest(http.MethodGet, "/jobs/j/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	assert.True(t, NewUpgrader("*").CheckOrigin(r))
}
