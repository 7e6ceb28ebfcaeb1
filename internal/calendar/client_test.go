package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
)

// fakeAPI is a minimal in-memory Calendar v3 events endpoint.
type fakeAPI struct {
	mu        sync.Mutex
	events    map[string]*calendar.Event
	version   int
	nextID    int
	lastQuery url.Values
	requests  []string
	ifMatch   []string
	failWith  map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{events: map[string]*calendar.Event{}, failWith: map[string]int{}}
}

func (f *fakeAPI) put(ev *calendar.Event) {
	f.version++
	ev.Etag = fmt.Sprintf(`"v%d"`, f.version)
	f.events[ev.Id] = ev
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	check := func(w http.ResponseWriter, r *http.Request) bool {
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		if status, ok := f.failWith[r.Method]; ok {
			writeError(w, status, "injected failure")
			return false
		}
		return true
	}

	mux.HandleFunc("GET /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !check(w, r) {
			return
		}
		f.lastQuery = r.URL.Query()
		items := []*calendar.Event{}
		for _, ev := range f.events {
			items = append(items, ev)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})

	mux.HandleFunc("GET /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !check(w, r) {
			return
		}
		ev, ok := f.events[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	})

	mux.HandleFunc("PATCH /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !check(w, r) {
			return
		}
		f.ifMatch = append(f.ifMatch, r.Header.Get("If-Match"))
		ev, ok := f.events[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && m != ev.Etag {
			writeError(w, http.StatusPreconditionFailed, "Precondition Failed")
			return
		}
		var patch calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if patch.Start != nil {
			ev.Start.DateTime = patch.Start.DateTime
		}
		if patch.End != nil {
			ev.End.DateTime = patch.End.DateTime
		}
		f.put(ev)
		writeJSON(w, http.StatusOK, ev)
	})

	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !check(w, r) {
			return
		}
		f.ifMatch = append(f.ifMatch, r.Header.Get("If-Match"))
		ev, ok := f.events[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusGone, "Resource has been deleted")
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && m != ev.Etag {
			writeError(w, http.StatusPreconditionFailed, "Precondition Failed")
			return
		}
		delete(f.events, ev.Id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !check(w, r) {
			return
		}
		var ev calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.nextID++
		ev.Id = fmt.Sprintf("created-%d", f.nextID)
		f.put(&ev)
		writeJSON(w, http.StatusOK, &ev)
	})

	return mux
}

var now = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"})
	c, err := NewClient(context.Background(), ts, Config{
		CalendarID: "primary",
		Endpoint:   srv.URL + "/",
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return c
}

func timedEvent(id, start, end, tz string) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Summary: "Available for booking",
		Start:   &calendar.EventDateTime{DateTime: start, TimeZone: tz},
		End:     &calendar.EventDateTime{DateTime: end, TimeZone: tz},
	}
}

func TestNewClient_RequiresCalendarID(t *testing.T) {
	_, err := NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{}), Config{})
	assert.Error(t, err)
}

func TestClient_ListFreeBlocks(t *testing.T) {
	api := newFakeAPI()
	api.put(timedEvent("b2", "2024-01-02T10:00:00Z", "2024-01-02T11:00:00Z", "UTC"))
	api.put(timedEvent("b1", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", "Europe/Amsterdam"))
	api.put(&calendar.Event{
		Id:    "allday",
		Start: &calendar.EventDateTime{Date: "2024-01-03"},
		End:   &calendar.EventDateTime{Date: "2024-01-04"},
	})
	cancelled := timedEvent("gone", "2024-01-01T12:00:00Z", "2024-01-01T13:00:00Z", "UTC")
	cancelled.Status = "cancelled"
	api.put(cancelled)
	private := timedEvent("board-meeting", "2024-01-01T14:00:00Z", "2024-01-01T15:00:00Z", "UTC")
	private.Summary = "Board meeting (private)"
	api.put(private)

	c := newTestClient(t, api)
	blocks, err := c.ListFreeBlocks(context.Background(), 14)
	require.NoError(t, err)

	require.Len(t, blocks, 2)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, "b2", blocks[1].ID)
	assert.Equal(t, "Europe/Amsterdam", blocks[0].TimeZone)
	assert.NotEmpty(t, blocks[0].ETag)
	assert.Equal(t, time.Hour, blocks[0].Duration())

	assert.Equal(t, "available for booking", api.lastQuery.Get("q"))
	assert.Equal(t, "true", api.lastQuery.Get("singleEvents"))
	assert.Equal(t, "startTime", api.lastQuery.Get("orderBy"))
	assert.Equal(t, "2024-01-01T08:00:00Z", api.lastQuery.Get("timeMin"))
	assert.Equal(t, "2024-01-15T08:00:00Z", api.lastQuery.Get("timeMax"))
}

func TestClient_ListFreeBlocks_Empty(t *testing.T) {
	c := newTestClient(t, newFakeAPI())
	blocks, err := c.ListFreeBlocks(context.Background(), 14)
	require.NoError(t, err)
	assert.NotNil(t, blocks)
	assert.Empty(t, blocks)
}

func TestClient_GetBlock(t *testing.T) {
	api := newFakeAPI()
	api.put(timedEvent("b1", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", "UTC"))
	cancelled := timedEvent("c1", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", "UTC")
	cancelled.Status = "cancelled"
	api.put(cancelled)
	c := newTestClient(t, api)

	block, err := c.GetBlock(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), block.Start.UTC())
	assert.Equal(t, api.events["b1"].Etag, block.ETag)

	_, err = c.GetBlock(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetBlock(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_GetBlockRejectsUnmarkedEvents(t *testing.T) {
	api := newFakeAPI()
	api.put(&calendar.Event{
		Id:      "board-meeting",
		Summary: "Board meeting (private)",
		Start:   &calendar.EventDateTime{DateTime: "2024-01-01T10:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-01T11:00:00Z"},
	})
	c := newTestClient(t, api)

	id, err := c.CreateEvent(context.Background(), BookingEvent{
		Start:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
		AttendeeName:  "Available for booking",
		AttendeeEmail: "eve@example.com",
		Topic:         "available for booking",
	})
	require.NoError(t, err)

	for _, target := range []string{"board-meeting", id} {
		t.Run(target, func(t *testing.T) {
			_, err := c.GetBlock(context.Background(), target)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	blocks, err := c.ListFreeBlocks(context.Background(), 14)
	require.NoError(t, err)
	assert.Empty(t, blocks)
	assert.Len(t, api.events, 2)
}

func TestIsFreeBlockEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *calendar.Event
		want  bool
	}{
		{name: "summary marker", event: &calendar.Event{Summary: "Available for booking"}, want: true},
		{name: "description marker", event: &calendar.Event{Summary: "Office hours", Description: "Available for booking, 30 min slots"}, want: true},
		{name: "free block property", event: &calendar.Event{ExtendedProperties: marker(markerFreeBlock)}, want: true},
		{name: "unrelated event", event: &calendar.Event{Summary: "Board meeting (private)"}},
		{
			name:  "booking with marker text",
			event: &calendar.Event{Summary: "Consultation with Available for booking", ExtendedProperties: marker(markerBooking)},
		},
		{name: "nil", event: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isFreeBlockEvent(tt.event, DefaultAvailabilityQuery))
		})
	}
}

func TestClient_ConditionalWrites(t *testing.T) {
	tests := []struct {
		name    string
		stale   bool
		run     func(c *Client, etag string) error
		wantErr error
		check   func(t *testing.T, api *fakeAPI)
	}{
		{
			name: "patch start with current etag",
			run: func(c *Client, etag string) error {
				return c.PatchBlockStart(context.Background(), "b1", etag, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC))
			},
			check: func(t *testing.T, api *fakeAPI) {
				assert.Equal(t, "2024-01-01T10:30:00Z", api.events["b1"].Start.DateTime)
				assert.Equal(t, "2024-01-01T11:00:00Z", api.events["b1"].End.DateTime)
			},
		},
		{
			name: "patch end with current etag",
			run: func(c *Client, etag string) error {
				return c.PatchBlockEnd(context.Background(), "b1", etag, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC))
			},
			check: func(t *testing.T, api *fakeAPI) {
				assert.Equal(t, "2024-01-01T10:00:00Z", api.events["b1"].Start.DateTime)
				assert.Equal(t, "2024-01-01T10:30:00Z", api.events["b1"].End.DateTime)
			},
		},
		{
			name:  "patch with stale etag",
			stale: true,
			run: func(c *Client, etag string) error {
				return c.PatchBlockStart(context.Background(), "b1", etag, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC))
			},
			wantErr: ErrPreconditionFailed,
			check: func(t *testing.T, api *fakeAPI) {
				assert.Equal(t, "2024-01-01T10:00:00Z", api.events["b1"].Start.DateTime)
			},
		},
		{
			name: "delete with current etag",
			run: func(c *Client, etag string) error {
				return c.DeleteBlock(context.Background(), "b1", etag)
			},
			check: func(t *testing.T, api *fakeAPI) {
				assert.NotContains(t, api.events, "b1")
			},
		},
		{
			name:  "delete with stale etag",
			stale: true,
			run: func(c *Client, etag string) error {
				return c.DeleteBlock(context.Background(), "b1", etag)
			},
			wantErr: ErrPreconditionFailed,
			check: func(t *testing.T, api *fakeAPI) {
				assert.Contains(t, api.events, "b1")
			},
		},
		{
			name: "delete already gone",
			run: func(c *Client, etag string) error {
				return c.DeleteBlock(context.Background(), "nope", etag)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.put(timedEvent("b1", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", "UTC"))
			etag := api.events["b1"].Etag
			if tt.stale {
				api.put(api.events["b1"])
			}
			c := newTestClient(t, api)

			err := tt.run(c, etag)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if len(api.ifMatch) > 0 {
				assert.Equal(t, etag, api.ifMatch[0])
			}
			if tt.check != nil {
				tt.check(t, api)
			}
		})
	}
}

func TestClient_PatchRejected(t *testing.T) {
	api := newFakeAPI()
	api.put(timedEvent("b1", "2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z", "UTC"))
	api.failWith[http.MethodPatch] = http.StatusForbidden
	c := newTestClient(t, api)

	err := c.PatchBlockStart(context.Background(), "b1", "", time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "injected failure", apiErr.Message)
	assert.False(t, errors.Is(err, ErrPreconditionFailed))
}

func TestClient_CreateEvent(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	id, err := c.CreateEvent(context.Background(), BookingEvent{
		Start:         time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "jane@example.com",
		Topic:         "Portfolio review",
	})
	require.NoError(t, err)

	ev := api.events[id]
	require.NotNil(t, ev)
	assert.Equal(t, "Consultation with Jane Doe", ev.Summary)
	assert.Equal(t, "2024-01-01T10:00:00Z", ev.Start.DateTime)
	assert.Equal(t, "2024-01-01T10:30:00Z", ev.End.DateTime)
	assert.Equal(t, DefaultTimeZone, ev.Start.TimeZone)
	assert.Contains(t, ev.Description, "30-minute consultation booked via website")
	assert.Contains(t, ev.Description, "Topic: Portfolio review")
	assert.Contains(t, ev.Description, "Action required: send invite to jane@example.com")
	assert.Empty(t, ev.Attendees)
	require.NotNil(t, ev.ExtendedProperties)
	assert.Equal(t, markerBooking, ev.ExtendedProperties.Private[markerKey])
	require.NotNil(t, ev.Reminders)
	require.Len(t, ev.Reminders.Overrides, 2)
	assert.Equal(t, int64(1440), ev.Reminders.Overrides[0].Minutes)
}

func TestClient_CreateEventRejected(t *testing.T) {
	api := newFakeAPI()
	api.failWith[http.MethodPost] = http.StatusBadRequest
	c := newTestClient(t, api)

	_, err := c.CreateEvent(context.Background(), BookingEvent{
		Start: time.Now(), End: time.Now().Add(time.Hour), AttendeeName: "x", AttendeeEmail: "x@y.z",
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "injected failure", apiErr.Message)
}

func TestClient_CreateFreeBlockAndDeleteEvent(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api)

	id, err := c.CreateFreeBlock(context.Background(),
		time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), "UTC")
	require.NoError(t, err)
	assert.Equal(t, "Available for booking", api.events[id].Summary)
	assert.Equal(t, "UTC", api.events[id].Start.TimeZone)
	require.NotNil(t, api.events[id].ExtendedProperties)
	assert.Equal(t, markerFreeBlock, api.events[id].ExtendedProperties.Private[markerKey])

	block, err := c.GetBlock(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, block.ID)

	require.NoError(t, c.DeleteEvent(context.Background(), id))
	assert.Empty(t, api.events)

	for _, req := range api.requests {
		assert.True(t, strings.HasPrefix(strings.SplitN(req, " ", 2)[1], "/calendars/primary/events"), req)
	}
}

func TestFreeBlock_Contains(t *testing.T) {
	b := FreeBlock{
		Start: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
	}
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

	assert.True(t, b.Contains(at(10, 0), at(11, 0)))
	assert.True(t, b.Contains(at(10, 30), at(11, 0)))
	assert.False(t, b.Contains(at(9, 30), at(10, 0)))
	assert.False(t, b.Contains(at(10, 30), at(11, 30)))
	assert.False(t, b.Contains(at(10, 30), at(10, 30)))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("x", nil))

	var apiErr *APIError
	err := classify("list", errors.New("dial tcp: refused"))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.Status)
	assert.Contains(t, err.Error(), "dial tcp")
}
