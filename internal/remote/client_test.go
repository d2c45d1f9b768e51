package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ridesync/internal/config"
	"ridesync/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Prefer string
	APIKey string
	Body   string
}

type fakeRemote struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Prefer: r.Header.Get("Prefer"),
		APIKey: r.Header.Get("apikey"),
		Body:   string(data),
	})
	status, body := f.status, f.body
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeRemote) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.RemoteConfig{
		BaseURL:      srv.URL + "/rest/v1/",
		APIKey:       "anon-key",
		Timeout:      2 * time.Second,
		ProbeTimeout: 200 * time.Millisecond,
	}, nil)
}

func TestClient_Apply_Dispatch(t *testing.T) {
	fake := &fakeRemote{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	tests := []struct {
		name   string
		item   models.QueueItem
		method string
		path   string
		query  string
		prefer string
	}{
		{
			name:   "upsert user",
			item:   models.QueueItem{SequenceID: 1, OperationKind: models.OpUpsertUser, Payload: json.RawMessage(`{"id":"u1"}`)},
			method: http.MethodPost,
			path:   "/rest/v1/users",
			query:  "on_conflict=id",
			prefer: preferUpsert,
		},
		{
			name:   "upsert trip",
			item:   models.QueueItem{SequenceID: 2, OperationKind: models.OpUpsertTrip, Payload: json.RawMessage(`{"driver_id":"u1"}`)},
			method: http.MethodPost,
			path:   "/rest/v1/trips",
			prefer: preferUpsert,
		},
		{
			name:   "create booking",
			item:   models.QueueItem{SequenceID: 3, OperationKind: models.OpCreateBooking, Payload: json.RawMessage(`{"id":"b1"}`)},
			method: http.MethodPost,
			path:   "/rest/v1/bookings",
			query:  "on_conflict=id",
			prefer: preferInsertOnce,
		},
		{
			name:   "update booking",
			item:   models.QueueItem{SequenceID: 4, OperationKind: models.OpUpdateBooking, Payload: json.RawMessage(`{"status":"cancelled"}`), TargetID: "b1"},
			method: http.MethodPatch,
			path:   "/rest/v1/bookings",
			query:  "id=eq.b1",
			prefer: preferMinimal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.Apply(ctx, tt.item))
			got := fake.last()
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.query, got.Query)
			assert.Equal(t, tt.prefer, got.Prefer)
			assert.Equal(t, "anon-key", got.APIKey)
			assert.Equal(t, string(tt.item.Payload), got.Body)
		})
	}
}

func TestClient_Apply_Classification(t *testing.T) {
	tests := []struct {
		status int
		class  ErrorClass
	}{
		{http.StatusBadRequest, ClassRejected},
		{http.StatusConflict, ClassRejected},
		{http.StatusUnprocessableEntity, ClassRejected},
		{http.StatusUnauthorized, ClassTransient},
		{http.StatusForbidden, ClassTransient},
		{http.StatusRequestTimeout, ClassTransient},
		{http.StatusTooManyRequests, ClassTransient},
		{http.StatusInternalServerError, ClassTransient},
		{http.StatusServiceUnavailable, ClassTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fake := &fakeRemote{status: tt.status, body: `{"message":"nope"}`}
			c := newTestClient(t, fake)

			err := c.Apply(context.Background(), models.QueueItem{OperationKind: models.OpCreateBooking, Payload: json.RawMessage(`{}`)})
			require.Error(t, err)

			var we *WriteError
			require.True(t, errors.As(err, &we))
			assert.Equal(t, tt.class, we.Class)
			assert.Equal(t, tt.status, we.StatusCode)
			assert.Equal(t, models.OpCreateBooking, we.Op)
			assert.Equal(t, tt.class == ClassRejected, IsRejected(err))
		})
	}
}

func TestClient_Apply_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(config.RemoteConfig{BaseURL: srv.URL}, nil)

	err := c.Apply(context.Background(), models.QueueItem{OperationKind: models.OpUpsertUser, Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
}

func TestClient_Apply_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Apply(ctx, models.QueueItem{OperationKind: models.OpUpsertUser, Payload: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Equal(t, ClassTransient, ClassOf(err))
}

func TestClient_Apply_MissingTarget(t *testing.T) {
	fake := &fakeRemote{}
	c := newTestClient(t, fake)

	err := c.Apply(context.Background(), models.QueueItem{OperationKind: models.OpUpdateBooking, Payload: json.RawMessage(`{}`)})
	assert.True(t, IsRejected(err))
	assert.Empty(t, fake.requests)
}

func TestClient_CheckConnection(t *testing.T) {
	t.Run("Reachable", func(t *testing.T) {
		fake := &fakeRemote{status: http.StatusOK, body: `[{"id":"u1"}]`}
		c := newTestClient(t, fake)

		assert.True(t, c.CheckConnection(context.Background()).Reachable)
		got := fake.last()
		assert.Equal(t, http.MethodGet, got.Method)
		assert.Equal(t, "/rest/v1/users", got.Path)
		assert.Equal(t, "limit=1&select=id", got.Query)
	})

	t.Run("ServerError", func(t *testing.T) {
		c := newTestClient(t, &fakeRemote{status: http.StatusBadGateway})
		assert.False(t, c.CheckConnection(context.Background()).Reachable)
	})

	t.Run("Slow", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))

		start := time.Now()
		assert.False(t, c.CheckConnection(context.Background()).Reachable)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestClient_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	var orders sync.Map
	serve := func(table, body string) {
		mux.HandleFunc("/rest/v1/"+table, func(w http.ResponseWriter, r *http.Request) {
			orders.Store(table, r.URL.Query().Get("order"))
			_, _ = w.Write([]byte(body))
		})
	}
	serve("users", `[{"id":"u1","email":"a@b.c","extra":1}]`)
	serve("trips", `[{"id":"t1"},{"id":"t2"}]`)
	serve("bookings", `[]`)
	serve("notifications", `[{"id":"n1"}]`)

	c := newTestClient(t, mux)
	ctx := context.Background()

	users, err := c.FetchUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.JSONEq(t, `{"id":"u1","email":"a@b.c","extra":1}`, string(users[0]))

	trips, err := c.FetchTrips(ctx)
	require.NoError(t, err)
	assert.Len(t, trips, 2)

	bookings, err := c.FetchBookings(ctx)
	require.NoError(t, err)
	assert.NotNil(t, bookings)
	assert.Empty(t, bookings)

	_, err = c.FetchNotifications(ctx)
	require.NoError(t, err)

	for table, want := range map[string]string{
		"users":         "",
		"trips":         "date.asc",
		"bookings":      "created_at.desc",
		"notifications": "created_at.desc",
	} {
		got, _ := orders.Load(table)
		assert.Equal(t, want, got, table)
	}
}

func TestClient_Fetch_BadBody(t *testing.T) {
	c := newTestClient(t, &fakeRemote{status: http.StatusOK, body: `{"not":"an array"}`})
	_, err := c.FetchTrips(context.Background())
	assert.Error(t, err)
}

func TestClient_RateLimit(t *testing.T) {
	fake := &fakeRemote{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewClient(config.RemoteConfig{
		BaseURL:   srv.URL,
		RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1},
	}, nil)

	item := models.QueueItem{OperationKind: models.OpUpsertUser, Payload: json.RawMessage(`{}`)}
	require.NoError(t, c.Apply(context.Background(), item))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Apply(ctx, item)
	assert.Equal(t, ClassTransient, ClassOf(err))
	assert.Len(t, fake.requests, 1)
}

func TestClassifyPg(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{&pgconn.PgError{Code: "23505"}, ClassRejected},
		{&pgconn.PgError{Code: "22P02"}, ClassRejected},
		{&pgconn.PgError{Code: "42P01"}, ClassRejected},
		{&pgconn.PgError{Code: "40001"}, ClassTransient},
		{&pgconn.PgError{Code: "57P01"}, ClassTransient},
		{errors.New("connection refused"), ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPg(tt.err))
		})
	}
}
