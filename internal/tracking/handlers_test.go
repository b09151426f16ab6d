package tracking

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagenotify/internal/types"
)

// --- Mocks ---

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (n nopLogger) With(...any) types.Logger { return n }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type mockEventStore struct {
	inserted []*types.EngagementEvent
	err      error
}

func (m *mockEventStore) Insert(_ context.Context, ev *types.EngagementEvent) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, ev)
	return nil
}

type mockUnsubWriter struct {
	inserted [][2]int64
	err      error
}

func (m *mockUnsubWriter) Insert(_ context.Context, notificationID, userID int64) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, [2]int64{notificationID, userID})
	return nil
}

type mockRuleReader struct {
	subjects map[int64]string
}

func (m *mockRuleReader) Subject(_ context.Context, id int64) (string, error) {
	s, ok := m.subjects[id]
	if !ok {
		return "", types.NewAppError(types.ErrCodeNotFoundRule, "notification rule not found", nil)
	}
	return s, nil
}

type handlerFixture struct {
	codec   *Codec
	events  *mockEventStore
	unsubs  *mockUnsubWriter
	rules   *mockRuleReader
	userID  int64
	userErr error
	router  chi.Router
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		codec:  NewCodec("mail.example.test", "wiki.example.test", "https://wiki.example.test"),
		events: &mockEventStore{},
		unsubs: &mockUnsubWriter{},
		rules:  &mockRuleReader{subjects: map[int64]string{7: "Weekly digest"}},
		userID: 42,
	}
	h := NewHandler(f.codec, f.events, f.unsubs, f.rules,
		func(*http.Request) (int64, error) { return f.userID, f.userErr },
		fixedClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		nopLogger{},
	)
	f.router = chi.NewRouter()
	h.Routes(f.router)
	return f
}

func (f *handlerFixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestTrackingServesPixelAndRecordsEvent(t *testing.T) {
	f := newHandlerFixture()
	token := f.codec.Encode(7, 42, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	url := f.codec.TrackingURL(7, token)

	rec := f.get(t, url)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	pixel, err := base64.StdEncoding.DecodeString(transparentGIF)
	require.NoError(t, err)
	assert.Equal(t, pixel, rec.Body.Bytes())

	require.Len(t, f.events.inserted, 1)
	ev := f.events.inserted[0]
	assert.Equal(t, int64(7), ev.NotificationID)
	assert.Equal(t, types.EventTypeRead, ev.Type)
	assert.Equal(t, "2026-03-02 08:00:00", ev.NotificationDatetime)
}

func TestTrackingMalformedToken(t *testing.T) {
	f := newHandlerFixture()
	rec := f.get(t, "/events/7?action=tracking&msgId=%21%21bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.events.inserted)
}

func TestTrackingMissingToken(t *testing.T) {
	f := newHandlerFixture()
	rec := f.get(t, "/events/7?action=tracking")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackingStoreFailureStillServesPixel(t *testing.T) {
	// A store hiccup must not surface as a broken image in the client.
	f := newHandlerFixture()
	f.events.err = errors.New("connection refused")
	token := f.codec.Encode(7, 42, time.Now())

	rec := f.get(t, f.codec.TrackingURL(7, token))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
}

func TestUnsubscribeRecordsAndConfirms(t *testing.T) {
	f := newHandlerFixture()

	rec := f.get(t, "/events/7?action=unsubscribe")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Weekly digest")
	require.Len(t, f.unsubs.inserted, 1)
	assert.Equal(t, [2]int64{7, 42}, f.unsubs.inserted[0])
}

func TestUnsubscribeUnknownRule(t *testing.T) {
	f := newHandlerFixture()
	rec := f.get(t, "/events/99?action=unsubscribe")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, f.unsubs.inserted)
}

func TestUnsubscribeUnauthenticated(t *testing.T) {
	f := newHandlerFixture()
	f.userErr = fmt.Errorf("no session")

	rec := f.get(t, "/events/7?action=unsubscribe")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.unsubs.inserted)
}

func TestUnknownAction(t *testing.T) {
	f := newHandlerFixture()
	rec := f.get(t, "/events/7?action=frobnicate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidNotificationID(t *testing.T) {
	f := newHandlerFixture()
	rec := f.get(t, "/events/not-a-number?action=tracking")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
