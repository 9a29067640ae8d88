package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/pkg/httputil"
	"github.com/wonny/predico/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type recordingNotifier struct {
	templates []string
}

func (n *recordingNotifier) Notify(_ context.Context, templateKey, _ string, _ map[string]interface{}) {
	n.templates = append(n.templates, templateKey)
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	first := &recordingSink{err: errors.New("down")}
	second := &recordingSink{}
	d := NewDispatcher(DispatcherConfig{}, nil, logger.Nop(), first, second)
	d.Start(context.Background())

	d.Notify(context.Background(), contracts.TemplateChallengeCreated, "market", map[string]interface{}{"challenge": "c1"})
	d.Notify(context.Background(), contracts.TemplateSubmissionCreated, "market", nil)
	d.Stop()

	assert.Equal(t, 2, first.count())
	require.Equal(t, 2, second.count())
	assert.Equal(t, contracts.TemplateChallengeCreated, second.events[0].Template)
	assert.Equal(t, "c1", second.events[0].Args["challenge"])

	// after Stop, Notify is a no-op
	d.Notify(context.Background(), contracts.TemplateSessionUpdated, "market", nil)
	assert.Equal(t, 2, second.count())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)

	sink := &recordingSink{}
	d := NewDispatcher(DispatcherConfig{QueueSize: 1}, m, logger.Nop(), sink)

	// worker not started: the second event overflows the queue
	d.Notify(context.Background(), contracts.TemplateSessionUpdated, "market", nil)
	d.Notify(context.Background(), contracts.TemplateSessionUpdated, "market", nil)

	expected := `
# HELP predico_notify_dropped_total Notifications dropped because the dispatch queue was full.
# TYPE predico_notify_dropped_total counter
predico_notify_dropped_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "predico_notify_dropped_total"))
	d.Stop()
	assert.Equal(t, 0, sink.count())
}

func TestFanout(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	Fanout{a, nil, b}.Notify(context.Background(), contracts.TemplateSessionUpdated, "market", nil)

	assert.Equal(t, []string{contracts.TemplateSessionUpdated}, a.templates)
	assert.Equal(t, []string{contracts.TemplateSessionUpdated}, b.templates)
}

func TestWebhookSink(t *testing.T) {
	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		received <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink(httputil.New(logger.Nop(), time.Second).DisableRetry(), server.URL)
	err := sink.Deliver(context.Background(), Event{Template: contracts.TemplateChallengeCreated, Destination: "market"})
	require.NoError(t, err)

	e := <-received
	assert.Equal(t, contracts.TemplateChallengeCreated, e.Template)
	assert.Equal(t, "market", e.Destination)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(logger.Nop())
	assert.Equal(t, "log", sink.Name())
	assert.NoError(t, sink.Deliver(context.Background(), Event{Template: "x"}))
}
