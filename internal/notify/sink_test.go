package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/executil/executiltest"
	"github.com/oshokin/upkeep/internal/notify/notifytest"
)

// TestCommandSink_AppendsMessage verifies the helper receives the message as last argument.
func TestCommandSink_AppendsMessage(t *testing.T) {
	t.Parallel()

	runner := executiltest.NewRunner()
	sink := NewCommandSink(runner, []string{"sendxmpppy"}, time.Second)

	sink.Notify(context.Background(), "[listbuilder] failed")

	calls := runner.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, []string{"sendxmpppy", "[listbuilder] failed"}, calls[0].Argv)
}

// TestCommandSink_SwallowsErrors ensures a broken helper never panics or retries.
func TestCommandSink_SwallowsErrors(t *testing.T) {
	t.Parallel()

	runner := executiltest.NewRunner().Fail("sendxmpppy", "connection refused")
	sink := NewCommandSink(runner, []string{"sendxmpppy"}, 0)

	sink.Notify(context.Background(), "boom")

	require.Len(t, runner.Calls(), 1)
}

// TestWebhookSink_PostsJSON serves a webhook endpoint and checks the payload.
func TestWebhookSink_PostsJSON(t *testing.T) {
	t.Parallel()

	received := make(chan webhookPayload, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload

		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- payload

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.Client(), srv.URL, time.Second)
	sink.Notify(context.Background(), "service appstore is down")

	payload := <-received
	require.Equal(t, "service appstore is down", payload.Text)
}

// TestWebhookSink_BadStatus reports a non-2xx answer as an error.
func TestWebhookSink_BadStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.Client(), srv.URL, time.Second)

	err := sink.post(context.Background(), "x")
	require.ErrorIs(t, err, errBadHTTPStatus)

	sink.Notify(context.Background(), "x")
	require.Equal(t, int32(2), hits.Load())
}

// TestWithPrefix checks the decorator and the empty-prefix shortcut.
func TestWithPrefix(t *testing.T) {
	t.Parallel()

	rec := new(notifytest.Recorder)

	require.Same(t, Sink(rec), WithPrefix(rec, ""))

	WithPrefix(rec, "[upkeep]").Notify(context.Background(), "hello")
	require.Equal(t, []string{"[upkeep] hello"}, rec.Messages())
}

// TestNew builds every configured sink kind.
func TestNew(t *testing.T) {
	t.Parallel()

	runner := executiltest.NewRunner()

	sink, err := New(&config.Notify{Kind: config.NotifyLog}, runner)
	require.NoError(t, err)
	require.IsType(t, LogSink{}, sink)

	sink, err = New(&config.Notify{Kind: config.NotifyCommand, Command: []string{"notify-send"}}, runner)
	require.NoError(t, err)
	require.IsType(t, &CommandSink{}, sink)

	sink, err = New(&config.Notify{Kind: config.NotifyWebhook, WebhookURL: "https://chat.example/hook", Prefix: "[tools]"}, runner)
	require.NoError(t, err)
	require.IsType(t, &prefixed{}, sink)

	_, err = New(&config.Notify{Kind: "pager"}, runner)
	require.ErrorIs(t, err, errUnsupportedKind)
}
