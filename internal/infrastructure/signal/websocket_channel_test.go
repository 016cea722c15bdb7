package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arcrtc/internal/core/ports"
	"arcrtc/pkg/signaling"
)

func TestChannelRoundTrip(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()

	accepted := make(chan ports.SignalChannel, 1)
	server := NewServer(func(ch ports.SignalChannel) {
		accepted <- ch
	}, 5*time.Second, log)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, url, 5*time.Second)
	require.NoError(t, err)
	defer client.Close()

	var serverCh ports.SignalChannel
	select {
	case serverCh = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no channel accepted")
	}
	defer serverCh.Close()

	hb := &signaling.Heartbeat{SessionID: "s-1", Sequence: 3, Timestamp: 42}
	require.NoError(t, client.Send(ctx, hb))

	msg, err := serverCh.Receive(ctx)
	require.NoError(t, err)
	got, ok := msg.(*signaling.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, uint64(3), got.Sequence)

	// And the reverse direction.
	ack := &signaling.HeartbeatAck{
		SessionID:         "s-1",
		Sequence:          3,
		OriginalTimestamp: 42,
		ResponseTimestamp: 43,
		LatencyMS:         1,
	}
	require.NoError(t, serverCh.Send(ctx, ack))
	msg, err = client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, signaling.TypeHeartbeatAck, msg.MessageType())
}

func TestReceiveFailsOnClose(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()

	accepted := make(chan ports.SignalChannel, 1)
	server := NewServer(func(ch ports.SignalChannel) {
		accepted <- ch
	}, time.Second, log)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, err := Dial(context.Background(), url, time.Second)
	require.NoError(t, err)

	serverCh := <-accepted
	require.NoError(t, client.Close())

	_, err = serverCh.Receive(context.Background())
	assert.Error(t, err, "peer close surfaces as a receive error")
}
