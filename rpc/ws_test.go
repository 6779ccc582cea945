package rpc

import (
	"context"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tokend/core/events"
	"tokend/core/types"
	"tokend/crypto"
)

func TestEventFeedStreamsCommittedEvents(t *testing.T) {
	f := newFixture(t, ServerConfig{AuthToken: testAuthToken})
	broadcaster := events.NewBroadcaster()
	f.server.broadcaster = broadcaster

	httpServer := httptest.NewServer(f.handler)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(httpServer.URL, "http://", "ws://", 1) + "/ws/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	from := addr20(1)
	to := addr20(2)
	// The server subscribes just after the handshake; re-emit until the
	// subscription is in place.
	emitCtx, stopEmitting := context.WithCancel(ctx)
	defer stopEmitting()
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			broadcaster.Emit(events.Transfer{From: from, To: to, Amount: big.NewInt(9)})
			select {
			case <-emitCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var wire types.Event
	require.NoError(t, wsjson.Read(ctx, conn, &wire))
	require.Equal(t, events.TypeTransfer, wire.Type)
	require.Equal(t, "9", wire.Attributes["amount"])
	require.Equal(t, crypto.MustNewAddress(from[:]).String(), wire.Attributes["from"])
}

func TestEventFeedDisabledWithoutBroadcaster(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	httpServer := httptest.NewServer(f.handler)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := strings.Replace(httpServer.URL, "http://", "ws://", 1) + "/ws/events"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, 404, resp.StatusCode)
	}
}

func addr20(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}
