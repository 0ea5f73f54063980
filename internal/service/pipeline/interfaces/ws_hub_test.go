package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealflow/internal/service/pipeline/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardHubBroadcastsEvents(t *testing.T) {
	hub := NewBoardHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	event := &domain.PipelineEvent{
		EventID: "e-1",
		Type:    domain.EventDealCreated,
		Deal:    &domain.Deal{ID: 1, ProductName: "A", ProposalMenu: "B"},
	}
	require.NoError(t, hub.Deliver(context.Background(), event))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got domain.PipelineEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "e-1", got.EventID)
	assert.Equal(t, domain.EventDealCreated, got.Type)
	assert.Equal(t, "A", got.Deal.ProductName)
}

func TestBoardHubUnregistersClosedClients(t *testing.T) {
	hub := NewBoardHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBoardHubDeliverWithoutClients(t *testing.T) {
	hub := NewBoardHub()
	assert.NoError(t, hub.Deliver(context.Background(), &domain.PipelineEvent{Type: domain.EventDealUpdated}))
	assert.Equal(t, "websocket", hub.Name())
}
