package handlers

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ln-donations/internal/donor/memory"
	"ln-donations/internal/models"
	"ln-donations/internal/processor"
	ws "ln-donations/internal/websocket"
)

func feedURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/donations"
}

func TestServeFeed_SettledDonationReachesClientOnce(t *testing.T) {
	donors := memory.New()
	env := newTestEnv(t, donors)
	seedDonor(t, donors, &models.DonorRecord{
		InvoiceID: "INV1", Name: "Jo Doe", Email: "jo@example.com",
		Amount: decimal.NewFromInt(25), Tier: models.TierFriend, DonationType: models.DonationNamed,
	})
	env.processor.getInvoice = func(_ context.Context, id string) (*processor.Invoice, error) {
		return &processor.Invoice{ID: id, Status: "Settled"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx)

	env.router.GET("/ws/donations", NewWebSocketHandler(testLog(), env.hub).ServeFeed)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(feedURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		resp, err := srv.Client().Get(srv.URL + "/api/donations/status?invoiceId=INV1")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var alert ws.DonationAlert
	require.NoError(t, conn.ReadJSON(&alert))
	assert.Equal(t, "INV1", alert.InvoiceID)
	assert.Equal(t, "Jo Doe", alert.DonorName)
	assert.Equal(t, models.TierFriend, alert.Tier)
	assert.Equal(t, testNow, alert.SettledAt.UTC())

	// The second status read must not produce another alert.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	assert.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected a read timeout, got %v", err)
}

func TestServeFeed_ClosesWhenHubStops(t *testing.T) {
	env := newTestEnv(t, memory.New())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		env.hub.Run(ctx)
		close(stopped)
	}()

	env.router.GET("/ws/donations", NewWebSocketHandler(testLog(), env.hub).ServeFeed)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(feedURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	<-stopped

	// The server sends a close frame once the hub drops the client.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure), "got %v", err)

	// New connections are refused instead of hanging.
	_, resp, err := websocket.DefaultDialer.Dial(feedURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
