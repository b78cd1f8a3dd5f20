package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/pkg/auth"
)

func newRelayServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(8, zap.NewNop())
	svc := NewService(NewMemoryStore(), testDomain, zap.NewNop(), WithPublisher(hub))
	issuer := auth.NewJWTIssuer("0123456789abcdef0123456789abcdef", "fusion-relay", time.Hour)

	r := chi.NewRouter()
	RegisterRoutes(r, Routes{
		Service:       NewLog(svc, zap.NewNop()),
		Authenticator: auth.NewAuthenticator(issuer, time.Minute, nil),
		Issuer:        issuer,
		Stream:        hub,
	}, zap.NewNop())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv, _ := newRelayServer(t)

	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	r1 := NewClient(srv.URL, WithLoginKey(key1))
	r2 := NewClient(srv.URL, WithLoginKey(key2))
	maker := NewClient(srv.URL)

	so := newSignedOrder(t, 1_000_000)
	id, err := maker.Submit(ctx, so.order, so.sig)
	require.NoError(t, err)

	pending, err := r1.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].ID)
	require.Equal(t, 0, pending[0].Order.SrcAmount.Cmp(so.order.SrcAmount))

	claimed, err := r1.Claim(ctx, id)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key1.PublicKey).Hex(), claimed.Resolver)

	if _, err := r2.Claim(ctx, id); !errors.Is(err, ErrClaimLost) {
		t.Fatalf("second claim err = %v, want ErrClaimLost", err)
	}
	if _, err := r2.UpdateStatus(ctx, id, StatusExecuting); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign update err = %v, want ErrForbidden", err)
	}

	_, err = r1.UpdateStatus(ctx, id, StatusExecuting)
	require.NoError(t, err)

	_, err = maker.SubmitSecret(ctx, id, so.secret)
	require.NoError(t, err)

	got, err := r1.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Secret)
	require.Equal(t, so.secret, *got.Secret)

	if _, err := maker.Get(ctx, testDomain.Separator()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestClient_NoCredentials(t *testing.T) {
	srv, _ := newRelayServer(t)
	c := NewClient(srv.URL, WithClientRetries(0))
	so := newSignedOrder(t, 5)
	id, err := c.Submit(context.Background(), so.order, so.sig)
	require.NoError(t, err)

	if _, err := c.Claim(context.Background(), id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"intents":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithClientRetries(3))
	intents, err := c.ListPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, intents)
	require.EqualValues(t, 3, calls.Load())
}

func TestHub_StreamsSubmissions(t *testing.T) {
	srv, hub := newRelayServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/intents/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	so := newSignedOrder(t, 42)
	id, err := NewClient(srv.URL).Submit(context.Background(), so.order, so.sig)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, EventSubmitted, ev.Type)
	require.Equal(t, id, ev.Intent.ID)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
