package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeFrame(t *testing.T) {
	b := []byte(`{"type":"listing","data":[{"item_id":7,"price":12.5,"currency":"USD","source":"shopA","location":"NL","stock":3,"t":1704067200000},{"item_id":8,"price":4,"available":false,"t":1704067200000}]}`)
	obs := decodeFrame(b)
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].ItemID != 7 || obs[0].Price != 12.5 || obs[0].Source != "shopA" || !obs[0].Availability || obs[0].StockQuantity != 3 {
		t.Fatalf("unexpected first observation: %+v", obs[0])
	}
	if !obs[0].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", obs[0].Timestamp)
	}
	if obs[1].Availability {
		t.Fatalf("explicit available=false must be kept")
	}
	if decodeFrame([]byte(`{"type":"ping"}`)) != nil {
		t.Fatalf("non-listing frames must be ignored")
	}
	if decodeFrame([]byte(`not json`)) != nil {
		t.Fatalf("garbage must be ignored")
	}
}

func TestClientSubscribeAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Channel
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"listing","data":[{"item_id":1,"price":9.99,"source":"s","t":1704067200000}]}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("k", wsURL, []string{"listings"}, 10*time.Millisecond, time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ch := <-subscribed; ch != "listings" {
		t.Fatalf("unexpected channel %q", ch)
	}

	obs, _ := c.Read(ctx)
	select {
	case o := <-obs:
		if o == nil || o.ItemID != 1 || o.Price != 9.99 {
			t.Fatalf("unexpected observation %+v", o)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for observation")
	}
}
