package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"PlantDex/internal/domain/models"
	drepo "PlantDex/internal/domain/repository"
	applogger "PlantDex/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a PriceFeed backed by a marketplace listing WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	channels       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new marketplace PriceFeed.
func New(apiKey, websocketURL string, channels []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) drepo.PriceFeed {
	if l == nil {
		l = applogger.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.dialURL()
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.l.Info("price feed connected", applogger.String("url", c.websocketURL))
	return nil
}

type subscribeFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Subscribe subscribes to the configured listing channels.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, ch := range c.channels {
		if err := c.conn.WriteJSON(subscribeFrame{Type: "subscribe", Channel: ch}); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		c.l.Debug("price feed subscribed", applogger.String("channel", ch))
	}
	return nil
}

type listing struct {
	ItemID    int64   `json:"item_id"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	Source    string  `json:"source"`
	Location  string  `json:"location"`
	Available *bool   `json:"available"`
	Stock     int     `json:"stock"`
	T         int64   `json:"t"` // ms
}

type frame struct {
	Type string    `json:"type"`
	Data []listing `json:"data"`
}

func (l listing) observation() *models.Observation {
	avail := true
	if l.Available != nil {
		avail = *l.Available
	}
	return &models.Observation{
		ItemID:        l.ItemID,
		Timestamp:     time.UnixMilli(l.T).UTC(),
		Price:         l.Price,
		Currency:      l.Currency,
		Source:        l.Source,
		Location:      l.Location,
		Availability:  avail,
		StockQuantity: l.Stock,
	}
}

// decodeFrame turns one text frame into observations. Non-listing frames yield nil.
func decodeFrame(b []byte) []*models.Observation {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "listing" {
		return nil
	}
	out := make([]*models.Observation, 0, len(f.Data))
	for _, d := range f.Data {
		out = append(out, d.observation())
	}
	return out
}

// Read streams observations and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Observation, <-chan error) {
	obs := make(chan *models.Observation, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(obs)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if conn == nil {
				errs <- fmt.Errorf("feed conn nil")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			for _, o := range decodeFrame(b) {
				select {
				case obs <- o:
				default:
					// drop on backpressure
					c.l.Warn("price feed backpressure drop", applogger.Int64("item_id", o.ItemID))
				}
			}
		}
	}()

	return obs, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
