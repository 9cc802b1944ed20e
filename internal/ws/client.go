package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/cafe-pos/register/internal/auth"
	"github.com/cafe-pos/register/internal/events"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay below pongWait
	maxMessageSize = 512
	sendBuffer     = 256
)

// AllKinds is the default subscription.
var AllKinds = []events.Kind{
	events.KindTicketCreated,
	events.KindTicketReadyToPay,
	events.KindPaymentProcessed,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is checked via JWT
	},
}

// Client is a single display connection subscribed to a set of event kinds.
// The hub owns send: it fills it with frames for those kinds and closes it
// when the client is dropped or the hub stops.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	kinds []events.Kind
	send  chan []byte
	log   logrus.FieldLogger
}

func newClient(hub *Hub, conn *websocket.Conn, kinds []events.Kind, userID int64) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		kinds: kinds,
		send:  make(chan []byte, sendBuffer),
		log:   hub.logger.WithFields(logrus.Fields{"usuario_id": userID, "kinds": kinds}),
	}
}

// ReadPump only detects disconnects; displays never send messages.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}
	}
}

// WritePump delivers each event frame for the client's kinds as its own text
// message and pings the display between events. It returns when the hub
// closes send or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.goodbye()
				return
			}
			err = c.writeFrame(websocket.TextMessage, frame)
		case <-ticker.C:
			err = c.writeFrame(websocket.PingMessage, nil)
		}
		if err != nil {
			c.log.WithError(err).Debug("display write failed")
			return
		}
	}
}

func (c *Client) writeFrame(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// goodbye tells the display why the feed ended: the register is going away,
// or this client fell behind and was dropped.
func (c *Client) goodbye() {
	reason := "subscriber too slow"
	if c.hub.Stopped() {
		reason = "register shutting down"
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.writeFrame(websocket.CloseMessage, msg)
}

// ParseKinds reads a comma-separated kind filter. Empty or unknown-only input
// subscribes to every kind.
func ParseKinds(raw string) []events.Kind {
	var out []events.Kind
	for _, part := range strings.Split(raw, ",") {
		k := events.Kind(strings.TrimSpace(part))
		for _, known := range AllKinds {
			if k == known {
				out = append(out, k)
				break
			}
		}
	}
	if len(out) == 0 {
		return AllKinds
	}
	return out
}

// ServeWS upgrades a display connection.
// Endpoint: WS /ws/events?token=JWT&kinds=ticket.created,ticket.ready_to_pay
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		if auth.IsExpired(err) {
			http.Error(w, "token expired", http.StatusUnauthorized)
			return
		}
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if hub.Stopped() {
		http.Error(w, "register shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := newClient(hub, conn, ParseKinds(r.URL.Query().Get("kinds")), claims.UserID)
	if !hub.join(client) {
		// The hub stopped during the upgrade.
		client.goodbye()
		conn.Close()
		return
	}
	client.log.Debug("display connected")

	go client.WritePump()
	go client.ReadPump()
}
