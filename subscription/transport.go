package subscription

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/time-coin/timecoin/tcwire"
)

// WebsocketTransport delivers notifications to a client over a gorilla
// websocket connection. Writes are serialized with a mutex since gorilla
// connections do not support concurrent writers.
type WebsocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebsocketTransport wraps an already-established connection.
func NewWebsocketTransport(conn *websocket.Conn) *WebsocketTransport {
	return &WebsocketTransport{conn: conn}
}

// Send implements Transport.
func (t *WebsocketTransport) Send(n tcwire.UTXOStateNotification) error {
	payload, err := json.Marshal(struct {
		Type string                       `json:"type"`
		Body tcwire.UTXOStateNotification `json:"body"`
	}{Type: string(tcwire.MsgUTXOStateNotification), Body: n})
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// ChannelTransport delivers notifications to an in-process channel. Used
// by tests and by same-process subscribers that don't need a network
// hop.
type ChannelTransport struct {
	C chan tcwire.UTXOStateNotification
}

// NewChannelTransport returns a ChannelTransport with a buffered channel
// of the given depth.
func NewChannelTransport(depth int) *ChannelTransport {
	return &ChannelTransport{C: make(chan tcwire.UTXOStateNotification, depth)}
}

// Send implements Transport.
func (t *ChannelTransport) Send(n tcwire.UTXOStateNotification) error {
	select {
	case t.C <- n:
		return nil
	default:
		return errFullChannel
	}
}

var errFullChannel = channelFullError{}

type channelFullError struct{}

func (channelFullError) Error() string { return "subscription: channel transport buffer full" }
