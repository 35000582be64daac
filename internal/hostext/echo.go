package hostext

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NightTerror1721/kpl/internal/value"
)

// EchoClient is a Userdata wrapping a live websocket connection.
// SetProperty("send", s) writes a text frame; GetProperty("received")
// drains the most recent frame read back (or Null if none has arrived
// yet); GetProperty("closed") reports connection state.
type EchoClient struct {
	ctx    *value.Context
	conn   *websocket.Conn
	url    string
	closed bool
	last   string
	hasMsg bool
}

// DialEchoClient connects to url and wraps the connection as a KPL Userdata
// value, spawning a background reader the way the source's
// WebSocketConnect does.
func DialEchoClient(ctx *value.Context, url string) (value.Value, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return value.Null, fmt.Errorf("hostext: websocket dial failed: %w", err)
	}

	c := &EchoClient{ctx: ctx, conn: conn, url: url}
	go c.readLoop()
	return value.NewUserdata(ctx, c)
}

func (c *EchoClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed = true
			return
		}
		c.last = string(data)
		c.hasMsg = true
	}
}

func (c *EchoClient) GetProperty(name string) value.Value {
	switch name {
	case "received":
		if !c.hasMsg {
			return value.Null
		}
		s, err := value.NewString(c.ctx, c.last)
		if err != nil {
			return value.Null
		}
		c.hasMsg = false
		return s
	case "closed":
		return value.Bool(c.closed)
	case "url":
		s, err := value.NewString(c.ctx, c.url)
		if err != nil {
			return value.Null
		}
		return s
	default:
		return value.Null
	}
}

func (c *EchoClient) SetProperty(name string, v value.Value) {
	if name != "send" || c.closed || !v.IsString() {
		return
	}
	c.conn.WriteMessage(websocket.TextMessage, c.ctx.String(v).Bytes())
}

func (c *EchoClient) DelProperty(string) {}

// Close releases the backing connection. Userdata.Destroy calls this via
// the optional io.Closer-shaped interface it probes for.
func (c *EchoClient) Close() error {
	c.closed = true
	return c.conn.Close()
}
