package hostext

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NightTerror1721/kpl/internal/value"
)

func startEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEchoClientSendAndReceive(t *testing.T) {
	srv := startEchoServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	ctx := newTestContext()
	v, err := DialEchoClient(ctx, url)
	if err != nil {
		t.Fatalf("DialEchoClient: %v", err)
	}
	meta := ctx.Userdata(v).Meta()

	msg, err := value.NewString(ctx, "ping")
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	meta.SetProperty("send", msg)

	deadline := time.Now().Add(2 * time.Second)
	var got value.Value
	for time.Now().Before(deadline) {
		got = meta.GetProperty("received")
		if !got.IsNull() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got.IsNull() {
		t.Fatal("timed out waiting for the echoed message")
	}
	if s := ctx.String(got).String(); s != "ping" {
		t.Fatalf("received = %q, want %q", s, "ping")
	}
}
