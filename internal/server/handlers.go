// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Snapshotter reports the relay state for the health endpoint.
type Snapshotter interface {
	Snapshot(ctx context.Context) (relay.Snapshot, error)
}

// WebSocketHandler upgrades GET requests to WebSocket and registers the peer
// with the relay. The connection is served until it ends.
func WebSocketHandler(r Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		cfg := currentConfig()
		ctx, cancel := context.WithTimeout(req.Context(), registerWait)
		sess, outbound, err := openSession(ctx, r, req.RemoteAddr, cfg)
		cancel()
		if err != nil {
			log.Printf("Rejecting WebSocket client %s: %v", req.RemoteAddr, err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "relay unavailable"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		newClient(conn, sess, cfg).serve(outbound, cfg.Heartbeat)
	}
}

// HealthHandler reports that the server is up together with the number of
// connected sessions and rooms.
func HealthHandler(s Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")

		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		snap, err := s.Snapshot(ctx)
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "GoChat relay is unavailable: %v", err)
			return
		}
		_, _ = fmt.Fprintf(w, "GoChat relay is running! sessions=%d rooms=%d", len(snap.Sessions), len(snap.Rooms))
	}
}

// TestPageHandler serves an HTML page for trying the relay from a browser.
// It connects to /ws and sends whatever is typed, so the /list, /join and
// /name commands work as-is.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .help { color: #555; font-size: 0.9em; }
    </style>
</head>
<body>
    <h1>GoChat Relay Test</h1>
    <p class="help">Commands: <code>/list</code>, <code>/join &lt;room&gt;</code>, <code>/name &lt;name&gt;</code>. Anything else is sent to your room.</p>
    <div>
        <input type="text" id="input" placeholder="Type a message or command..." disabled>
        <button id="send" onclick="send()" disabled>Send</button>
        <button id="toggle" onclick="toggle()">Connect</button>
    </div>
    <div id="log"></div>
    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const input = document.getElementById('input');

        function line(text, color) {
            const el = document.createElement('div');
            el.style.color = color || 'black';
            el.textContent = text;
            logDiv.appendChild(el);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function setConnected(on) {
            input.disabled = !on;
            document.getElementById('send').disabled = !on;
            document.getElementById('toggle').textContent = on ? 'Disconnect' : 'Connect';
        }

        function toggle() {
            if (ws) { ws.close(); return; }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => { line('Connected', 'gray'); setConnected(true); };
            ws.onmessage = (ev) => line(ev.data, ev.data.startsWith('!!!') ? 'red' : 'green');
            ws.onclose = () => { line('Disconnected', 'gray'); setConnected(false); ws = null; };
        }

        function send() {
            const text = input.value;
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(text);
                line(text, 'blue');
                input.value = '';
            }
        }

        input.addEventListener('keypress', (e) => { if (e.key === 'Enter') send(); });
    </script>
</body>
</html>`
