package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/ttygate/ttygate/internal/database"
	"github.com/ttygate/ttygate/internal/logutil"
	"github.com/ttygate/ttygate/internal/term"
)

// Application close codes. 4001 and 4004 are part of the client contract.
const (
	closeUnauthorized websocket.StatusCode = 4001
	closeNotFound     websocket.StatusCode = 4004
	closeServerError  websocket.StatusCode = 4500
)

// outputPollInterval is how long the output pump sleeps when the PTY had
// nothing to read. Bounds both output latency and cancellation latency.
const outputPollInterval = 10 * time.Millisecond

// terminalRateLimit defines the maximum number of messages allowed per second
// per WebSocket connection. Messages beyond this rate are dropped.
const terminalRateLimit = 200

// terminalRateBurst is the token bucket burst size, allowing short bursts
// of rapid input (e.g., paste operations) before rate limiting kicks in.
const terminalRateBurst = 200

// maxInputMessageSize is the maximum size in bytes for a single terminal
// input message. Larger messages are dropped.
const maxInputMessageSize = 64 * 1024

// maxResizeCols and maxResizeRows bound client resize requests.
const (
	maxResizeCols uint16 = 500
	maxResizeRows uint16 = 500
)

// controlMsg is a JSON text frame from the client. Binary frames carry raw
// terminal input instead.
type controlMsg struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

type serverMsg struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// TerminalWS handles GET /ws/terminal/{sessionID}.
//
// The bearer token arrives as a `token` query parameter. An invalid token
// closes the connection with 4001 before any session lookup or process
// spawn. An unknown session gets one error frame, then close 4004.
// Otherwise a bridge is started and the attach loop runs until either side
// goes away; the bridge is always torn down before the handler returns.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	token := r.URL.Query().Get("token")

	_, authErr := Tokens.VerifyAccessToken(token)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("terminal: accept websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	if authErr != nil {
		log.Printf("terminal: rejected connection to %q: %v", logutil.Sanitize(sessionID), authErr)
		conn.Close(closeUnauthorized, "Unauthorized")
		return
	}

	ctx := r.Context()
	conn.SetReadLimit(1024 * 1024)

	sess, err := Sessions.Get(ctx, sessionID)
	if err != nil {
		log.Printf("terminal: resolve session %q: %v", logutil.Sanitize(sessionID), err)
		sendControl(ctx, conn, serverMsg{Type: "error", Message: "Failed to resolve session"})
		conn.Close(closeServerError, "Session lookup failed")
		return
	}
	if sess == nil {
		sendControl(ctx, conn, serverMsg{Type: "error", Message: fmt.Sprintf("Session not found: %s", sessionID)})
		conn.Close(closeNotFound, "Session not found")
		return
	}

	bridge := term.NewBridge(Sessions, sessionID)
	defer bridge.Close()

	if err := bridge.Start(); err != nil {
		log.Printf("terminal: start bridge for %q: %v", logutil.Sanitize(sessionID), err)
		sendControl(ctx, conn, serverMsg{Type: "error", Message: err.Error()})
		conn.Close(closeServerError, "Failed to attach session")
		return
	}

	ip := clientIP(r)
	database.RecordAudit(database.AuditTerminalAttach, sessionID, ip)
	defer database.RecordAudit(database.AuditTerminalDetach, sessionID, ip)

	log.Printf("terminal: attached session=%s remote=%s", logutil.Sanitize(sessionID), ip)

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	// PTY output -> client. Polls because PTY readiness isn't otherwise
	// exposed; the interval bounds output latency and cancellation lag.
	go func() {
		defer relayCancel()
		for {
			if !bridge.IsRunning() {
				sendControl(relayCtx, conn, serverMsg{Type: "closed", Reason: "process exited"})
				return
			}
			data := bridge.ReadOutput()
			if len(data) > 0 {
				if err := conn.Write(relayCtx, websocket.MessageBinary, data); err != nil {
					return
				}
				continue
			}
			select {
			case <-relayCtx.Done():
				return
			case <-time.After(outputPollInterval):
			}
		}
	}()

	// Client -> PTY input. Runs on the handler goroutine; returns when the
	// client disconnects or the output pump cancels the relay context.
	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)
	func() {
		defer relayCancel()
		for {
			msgType, data, err := conn.Read(relayCtx)
			if err != nil {
				return
			}
			if !limiter.allow() {
				continue
			}
			if msgType == websocket.MessageBinary {
				if len(data) > maxInputMessageSize {
					continue
				}
				bridge.WriteInput(data)
				continue
			}
			handleControl(relayCtx, conn, bridge, data)
		}
	}()

	log.Printf("terminal: detached session=%s remote=%s", logutil.Sanitize(sessionID), ip)

	// Tear the bridge down before completing the close handshake so the
	// client never observes a closed connection while the process is still
	// alive. The deferred Close stays for the early-exit paths.
	bridge.Close()
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleControl dispatches one text frame. Undecodable or unknown messages
// are dropped; the connection stays open.
func handleControl(ctx context.Context, conn *websocket.Conn, bridge *term.Bridge, data []byte) {
	var msg controlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "input":
		decoded, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return
		}
		if len(decoded) > maxInputMessageSize {
			return
		}
		bridge.WriteInput(decoded)

	case "resize":
		// Missing or nonsensical dimensions fall back to the default
		// geometry rather than failing the message.
		cols, rows := msg.Cols, msg.Rows
		if cols <= 0 {
			cols = int(term.DefaultCols)
		}
		if rows <= 0 {
			rows = int(term.DefaultRows)
		}
		if cols > int(maxResizeCols) {
			cols = int(maxResizeCols)
		}
		if rows > int(maxResizeRows) {
			rows = int(maxResizeRows)
		}
		bridge.Resize(uint16(cols), uint16(rows))

	case "ping":
		sendControl(ctx, conn, serverMsg{Type: "pong"})
	}
}

// sendControl writes a JSON text frame, best-effort.
func sendControl(ctx context.Context, conn *websocket.Conn, msg serverMsg) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

// tokenBucket implements a simple token bucket rate limiter for terminal
// messages.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}
