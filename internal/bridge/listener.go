// Package bridge receives inter-frame game messages over a WebSocket. The
// listener stays registered for the lifetime of the daemon and reconnects
// on failure; Close tears it down.
package bridge

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Message is the inter-frame payload. Orientation is optional; only the
// literal "black" flips the board.
type Message struct {
	PGN         string `json:"pgn"`
	Orientation string `json:"orientation,omitempty"`
}

// WhiteBottom reports the orientation the message selects.
func (m *Message) WhiteBottom() bool { return m.Orientation != "black" }

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type MessageFunc func(*Message)
type StateFunc func(State)

type Listener struct {
	wsURL string

	conn   *websocket.Conn
	connM  sync.Mutex
	state  State
	stateM sync.RWMutex

	onMessage MessageFunc
	onState   StateFunc

	maxAttempts    int
	reconnectDelay time.Duration
	pingInterval   time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewListener(wsURL string, maxAttempts int, reconnectDelay time.Duration) *Listener {
	return &Listener{
		wsURL:          wsURL,
		state:          StateDisconnected,
		maxAttempts:    maxAttempts,
		reconnectDelay: reconnectDelay,
		pingInterval:   30 * time.Second,
		stopCh:         make(chan struct{}),
	}
}

// OnMessage registers the message callback. Must be called before Connect.
func (l *Listener) OnMessage(fn MessageFunc) { l.onMessage = fn }

// OnStateChange registers the state callback. Must be called before Connect.
func (l *Listener) OnStateChange(fn StateFunc) { l.onState = fn }

func (l *Listener) Connect(ctx context.Context) error {
	l.stateM.Lock()
	if l.state == StateConnected || l.state == StateConnecting {
		l.stateM.Unlock()
		return nil
	}
	l.stateM.Unlock()

	l.rootCtx, l.rootCancel = context.WithCancel(context.Background())
	l.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, l.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		l.setState(StateFailed)
		l.scheduleReconnect()
		return err
	}

	l.setConn(conn)
	l.setState(StateConnected)

	l.wg.Add(2)
	go l.listen()
	go l.pingLoop()
	return nil
}

func (l *Listener) listen() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		conn := l.getConn()
		if conn == nil {
			return
		}
		var msg Message
		if err := wsjson.Read(l.rootCtx, conn, &msg); err != nil {
			if l.isStopping() {
				return
			}
			l.setState(StateDisconnected)
			_ = l.closeConn(websocket.StatusGoingAway, "reconnect")
			l.scheduleReconnect()
			return
		}

		// Frames without a PGN are not game messages.
		if msg.PGN == "" {
			continue
		}
		if l.onMessage != nil {
			l.onMessage(&msg)
		}
	}
}

func (l *Listener) pingLoop() {
	defer l.wg.Done()
	t := time.NewTicker(l.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-l.stopCh:
			return
		case <-t.C:
			conn := l.getConn()
			if conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(l.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if l.isStopping() {
						return
					}
					l.setState(StateDisconnected)
					_ = l.closeConn(websocket.StatusGoingAway, "ping failure")
					l.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (l *Listener) scheduleReconnect() {
	if l.maxAttempts <= 0 {
		return
	}
	l.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= l.maxAttempts; attempt++ {
			select {
			case <-l.stopCh:
				return
			case <-time.After(backoffDelay(l.reconnectDelay, attempt)):
			}

			dialCtx, cancel := context.WithTimeout(l.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, l.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				continue
			}

			l.setConn(conn)
			l.setState(StateConnected)

			l.wg.Add(2)
			go l.listen()
			go l.pingLoop()
			return
		}
		l.setState(StateFailed)
	}()
}

// Close deregisters the listener and waits for its goroutines to stop.
func (l *Listener) Close(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	_ = l.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if l.rootCancel != nil {
			l.rootCancel()
		}
		return nil
	}
}

func (l *Listener) State() State {
	l.stateM.RLock()
	defer l.stateM.RUnlock()
	return l.state
}

func (l *Listener) setState(state State) {
	l.stateM.Lock()
	l.state = state
	l.stateM.Unlock()
	if l.onState != nil {
		l.onState(state)
	}
}

func (l *Listener) setConn(conn *websocket.Conn) {
	l.connM.Lock()
	l.conn = conn
	l.connM.Unlock()
}

func (l *Listener) getConn() *websocket.Conn {
	l.connM.Lock()
	defer l.connM.Unlock()
	return l.conn
}

func (l *Listener) closeConn(code websocket.StatusCode, reason string) error {
	l.connM.Lock()
	conn := l.conn
	l.conn = nil
	l.connM.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

func (l *Listener) isStopping() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * base
}
