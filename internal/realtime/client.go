package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConfig holds websocket connection settings.
type ClientConfig struct {
	URL          string        `yaml:"url"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultClientConfig returns the client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for invalid values.
func (c ClientConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be positive, got %v", c.DialTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	return nil
}

// Handler receives decoded events and the connection-closed signal. OnClosed
// is called exactly once per connection, with a nil error after a clean
// close initiated by Close.
type Handler interface {
	OnEvent(event ServerEvent)
	OnClosed(err error)
}

// Client is one websocket connection to the realtime service. A client is
// single use: dial, exchange messages, close. Reconnection is the caller's
// concern.
type Client struct {
	config  ClientConfig
	handler Handler
	logger  *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the realtime service authenticating with the given
// bearer token and starts the read loop.
func Dial(ctx context.Context, config ClientConfig, token string, handler Handler, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid realtime client config: %w", err)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: config.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime service: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime service: %w", err)
	}

	c := &Client{
		config:  config,
		handler: handler,
		logger:  logger,
		conn:    conn,
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SendSessionUpdate transmits the session configuration.
func (c *Client) SendSessionUpdate(settings SessionSettings) error {
	data, err := MarshalSessionUpdate(settings)
	if err != nil {
		return err
	}
	return c.write(data)
}

// SendAudio transmits one chunk of caller PCM-16 audio.
func (c *Client) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	data, err := MarshalInputAudioAppend(pcm)
	if err != nil {
		return err
	}
	return c.write(data)
}

// RequestGreeting injects a user turn and asks the model to respond, so the
// agent speaks first when the call opens.
func (c *Client) RequestGreeting(text string) error {
	item, err := MarshalUserMessage(text)
	if err != nil {
		return err
	}
	if err := c.write(item); err != nil {
		return err
	}
	create, err := MarshalResponseCreate()
	if err != nil {
		return err
	}
	return c.write(create)
}

// Close shuts the connection down cleanly. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(c.config.WriteTimeout)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write to realtime service: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				c.handler.OnClosed(nil)
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.handler.OnClosed(nil)
				} else {
					c.handler.OnClosed(err)
				}
			}
			return
		}

		event, err := ParseServerEvent(data)
		if err != nil {
			c.logger.Warn("dropping undecodable server event", slog.String("error", err.Error()))
			continue
		}
		if event.Kind == KindUnknown {
			c.logger.Debug("ignoring unhandled server event", slog.String("type", event.Type))
			continue
		}
		c.handler.OnEvent(event)
	}
}
