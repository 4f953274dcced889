package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxlabs/voxd/internal/config"
	"github.com/voxlabs/voxd/internal/protocol"
)

// Client wraps a NATS connection with typed publish/subscribe helpers for
// the pipeline's observer subjects.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("voxd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) Logger() *slog.Logger {
	return c.log
}

// PublishStatus broadcasts a pipeline status change. Publish failures are
// logged, not returned: observers are best-effort and must never stall the
// pipeline.
func (c *Client) PublishStatus(update protocol.StatusUpdate) {
	c.publish(protocol.SubjectStatus, update)
}

// PublishTranscript broadcasts a completed transcription.
func (c *Client) PublishTranscript(tr protocol.Transcript) {
	c.publish(protocol.SubjectTranscript, tr)
}

// PublishCommand sends a listener command from a UI observer.
func (c *Client) PublishCommand(name string) {
	c.publish(protocol.SubjectCommand, protocol.Command{Name: name})
}

func (c *Client) publish(subject string, payload any) {
	if c == nil || c.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("failed to marshal bus payload",
			slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish",
			slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

// SubscribeStatus delivers decoded status updates to fn.
func (c *Client) SubscribeStatus(fn func(protocol.StatusUpdate)) (*nats.Subscription, error) {
	return c.conn.Subscribe(protocol.SubjectStatus, func(msg *nats.Msg) {
		var update protocol.StatusUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			c.log.Warn("failed to decode status update", slog.String("error", err.Error()))
			return
		}
		fn(update)
	})
}

// SubscribeCommands delivers listener commands to fn.
func (c *Client) SubscribeCommands(fn func(protocol.Command)) (*nats.Subscription, error) {
	return c.conn.Subscribe(protocol.SubjectCommand, func(msg *nats.Msg) {
		var cmd protocol.Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.log.Warn("failed to decode command", slog.String("error", err.Error()))
			return
		}
		fn(cmd)
	})
}
