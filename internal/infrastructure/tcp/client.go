package tcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/logger"
)

const (
	DefaultDialTimeout = 3 * time.Second
	DefaultReadTimeout = 5 * time.Second
	DefaultFlushAfter  = 500 * time.Millisecond
	writeTimeout       = 2 * time.Second
	readChunk          = 4096
)

// NoSensor — id датчика для start_rising, где передаётся только метка времени.
const NoSensor = -1

// ErrNotConnected — команда отправлена без соединения.
var ErrNotConnected = errors.New("tcp channel is not connected")

// Handlers — получатели событий канала. Вызываются в горутине чтения и
// не должны блокироваться надолго.
type Handlers struct {
	// SensorIn — фронт датчика на входе (start_sensor,N)
	SensorIn func(sensorID int, receivedAt time.Time)
	// SensorOut — фронт датчика на выходе (end_sensor,N)
	SensorOut func(sensorID int)
	// Trigger — быстрый путь к камере: start_sensor,N и start_rising||ts
	Trigger func(sensorID int, sensorTS int64, receivedAt time.Time)
	// Status — смена состояния соединения с причиной
	Status func(connected bool, reason string)
}

// Option настраивает Client.
type Option func(*Client)

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithFlushAfter задаёт паузу, после которой неполная строка считается сообщением.
func WithFlushAfter(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.flushAfter = d
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client держит одно соединение с контроллером. Переподключение выполняет
// вызывающая сторона повторным вызовом Run.
type Client struct {
	addr        string
	handlers    Handlers
	log         *logger.Logger
	dialTimeout time.Duration
	readTimeout time.Duration
	flushAfter  time.Duration

	mu   sync.Mutex
	conn net.Conn

	stats statsRecorder
}

// NewClient создаёт клиент для адреса host:port.
func NewClient(addr string, h Handlers, opts ...Option) *Client {
	c := &Client{
		addr:        addr,
		handlers:    h,
		log:         logger.Nop(),
		dialTimeout: DefaultDialTimeout,
		readTimeout: DefaultReadTimeout,
		flushAfter:  DefaultFlushAfter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Addr() string { return c.addr }

// Stats возвращает снимок счётчиков.
func (c *Client) Stats() Stats { return c.stats.snapshot() }

// Run подключается и читает сообщения до разрыва соединения или отмены ctx.
// Ошибка возвращается только если подключиться не удалось.
func (c *Client) Run(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.setStatus(false, "connect failed: "+err.Error())
		return apperrors.Transient("connect %s", c.addr).WithCause(err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setStatus(true, "connected to "+c.addr)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	reason := c.readLoop(ctx, conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	c.setStatus(false, reason)
	return nil
}

func (c *Client) setStatus(connected bool, reason string) {
	c.stats.update(func(s *Stats) { s.Connected = connected })
	if connected {
		c.log.Info("tcp channel connected", logger.Fields("addr", c.addr))
	} else {
		c.log.Warn("tcp channel disconnected", logger.Fields("addr", c.addr, "reason", reason))
	}
	if c.handlers.Status != nil {
		c.handlers.Status(connected, reason)
	}
}

// readLoop владеет буфером; возвращает причину выхода.
func (c *Client) readLoop(ctx context.Context, conn net.Conn) string {
	var pending []byte
	chunk := make([]byte, readChunk)

	for {
		wait := c.readTimeout
		if len(pending) > 0 && c.flushAfter < wait {
			wait = c.flushAfter
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))

		n, err := conn.Read(chunk)
		if n > 0 {
			c.stats.update(func(s *Stats) { s.BytesRead += uint64(n) })
			pending = append(pending, chunk[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				c.handleLine(pending[:i])
				pending = pending[i+1:]
			}
		}
		if err == nil {
			continue
		}

		var ne net.Error
		switch {
		case ctx.Err() != nil:
			return "stopped"
		case errors.As(err, &ne) && ne.Timeout():
			if len(pending) > 0 {
				c.stats.update(func(s *Stats) { s.Flushes++ })
				c.handleLine(pending)
				pending = nil
				continue
			}
			c.log.Debug("tcp read timeout", logger.Fields("timeout_ms", wait.Milliseconds()))
		case errors.Is(err, io.EOF):
			return "closed by peer"
		default:
			return err.Error()
		}
	}
}

func (c *Client) handleLine(raw []byte) {
	if !utf8.Valid(raw) {
		c.stats.update(func(s *Stats) { s.UTF8Errors++ })
		c.log.Warn("invalid utf-8 discarded", logger.Fields("bytes", len(raw)))
		return
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return
	}

	receivedAt := time.Now()
	msg, err := ParseMessage(line)
	if err != nil {
		c.stats.update(func(s *Stats) { s.ParseErrors++ })
		c.log.Warn("malformed message", logger.Fields("line", line, logger.FieldError, err.Error()))
		return
	}
	c.stats.update(func(s *Stats) { s.Messages++ })
	c.dispatch(msg, receivedAt)
}

func (c *Client) dispatch(msg Message, receivedAt time.Time) {
	h := c.handlers
	switch msg.Kind {
	case MessageSensorIn:
		id := int(msg.Value)
		// строка очереди должна существовать раньше, чем придёт результат захвата
		if h.SensorIn != nil {
			h.SensorIn(id, receivedAt)
		}
		if h.Trigger != nil {
			h.Trigger(id, 0, receivedAt)
		}
	case MessageSensorOut:
		if h.SensorOut != nil {
			h.SensorOut(int(msg.Value))
		}
	case MessageRising:
		if h.Trigger != nil {
			h.Trigger(NoSensor, msg.Value, receivedAt)
		}
	case MessageIgnored:
		c.log.Debug("message ignored", logger.Fields("line", msg.Raw))
	}
}

// Send отправляет команду, добавляя '\n'.
func (c *Client) Send(command string) error {
	command = strings.TrimRight(command, "\r\n")
	if command == "" {
		return apperrors.InvalidInput("command", "empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := io.WriteString(c.conn, command+"\n")
	c.stats.update(func(s *Stats) { s.BytesWritten += uint64(n) })
	if err != nil {
		return apperrors.Transient("send command").WithCause(err)
	}
	c.stats.update(func(s *Stats) { s.CommandsSent++ })
	c.log.Debug("command sent", logger.Fields("command", command))
	return nil
}

// Close разрывает текущее соединение; Run вернётся с причиной "closed".
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
