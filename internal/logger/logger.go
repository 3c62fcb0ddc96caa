package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Стандартные ключи полей.
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldFrameID   = "frame_id"
	FieldSensorID  = "sensor_id"
	FieldTool      = "tool"
	FieldJob       = "job"
	FieldMode      = "mode"
)

// Config описывает настройки логирования.
type Config struct {
	Level     string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format    string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	Output    string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr"`
	NoColor   bool   `mapstructure:"no_color"`
	Timestamp bool   `mapstructure:"timestamp"`
	Caller    bool   `mapstructure:"caller"`
}

// ApplyDefaults заполняет пустые поля значениями по умолчанию.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// Logger — обёртка над zerolog.Logger с именем сервиса.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// New создаёт логгер по конфигурации.
func New(cfg Config, service string) *Logger {
	cfg.ApplyDefaults()
	return NewWithWriter(cfg, service, outputWriter(cfg.Output))
}

// NewWithWriter создаёт логгер, пишущий в w (удобно для тестов).
func NewWithWriter(cfg Config, service string, w io.Writer) *Logger {
	cfg.ApplyDefaults()
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: cfg.NoColor})
	} else {
		zl = zerolog.New(w)
	}
	zl = zl.Level(level)
	if cfg.Timestamp {
		zl = zl.With().Timestamp().Logger()
	}
	if cfg.Caller {
		zl = zl.With().Caller().Logger()
	}
	if service != "" {
		zl = zl.With().Str("service", service).Logger()
	}
	return &Logger{zl: zl, service: service}
}

// Nop возвращает логгер, который ничего не пишет.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithComponent помечает записи именем компонента.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str(FieldComponent, name).Logger(), service: l.service}
}

// WithFields добавляет постоянные поля.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zc := l.zl.With()
	for k, v := range fields {
		zc = zc.Interface(k, v)
	}
	return &Logger{zl: zc.Logger(), service: l.service}
}

// WithError добавляет поле ошибки.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger(), service: l.service}
}

// Zerolog возвращает исходный zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	write(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	write(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	write(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	write(l.zl.Error(), msg, fields)
}

// Fields собирает map из пар ключ-значение.
//
//	log.Info("frame queued", logger.Fields("frame_id", 7, "sensor_id", 3))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields — поля для неудачной операции.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

var (
	globalMu sync.RWMutex
	global   *Logger
)

// Init настраивает глобальный логгер.
func Init(cfg Config, service string) *Logger {
	l := New(cfg, service)
	globalMu.Lock()
	global = l
	globalMu.Unlock()
	return l
}

// Global возвращает глобальный логгер, создавая консольный при необходимости.
func Global() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return Init(Config{Timestamp: true}, "")
}

// WithComponent — сокращение для Global().WithComponent.
func WithComponent(name string) *Logger {
	return Global().WithComponent(name)
}

func write(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	for _, fm := range fields {
		for k, v := range fm {
			event.Interface(k, v)
		}
	}
	event.Msg(msg)
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		fmt.Fprintf(os.Stderr, "[logger] unknown output %q, using stdout\n", output)
		return os.Stdout
	}
}
