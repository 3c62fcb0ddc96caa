package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/logger"
)

// EnvPrefix — префикс переменных окружения: INSPECTOR_CAMERA_MODE и т.п.
const EnvPrefix = "INSPECTOR"

type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Logging    logger.Config    `mapstructure:"logging"`
	Camera     CameraConfig     `mapstructure:"camera"`
	TCP        TCPConfig        `mapstructure:"tcp"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Inspection InspectionConfig `mapstructure:"inspection"`
	Actuator   ActuatorConfig   `mapstructure:"actuator"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"omitempty,oneof=development production test"`
}

type CameraConfig struct {
	// Device — номер устройства или URL; пустое значение включает синтетическую камеру
	Device          string  `mapstructure:"device"`
	Width           int     `mapstructure:"width" validate:"gt=0"`
	Height          int     `mapstructure:"height" validate:"gt=0"`
	PixelFormat     string  `mapstructure:"pixel_format" validate:"oneof=RGB BGR RGBA YUV420"`
	ExposureUS      int     `mapstructure:"exposure_us" validate:"gt=0"`
	AutoExposure    bool    `mapstructure:"auto_exposure"`
	Mode            string  `mapstructure:"mode" validate:"oneof=off live trigger external"`
	CooldownS       float64 `mapstructure:"cooldown_s" validate:"gte=0"`
	PendingDelayMS  int     `mapstructure:"pending_delay_ms" validate:"gte=0"`
	LiveFPS         float64 `mapstructure:"live_fps" validate:"gt=0,lte=120"`
	TriggerTimeoutS float64 `mapstructure:"trigger_timeout_s" validate:"gt=0"`
}

// Cooldown — минимальный интервал между триггерами.
func (c CameraConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownS * float64(time.Second))
}

func (c CameraConfig) TriggerTimeout() time.Duration {
	return time.Duration(c.TriggerTimeoutS * float64(time.Second))
}

// CaptureConfig переводит настройки в доменную структуру.
func (c CameraConfig) CaptureConfig() (entity.CaptureConfig, error) {
	pf, err := entity.ParsePixelFormat(c.PixelFormat)
	if err != nil {
		return entity.CaptureConfig{}, err
	}
	return entity.CaptureConfig{
		PixelFormat:     pf,
		ExposureUS:      c.ExposureUS,
		AutoExposure:    c.AutoExposure,
		Width:           c.Width,
		Height:          c.Height,
		JobMode:         true,
		ExternalTrigger: c.Mode == string(entity.ModeExternal),
		Cooldown:        c.Cooldown(),
		PendingDelay:    time.Duration(c.PendingDelayMS) * time.Millisecond,
	}, nil
}

type TCPConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Address           string        `mapstructure:"address" validate:"required_if=Enabled true"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	FlushAfter        time.Duration `mapstructure:"flush_after" validate:"gt=0"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" validate:"gt=0"`
}

type QueueConfig struct {
	MaxSize int `mapstructure:"max_size" validate:"gt=0"`
}

type PipelineConfig struct {
	JobFile           string        `mapstructure:"job_file"`
	DetectionInterval time.Duration `mapstructure:"detection_interval" validate:"gte=0"`
	PreferCUDA        bool          `mapstructure:"prefer_cuda"`
}

type InspectionConfig struct {
	NGWhenDetected bool `mapstructure:"ng_when_detected"`
	FrameBuffer    int  `mapstructure:"frame_buffer" validate:"gt=0"`
}

type ActuatorConfig struct {
	OKCommand string `mapstructure:"ok_command"`
	NGCommand string `mapstructure:"ng_command"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker" validate:"required_if=Enabled true"`
	Topic    string `mapstructure:"topic" validate:"required_if=Enabled true"`
	ClientID string `mapstructure:"client_id"`
	QoS      uint8  `mapstructure:"qos" validate:"lte=2"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "vision-inspector")
	v.SetDefault("service.environment", "production")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.no_color", false)
	v.SetDefault("logging.timestamp", true)
	v.SetDefault("logging.caller", false)

	v.SetDefault("camera.device", "")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.pixel_format", "RGB")
	v.SetDefault("camera.exposure_us", 10000)
	v.SetDefault("camera.auto_exposure", true)
	v.SetDefault("camera.mode", "trigger")
	v.SetDefault("camera.cooldown_s", 0.25)
	v.SetDefault("camera.pending_delay_ms", 0)
	v.SetDefault("camera.live_fps", 15)
	v.SetDefault("camera.trigger_timeout_s", 5)

	v.SetDefault("tcp.enabled", false)
	v.SetDefault("tcp.address", "")
	v.SetDefault("tcp.dial_timeout", 3*time.Second)
	v.SetDefault("tcp.read_timeout", 5*time.Second)
	v.SetDefault("tcp.flush_after", 500*time.Millisecond)
	v.SetDefault("tcp.reconnect_interval", 5*time.Second)

	v.SetDefault("queue.max_size", 100)

	v.SetDefault("pipeline.job_file", "")
	v.SetDefault("pipeline.detection_interval", time.Second/12)
	v.SetDefault("pipeline.prefer_cuda", true)

	v.SetDefault("inspection.ng_when_detected", true)
	v.SetDefault("inspection.frame_buffer", 8)

	v.SetDefault("actuator.ok_command", "")
	v.SetDefault("actuator.ng_command", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "inspector/results")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
}

// Load читает .env, YAML-файл (если path не пуст) и переменные INSPECTOR_*,
// затем проверяет результат.
func Load(path string) (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// прежнее имя переменной с токеном бота
	_ = v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Configuration("read config %s", path).WithCause(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Configuration("decode config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения по тегам validate.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return apperrors.Configuration("invalid config: %s", strings.Join(fields, ", ")).WithCause(err)
		}
		return apperrors.Configuration("invalid config").WithCause(err)
	}
	return nil
}
