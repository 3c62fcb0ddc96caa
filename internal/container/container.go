package container

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vision-inspector/config"
	telegram "vision-inspector/internal/api"
	app "vision-inspector/internal/application"
	"vision-inspector/internal/capture"
	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/domain/port"
	"vision-inspector/internal/infrastructure/camera"
	"vision-inspector/internal/infrastructure/mqtt"
	"vision-inspector/internal/infrastructure/storage"
	"vision-inspector/internal/infrastructure/tcp"
	"vision-inspector/internal/infrastructure/vision"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
	"vision-inspector/internal/tools"
)

// simulatedLatency — время «экспозиции» синтетической камеры.
const simulatedLatency = 20 * time.Millisecond

type Container struct {
	Config     *config.Config
	Log        *logger.Logger
	Engine     *pipeline.Engine
	Queue      *storage.MemoryResultQueue
	Capture    *capture.Coordinator
	Inspection *app.InspectionService
	Operators  *app.OperatorService

	// Необязательные подсистемы; nil, если выключены в конфигурации
	TCP  *tcp.Client
	MQTT *mqtt.Publisher
	Bot  *telegram.Bot
}

// New собирает все компоненты по конфигурации.
func New(cfg *config.Config, log *logger.Logger) (*Container, error) {
	registry, err := tools.NewRegistry(vision.Loader(cfg.Pipeline.PreferCUDA, log.WithComponent("vision")), log)
	if err != nil {
		return nil, err
	}

	engine := pipeline.NewEngine(registry,
		pipeline.WithDetectionInterval(cfg.Pipeline.DetectionInterval),
		pipeline.WithEngineLogger(log.WithComponent("pipeline")),
	)
	if cfg.Pipeline.JobFile != "" {
		if _, err := engine.LoadJobFile(cfg.Pipeline.JobFile); err != nil {
			return nil, err
		}
	}

	queue := storage.NewMemoryResultQueue(cfg.Queue.MaxSize, storage.WithQueueLogger(log.WithComponent("queue")))

	cam, err := newCamera(cfg.Camera.Device)
	if err != nil {
		return nil, err
	}
	captureCfg, err := cfg.Camera.CaptureConfig()
	if err != nil {
		return nil, err
	}
	coordinator := capture.NewCoordinator(cam,
		capture.WithConfig(captureCfg),
		capture.WithLiveFPS(cfg.Camera.LiveFPS),
		capture.WithTriggerTimeout(cfg.Camera.TriggerTimeout()),
		capture.WithLogger(log.WithComponent("capture")),
	)
	mode, err := entity.ParseCaptureMode(cfg.Camera.Mode)
	if err != nil {
		return nil, err
	}
	if err := coordinator.SetMode(mode); err != nil {
		return nil, err
	}

	c := &Container{
		Config:    cfg,
		Log:       log,
		Engine:    engine,
		Queue:     queue,
		Capture:   coordinator,
		Operators: app.NewOperatorService(storage.NewMemoryOperatorRepository()),
	}

	opts := []app.InspectionOption{
		app.WithCaptureControl(coordinator),
		app.WithInspectionLogger(log.WithComponent("controller")),
	}
	if cfg.TCP.Enabled {
		c.TCP = newTCPClient(cfg.TCP, queue, coordinator, log.WithComponent("tcp"))
		opts = append(opts, app.WithCommandSender(c.TCP))
	}
	if cfg.MQTT.Enabled {
		c.MQTT = mqtt.NewPublisher(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, log.WithComponent("mqtt"))
		opts = append(opts, app.WithSinks(c.MQTT))
	}

	c.Inspection = app.NewInspectionService(engine, queue, app.InspectionConfig{
		NGWhenDetected: cfg.Inspection.NGWhenDetected,
		OKCommand:      cfg.Actuator.OKCommand,
		NGCommand:      cfg.Actuator.NGCommand,
		FrameBuffer:    cfg.Inspection.FrameBuffer,
	}, opts...)
	coordinator.OnFrame(c.Inspection.HandleFrame)
	coordinator.OnEvent(c.Inspection.HandleCaptureEvent)

	if cfg.Telegram.Enabled {
		bot, err := telegram.NewBot(cfg.Telegram.Token, c.Operators, c.Inspection, log.WithComponent("telegram"))
		if err != nil {
			return nil, err
		}
		c.Bot = bot
		c.Inspection.AddSink(bot)
	}

	return c, nil
}

func newCamera(device string) (port.Camera, error) {
	if device == "" {
		return camera.NewSimulatedCamera(simulatedLatency), nil
	}
	return camera.NewGoCVCamera(device)
}

// newTCPClient направляет события датчиков в очередь и координатор.
func newTCPClient(cfg config.TCPConfig, queue port.ResultQueue, coordinator *capture.Coordinator, log *logger.Logger) *tcp.Client {
	handlers := tcp.Handlers{
		SensorIn: func(sensorID int, _ time.Time) {
			queue.AddSensorInEvent(sensorID)
		},
		SensorOut: func(sensorID int) {
			queue.AddSensorOutEvent(sensorID)
		},
		Trigger: func(sensorID int, sensorTS int64, receivedAt time.Time) {
			coordinator.OnSensorTrigger(sensorID, sensorTS, receivedAt)
		},
	}
	return tcp.NewClient(cfg.Address, handlers,
		tcp.WithDialTimeout(cfg.DialTimeout),
		tcp.WithReadTimeout(cfg.ReadTimeout),
		tcp.WithFlushAfter(cfg.FlushAfter),
		tcp.WithLogger(log),
	)
}

// Run запускает подсистемы и ждёт отмены ctx. Отказ камеры отключает только захват.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := c.Capture.Run(ctx); err != nil {
			c.Log.Error("capture subsystem disabled", logger.ErrorFields("capture", err))
		}
		return nil
	})
	g.Go(func() error { return c.Inspection.Run(ctx) })

	if c.TCP != nil {
		g.Go(func() error {
			c.runTCP(ctx)
			return nil
		})
	}
	if c.MQTT != nil {
		g.Go(func() error {
			if err := c.MQTT.Connect(ctx); err != nil {
				c.Log.Warn("mqtt connect failed, results will not be published", logger.ErrorFields("mqtt_connect", err))
			}
			<-ctx.Done()
			c.MQTT.Disconnect()
			return nil
		})
	}
	if c.Bot != nil {
		g.Go(func() error { return c.Bot.Run(ctx) })
	}

	c.Log.Info("inspector started", logger.Fields(
		logger.FieldJob, c.Engine.Job().Name(),
		logger.FieldMode, string(c.Capture.Mode()),
		"tcp", c.TCP != nil,
		"mqtt", c.MQTT != nil,
		"telegram", c.Bot != nil,
	))
	err := g.Wait()
	c.Close()
	return err
}

// runTCP переподключает канал через reconnect_interval, пока не отменён ctx.
func (c *Container) runTCP(ctx context.Context) {
	interval := c.Config.TCP.ReconnectInterval
	for {
		if err := c.TCP.Run(ctx); err != nil {
			c.Log.Debug("tcp connect failed", logger.ErrorFields("tcp_connect", err))
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Close освобождает ресурсы задания (модели ONNX).
func (c *Container) Close() {
	if err := c.Engine.Job().Close(); err != nil {
		c.Log.Warn("job close failed", logger.ErrorFields("close", err))
	}
}
