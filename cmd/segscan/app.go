package main

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-segscan/config"
	"github.com/nvr-ai/go-segscan/evaluation"
	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/render"
	"github.com/nvr-ai/go-segscan/scheduler"
	"github.com/nvr-ai/go-segscan/source"
	"github.com/nvr-ai/go-segscan/telemetry"
)

type runOptions struct {
	mode       string
	index      int
	headless   bool
	reportPath string
	baseline   string
	profile    time.Duration
}

// resizable is a live source whose capture resolution can change at runtime.
type resizable interface {
	SetResolution(res images.Resolution)
}

func run(ctx context.Context, cfg *config.Config, ro runOptions, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	spec, err := cfg.ModelSpec()
	if err != nil {
		return err
	}

	var dataset source.Dataset
	if cfg.HasDataset() {
		folder, err := source.OpenFolder(cfg.Dataset.Images, cfg.Dataset.Masks, logger)
		if err != nil {
			return err
		}
		dataset = folder
	}
	if ro.mode != "live" && dataset == nil {
		return errors.Errorf("mode %q needs a dataset", ro.mode)
	}

	// Headless test runs never touch the camera.
	var live source.Live = source.Frozen{}
	if !(ro.headless && ro.mode != "live") {
		capture, err := source.OpenCapture(source.CaptureOptions{
			Device:     cfg.Camera.Device,
			Resolution: cfg.Resolution(),
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer capture.Close()
		live = capture
	}

	board := telemetry.NewBoard()
	sinks := telemetry.Fanout{board, telemetry.LogSink{Logger: logger}}
	var mqttSink *telemetry.MQTTSink
	if cfg.Telemetry.MQTT.Enabled {
		mqttOpts := telemetry.MQTTOptions{
			Broker:   cfg.Telemetry.MQTT.Broker,
			ClientID: cfg.Telemetry.MQTT.ClientID,
			Topic:    cfg.Telemetry.MQTT.Topic,
			QoS:      cfg.Telemetry.MQTT.QoS,
		}
		client, err := telemetry.ConnectMQTT(mqttOpts, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		mqttSink = telemetry.NewMQTTSink(client, mqttOpts, logger)
		sinks = append(sinks, mqttSink)
	}

	renderer, err := render.New(render.Options{
		MaskColor:  cfg.Display.MaskColor,
		GridColor:  cfg.Display.GridColor,
		Opacity:    cfg.Display.Opacity,
		ShowMask:   cfg.Display.ShowMask,
		ShowGrid:   cfg.Display.ShowGrid,
		ShowStatus: cfg.Display.ShowStatus,
		Grid:       cfg.Grid,
		Board:      board,
	})
	if err != nil {
		return err
	}

	boundary := inference.NewAsync(func(ctx context.Context) (inference.Predictor, error) {
		s, err := inference.NewSegmenter(inference.SegmenterOptions{
			Model:             spec,
			ModelPath:         cfg.Model.Path,
			SharedLibraryPath: cfg.Model.SharedLibrary,
			IntraOpThreads:    cfg.Model.IntraOpThreads,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			s.Close()
		}()
		return s, nil
	}, cfg.Scan.QueueSize, logger)

	done := make(chan error, 1)
	hooks := scheduler.Hooks{
		OnAutoTestComplete: func(report evaluation.Report) {
			if ro.reportPath != "" {
				if err := report.WriteYAML(ro.reportPath); err != nil {
					logger.WithError(err).Error("failed to write report")
				} else {
					logger.WithField("path", ro.reportPath).Info("report written")
				}
			}
			if ro.baseline != "" {
				compareBaseline(report, ro.baseline, logger)
			}
			if ro.headless && ro.mode == "autotest" {
				select {
				case done <- nil:
				default:
				}
			}
		},
	}
	if ro.headless && ro.mode != "live" {
		hooks.OnFailure = func(err error) {
			select {
			case done <- err:
			default:
			}
		}
		if ro.mode == "test" {
			hooks.OnSample = func(evaluation.Record) {
				select {
				case done <- nil:
				default:
				}
			}
		}
	}

	var container image.Point
	if !ro.headless {
		container = image.Pt(cfg.Display.Width, cfg.Display.Height)
	}
	sched, err := scheduler.New(scheduler.Options{
		Live:         live,
		Dataset:      dataset,
		Boundary:     boundary,
		Presenter:    renderer,
		Sink:         sinks,
		Grid:         cfg.Grid,
		Container:    container,
		Model:        spec.ID,
		TickInterval: cfg.Scan.TickInterval,
		Logger:       logger,
		Hooks:        hooks,
	})
	if err != nil {
		return err
	}

	switch ro.mode {
	case "live":
	case "test":
		sched.EnterTestSingle(ro.index)
	case "autotest":
		sched.StartAutoTest()
	default:
		return errors.Errorf("unknown mode %q", ro.mode)
	}

	boundary.Start(ctx)
	go func() {
		select {
		case err := <-boundary.Failed():
			select {
			case done <- err:
			default:
			}
		case <-ctx.Done():
		}
	}()
	if ro.profile > 0 {
		go newProfiler(ro.profile, boundary, sched, live, mqttSink, logger).Run(ctx)
	}
	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.WithError(err).Error("scheduler stopped")
		}
	}()

	if ro.headless {
		select {
		case err := <-done:
			cancel()
			return err
		case <-ctx.Done():
			return nil
		}
	}
	return display(ctx, cfg, sched, renderer, live, done, logger)
}

// compareBaseline logs how a finished run's mean IoU moved against an earlier
// report.
func compareBaseline(report evaluation.Report, path string, logger logrus.FieldLogger) {
	base, err := evaluation.ReadReport(path)
	if err != nil {
		logger.WithError(err).Warn("baseline report unavailable")
		return
	}
	logger.WithFields(logrus.Fields{
		"baseline_run": base.RunID,
		"baseline":     evaluation.FormatIoU(base.MeanIoU),
		"mean":         evaluation.FormatIoU(report.MeanIoU),
		"delta":        report.MeanIoU - base.MeanIoU,
	}).Info("compared with baseline")
}

// display runs the window loop on the calling goroutine until the window is
// closed, q is pressed or ctx is done.
func display(
	ctx context.Context,
	cfg *config.Config,
	sched *scheduler.Scheduler,
	renderer *render.Renderer,
	live source.Live,
	done <-chan error,
	logger logrus.FieldLogger,
) error {
	window := gocv.NewWindow(cfg.Display.Window)
	defer window.Close()
	window.ResizeWindow(cfg.Display.Width, cfg.Display.Height)

	resolutions := images.GetSupportedResolutions()
	resolutionIndex := 0
	for i, r := range resolutions {
		if r.Name == cfg.Resolution().Name {
			resolutionIndex = i
		}
	}
	grid := cfg.Grid

	var shown uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			return err
		default:
		}

		if frames := renderer.Frames(); frames != shown {
			shown = frames
			if img := renderer.Latest(); img != nil {
				mat, err := gocv.ImageToMatRGBA(img)
				if err == nil {
					window.IMShow(mat)
					mat.Close()
				}
			}
		}

		key := window.WaitKey(15)
		switch key {
		case -1:
		case 'q', 27:
			return nil
		case 'l':
			sched.EnterLive()
		case 't':
			sched.EnterTestSingle(sched.Snapshot().Mode.Index)
		case 'n':
			sched.Next()
		case 'p':
			sched.Prev()
		case 'a':
			sched.StartAutoTest()
		case 'r':
			sched.ResetAccumulator()
		case 'c', 'v':
			if key == 'c' {
				grid.Columns = grid.Columns%inference.MaxGridCells + 1
			} else {
				grid.Rows = grid.Rows%inference.MaxGridCells + 1
			}
			if err := sched.SetGrid(grid); err == nil {
				renderer.SetGrid(grid)
			}
		case 'g':
			renderer.ToggleGrid()
		case 'm':
			renderer.ToggleMask()
		case 's':
			renderer.ToggleStatus()
		case 'x':
			if capture, ok := live.(resizable); ok {
				resolutionIndex = (resolutionIndex + 1) % len(resolutions)
				capture.SetResolution(resolutions[resolutionIndex])
			}
		}

		if shown > 0 && window.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
			logger.Info("window closed")
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}
