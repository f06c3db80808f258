package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facesignal/internal/camera"
	"github.com/dudu/facesignal/internal/config"
	"github.com/dudu/facesignal/internal/detector"
	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/inference"
	"github.com/dudu/facesignal/internal/posture"
	"github.com/dudu/facesignal/internal/session"
	"github.com/dudu/facesignal/internal/stream"
	"github.com/dudu/facesignal/internal/ui"
	"github.com/dudu/facesignal/pkg/log"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	parseFlags(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	logger, err := log.New(log.Options{Level: cfg.LogLevel, File: cfg.LogFile, Caller: cfg.IsDev()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("facesignal stopped")
		os.Exit(1)
	}
}

func parseFlags(cfg *config.Config) {
	flag.IntVar(&cfg.CameraIndex, "camera", cfg.CameraIndex, "Camera device index")
	flag.IntVar(&cfg.CameraIndex, "c", cfg.CameraIndex, "Camera device index (shorthand)")
	flag.IntVar(&cfg.TargetFPS, "fps", cfg.TargetFPS, "Target frames per second")
	flag.Float64Var(&cfg.DisplayScale, "scale", cfg.DisplayScale, "Preview size relative to the camera frame")
	flag.BoolVar(&cfg.Mirror, "mirror", cfg.Mirror, "Mirror the camera image")
	flag.BoolVar(&cfg.Preview, "preview", cfg.Preview, "Show preview window")
	flag.BoolVar(&cfg.Preview, "p", cfg.Preview, "Show preview window (shorthand)")
	flag.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "JSON file overriding classifier thresholds")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Result stream address, empty disables it")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "facesignal - real-time facial expression and posture signals\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facesignal [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facesignal --camera 1\n")
		fmt.Fprintf(os.Stderr, "  facesignal --preview=false --listen :9000\n")
		fmt.Fprintf(os.Stderr, "  facesignal --tuning tuning.json\n")
	}

	flag.Parse()
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	logger.Info("facesignal starting")

	var tuning *config.Tuning
	if cfg.TuningPath != "" {
		t, err := config.LoadTuning(cfg.TuningPath)
		if err != nil {
			return err
		}
		tuning = t
		logger.WithField("path", cfg.TuningPath).Info("tuning loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cam, err := camera.Open(camera.Options{
		DeviceID:     cfg.CameraIndex,
		TargetFPS:    cfg.TargetFPS,
		Width:        cfg.CaptureWidth,
		Height:       cfg.CaptureHeight,
		DisplayScale: cfg.DisplayScale,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer cam.Close()
	cam.Start(ctx)

	loop := session.NewFrameLoop(cfg.TargetFPS)
	canvas := ui.NewCanvas()
	defer canvas.Close()

	sess := session.New(
		detector.Loader{Logger: logger},
		cfg.Locations(),
		loop,
		session.WithLogger(logger),
		session.WithRenderer(ui.MeshRenderer{}),
		session.WithThresholds(tuning.Thresholds()),
		session.WithWeights(tuning.Weights()),
		session.WithFlipHorizontal(cfg.Mirror),
	)
	defer func() {
		if err := sess.Close(); err != nil {
			logger.WithError(err).Warn("failed to close session")
		}
		if err := inference.Shutdown(); err != nil {
			logger.WithError(err).Warn("failed to shut down ONNX Runtime")
		}
	}()

	hub := stream.NewHub(
		stream.WithLogger(logger),
		stream.WithStatus(func() stream.Status {
			return stream.Status{
				Ready:     sess.IsReady(),
				State:     sess.State().String(),
				SessionID: sess.ID(),
				Stats:     sess.Stats(),
			}
		}),
	)
	defer hub.Close()

	if cfg.ListenAddr != "" {
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: hub.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.WithField("addr", cfg.ListenAddr).Info("result stream listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("result stream failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var window *ui.Window
	if cfg.Preview {
		w, h := cam.DisplaySize()
		window = ui.NewWindow("facesignal", w, h)
		defer window.Close()
	}

	onDetection := func(expr expression.Result, pose posture.Result) {
		hub.Publish(stream.Report{SessionID: sess.ID(), Expressions: expr, Posture: pose})
		if window != nil {
			window.SetStatus(expr, pose)
		}
		if pose.Level >= posture.LevelModerate {
			logger.WithFields(log.Fields{
				"slouch_level": pose.Level.String(),
				"score":        pose.Score,
			}).Debug("posture alert")
		}
	}

	logger.Info("loading face mesh")
	sess.Run(ctx, cam, canvas, onDetection)
	if !sess.IsReady() {
		return fmt.Errorf("face detection unavailable: %w", sess.LastError())
	}
	logger.WithField("location", sess.Location().Name).Info("running, press 'q' to quit")

	loopCtx, quit := context.WithCancel(ctx)
	defer quit()

	if window != nil {
		frame := gocv.NewMat()
		defer frame.Close()

		var preview func()
		preview = func() {
			if cam.Snapshot(&frame) {
				if cfg.Mirror {
					gocv.Flip(frame, &frame, 1)
				}
				window.Show(&frame, canvas)
			}
			// WaitKey must be called to process window events on macOS
			key := window.WaitKey(1)
			if key == 'q' || key == 27 { // 'q' or ESC
				logger.Info("quit requested")
				quit()
				return
			}
			loop.RequestFrame(preview)
		}
		loop.RequestFrame(preview)
	}

	err = loop.Run(loopCtx)
	sess.Stop()

	st := sess.Stats()
	logger.WithFields(log.Fields{
		"ticks":     st.Ticks,
		"delivered": st.Delivered,
		"no_face":   st.NoFace,
		"failed":    st.Failed,
		"dropped":   hub.Dropped(),
	}).Info("shutting down")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
