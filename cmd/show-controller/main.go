package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"show-controller/internal/clock"
	"show-controller/internal/config"
	"show-controller/internal/core"
	"show-controller/internal/hardware"
	"show-controller/internal/logger"
	"show-controller/internal/messaging"
	"show-controller/internal/sim"
)

func main() {
	var (
		configPath string
		logLevel   string
		logFile    string
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML config file (defaults apply when empty)")
	flag.StringVar(&logLevel, "log", "", "Service log level, 0-4 or none/error/warn/info/debug (overrides log.level)")
	flag.StringVar(&logFile, "logfile", "", "Also write logs to this file, rotated by size")

	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatalf("Failed to load config %s: %v", configPath, err)
		}
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		rotating := logger.NewRotatingWriter(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
		defer rotating.Close()
		out = io.MultiWriter(os.Stdout, rotating)
	}

	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(out, "", 0)
	} else {
		stdLogger = log.New(out, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	l := logger.NewLogger(stdLogger, level)

	l.Infof("Starting show controller...")

	var hw core.HardwareIO
	if cfg.Hardware.Enable {
		hw = hardware.NewLinuxHardwareIO(cfg.Hardware, l)
	}
	redis := messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l)
	vehicle := sim.NewVehicle(cfg.Sim, l)

	system := core.NewShowSystem(cfg, hw, redis, vehicle, clock.NewMonotonic(), l)
	if err := system.Start(); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	l.Infof("Shutdown complete")
}
