package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-beagle/ndiview/internal/config"
)

const (
	AppName    = "ndiview"
	AppVersion = "1.0.0"
)

// checkPortAvailability verifies the configured listener ports are free.
func checkPortAvailability(cfg *config.Config) error {
	portsToCheck := make(map[int]string)

	if cfg.WebServer != nil {
		portsToCheck[cfg.WebServer.Port] = "WebServer"
	}
	if cfg.Metrics != nil && cfg.Metrics.External.Enabled {
		portsToCheck[cfg.Metrics.External.Port] = "Metrics"
	}

	for port, service := range portsToCheck {
		if err := checkPortInUse(port); err != nil {
			return fmt.Errorf("%s port %d is already in use: %v", service, port, err)
		}
	}
	return nil
}

func checkPortInUse(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("TCP port occupied: %v", err)
	}
	listener.Close()
	return nil
}

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		port       = flag.Int("port", 8080, "Web server port")
		host       = flag.String("host", "0.0.0.0", "Web server host")
		source     = flag.String("source", "", "Source name to select at startup")
		logLevel   = flag.String("log-level", "", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
		logOutput  = flag.String("log-output", "", "Log output (stdout, stderr, file)")
		logFile    = flag.String("log-file", "", "Log file path (when log-output is file)")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Println("Headless network stream viewer daemon")
		return
	}

	var cfg *config.Config
	var err error

	if *configFile != "" {
		log.Printf("Loading configuration from: %s", *configFile)
		cfg, err = config.LoadConfigFromFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Command line flags override the file.
	if *port != 8080 {
		cfg.WebServer.Port = *port
	}
	if *host != "0.0.0.0" {
		cfg.WebServer.Host = *host
	}
	if *logLevel != "" {
		if level, err := config.ParseLogLevel(*logLevel); err == nil {
			cfg.Logging.Level = level
		} else {
			log.Printf("Invalid log level '%s': %v", *logLevel, err)
		}
	}
	if *logOutput != "" {
		cfg.Logging.Output = *logOutput
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "file"
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := config.SetupLogger(cfg.Logging); err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}

	if err := checkPortAvailability(cfg); err != nil {
		log.Fatalf("Port availability check failed: %v", err)
	}

	app, err := NewViewerApp(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		log.Fatalf("Application failed to start: %v", err)
	}

	if *source != "" {
		app.SelectSource(*source)
	}

	protocol := "http"
	if cfg.WebServer.EnableTLS {
		protocol = "https"
	}
	fmt.Printf("%s v%s started\n", AppName, AppVersion)
	fmt.Printf("Control plane: %s://%s:%d\n", protocol, cfg.WebServer.Host, cfg.WebServer.Port)
	if cfg.Metrics.External.Enabled {
		fmt.Printf("Metrics: http://%s:%d%s\n", cfg.Metrics.External.Host, cfg.Metrics.External.Port, cfg.Metrics.External.Path)
	}
	fmt.Println("Press Ctrl+C to stop")

	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Lifecycle.ShutdownTimeout)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		log.Printf("Application shutdown error: %v", err)
	} else {
		log.Println("Application stopped gracefully")
	}
}
