// Command kvserver runs the line-protocol KV server (spec.md §4.4). Flag
// parsing is kept deliberately thin -- CLI ergonomics are out of scope per
// spec.md §1, this binary exists only to exercise the library.
package main

import (
	"flag"
	"os"

	"github.com/lutongjia9090/tinykv/internal/config"
	"github.com/lutongjia9090/tinykv/internal/lifecycle"
	"github.com/lutongjia9090/tinykv/internal/lineserver"
	"github.com/lutongjia9090/tinykv/internal/logging"
	"github.com/lutongjia9090/tinykv/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults used if empty)")
	flag.Parse()

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.Errorf("kvserver: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logging.SetLevel("stderr", cfg.Level())

	engine, err := storage.New(cfg.StorageOptions())
	if err != nil {
		logging.Errorf("kvserver: %v", err)
		os.Exit(1)
	}

	srv := lineserver.New(cfg.IP, cfg.Port, engine)
	if err := srv.Start(); err != nil {
		logging.Errorf("kvserver: %v", err)
		engine.Close()
		os.Exit(1)
	}

	if err := lifecycle.Run(srv, engine, cfg.ShutdownTimeoutDuration()); err != nil {
		logging.Errorf("kvserver: shutdown: %v", err)
		os.Exit(1)
	}
}
