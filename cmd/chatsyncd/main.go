package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/daemon"
	"github.com/matheus3301/chatsync/internal/session"
)

func main() {
	layout := session.DefaultLayout()

	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", layout.ConfigPath(), "path to config.toml")
	level := zapcore.InfoLevel
	flag.TextVar(&level, "log-level", zapcore.InfoLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	sessionName := session.Resolve(*sessionFlag, cfg)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	sc, err := cfg.Session(sessionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := session.ValidateShip(sc.Ship); err != nil {
		fmt.Fprintf(os.Stderr, "error: session %q: %v\n", sessionName, err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			Session:     sc,
			Layout:      layout,
			LogLevel:    level,
		}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
	)

	app.Run()
}
