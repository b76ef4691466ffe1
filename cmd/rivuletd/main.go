package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rivulet-chat/rivulet/internal/config"
	"github.com/rivulet-chat/rivulet/internal/daemon"
	"github.com/rivulet-chat/rivulet/internal/session"
	"go.uber.org/fx"
)

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	listenAddr := *listenFlag
	if listenAddr == "" {
		listenAddr = os.Getenv("RIVULET_LISTEN_ADDR")
	}
	if listenAddr == "" {
		if cfg, err := config.Load(session.ConfigPath()); err == nil && cfg.ListenAddr != "" {
			listenAddr = cfg.ListenAddr
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, ListenAddr: listenAddr}),
	)

	app.Run()
}
