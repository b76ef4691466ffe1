package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rivulet-chat/rivulet/internal/client"
	"github.com/rivulet-chat/rivulet/internal/config"
	"github.com/rivulet-chat/rivulet/internal/directory"
	"github.com/rivulet-chat/rivulet/internal/engine"
	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/presence"
	"github.com/rivulet-chat/rivulet/internal/reconcile"
	"github.com/rivulet-chat/rivulet/internal/session"
	"go.uber.org/zap"
)

func main() {
	serverFlag := flag.String("server", "", "daemon base URL (default from config)")
	userFlag := flag.String("user", "", "acting user ID")
	channelFlag := flag.String("channel", "", "channel ID to tail")
	dmFlag := flag.String("dm", "", "peer user ID to open a direct channel with")
	registerFlag := flag.String("register", "", "register a new user with this display name and exit")
	flag.Parse()

	if err := run(*serverFlag, *userFlag, *channelFlag, *dmFlag, *registerFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(server, userID, channelID, dmPeer, register string) error {
	if server == "" {
		server = os.Getenv("RIVULET_SERVER")
	}
	if server == "" {
		if cfg, err := config.Load(session.ConfigPath()); err == nil && cfg.ServerURL != "" {
			server = cfg.ServerURL
		}
	}
	if server == "" {
		server = "http://" + config.DefaultListenAddr
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	api := client.New(server, userID, logger)

	if register != "" {
		u, err := api.CreateUser(ctx, register, "")
		if err != nil {
			return err
		}
		fmt.Printf("registered %s as %s\n", register, u.ID)
		return nil
	}

	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	if channelID == "" && dmPeer == "" {
		return fmt.Errorf("--channel or --dm is required")
	}

	if dmPeer != "" {
		ch, err := api.ResolveDM(ctx, dmPeer)
		if err != nil {
			return err
		}
		channelID = ch.ID
		fmt.Printf("direct channel: %s\n", channelID)
	}

	transport, err := api.DialFeed(ctx)
	if err != nil {
		return err
	}
	registry := feed.NewRegistry(transport, logger)
	registry.Start()
	defer func() { _ = registry.Close() }()

	cache := directory.NewCache(api, 0)
	tracker := presence.NewTracker(cache, logger)
	eng := engine.New(api, registry, tracker, logger)
	defer eng.Shutdown()

	eng.StartPresence()
	view, err := eng.OpenChannel(ctx, channelID)
	if err != nil {
		return err
	}

	go renderLoop(ctx, view, cache, tracker)

	fmt.Println("type a message and press enter (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := eng.Send(ctx, channelID, text, nil); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

// renderLoop prints entries as they appear in the view. Entries keep their
// position when an optimistic send is confirmed, so printing by position
// never repeats a message.
func renderLoop(ctx context.Context, view *reconcile.View, cache *directory.Cache, tracker *presence.Tracker) {
	seen := 0
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		snap := view.Snapshot()
		if seen > len(snap) {
			seen = len(snap) // a failed send was rolled back
		}
		for _, e := range snap[seen:] {
			name := e.Message.SenderID
			if u, err := cache.GetUser(ctx, e.Message.SenderID); err == nil {
				name = u.DisplayName
			}
			marker := ""
			if e.Pending {
				marker = " (sending)"
			} else if tracker.IsOnline(e.Message.SenderID) {
				marker = " *"
			}
			fmt.Printf("[%s]%s %s\n", name, marker, e.Message.Content)
		}
		seen = len(snap)
	}
}
