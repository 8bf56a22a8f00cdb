// Command swipecli is an interactive terminal client: create or join a
// session, swipe through the candidates and see matches as they happen.
//
// Usage:
//
//	swipecli -create [-category thai] [-price '$$']
//	swipecli -join 'http://localhost:8080/join?sessionCode=ABC123'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/client"
	"github.com/tastebuds/match-app/internal/config"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		color.Red("swipecli: %v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("swipecli", flag.ContinueOnError)
	apiURL := fs.String("api", cfg.Client.APIBaseURL, "API base URL")
	token := fs.String("token", cfg.Client.Token, "bearer token (defaults to API_TOKEN)")
	create := fs.Bool("create", false, "create a new session")
	join := fs.String("join", "", "invite link or session code to join")
	category := fs.String("category", "", "cuisine filter for a new session")
	price := fs.String("price", "", "price range filter for a new session")
	push := fs.Bool("push", true, "listen for push notifications")
	verbose := fs.Bool("v", false, "log client diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *create == (*join != "") {
		return errors.New("pass exactly one of -create or -join")
	}
	if *token == "" {
		return errors.New("no token: pass -token or set API_TOKEN")
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.NewHTTPClient(*apiURL, *token, cfg.Client.RequestTimeout)
	term := newTerminal(os.Stdin, color.Output, api)
	loop := client.NewLoop(api, term, term, client.Config{
		JoinPollInterval:  cfg.Client.JoinPollInterval,
		MatchPollInterval: cfg.Client.MatchPollInterval,
	}, logger)

	var view *client.SessionView
	if *create {
		view, err = loop.Create(ctx, domain.Filters{Category: *category, PriceRange: *price})
	} else {
		view, err = loop.Join(ctx, *join)
	}
	if err != nil {
		return err
	}
	term.inviteURL = view.InviteURL
	color.Cyan("session %s (%d candidates)", view.Code, len(view.CandidateIDs))

	if *push {
		stream, err := client.NewPushStream(*apiURL, *token, view.ID, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := stream.Run(ctx, client.WakeOn(loop)); err != nil {
				logger.Warn("push stream ended, falling back to polling", zap.Error(err))
			}
		}()
	}

	err = loop.Run(ctx, view.ID)
	if errors.Is(err, errQuit) {
		fmt.Println("bye")
		return nil
	}
	return err
}
