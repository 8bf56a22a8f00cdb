// Command swipesim drives pairs of simulated users through full sessions
// against a running API server and reports latency and match statistics.
//
// Usage:
//
//	swipesim [-pairs 50] [-concurrency 10] [-like-rate 0.5]
//
// Tokens are minted locally, so AUTH_JWT_SECRET and AUTH_JWT_ISSUER must
// match the server's.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tastebuds/match-app/internal/auth"
	"github.com/tastebuds/match-app/internal/client"
	"github.com/tastebuds/match-app/internal/config"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/logging"
	"github.com/tastebuds/match-app/internal/swipe"
)

type options struct {
	apiURL      string
	pairs       int
	concurrency int
	likeRate    float64
	think       time.Duration
	pairTimeout time.Duration
	poll        time.Duration
	filters     domain.Filters
	seed        uint64
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "swipesim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	var opts options
	fs := flag.NewFlagSet("swipesim", flag.ContinueOnError)
	fs.StringVar(&opts.apiURL, "api", cfg.Client.APIBaseURL, "API base URL")
	fs.IntVar(&opts.pairs, "pairs", 50, "number of sessions to simulate")
	fs.IntVar(&opts.concurrency, "concurrency", 10, "sessions running at once")
	fs.Float64Var(&opts.likeRate, "like-rate", 0.5, "probability that a simulated user likes a candidate")
	fs.DurationVar(&opts.think, "think", 50*time.Millisecond, "pause before each decision")
	fs.DurationVar(&opts.pairTimeout, "timeout", 2*time.Minute, "limit for one session")
	fs.DurationVar(&opts.poll, "poll", 500*time.Millisecond, "join and match poll interval")
	fs.StringVar(&opts.filters.Category, "category", "", "cuisine filter")
	fs.StringVar(&opts.filters.PriceRange, "price", "", "price range filter")
	fs.Uint64Var(&opts.seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		opts:      opts,
		tokens:    auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, opts.pairTimeout+time.Hour),
		collector: NewCollector(),
		logger:    logger,
		timeout:   cfg.Client.RequestTimeout,
		runID:     fmt.Sprintf("%x", opts.seed&0xffffff),
	}

	fmt.Printf("Simulating %d sessions against %s (concurrency=%d, like-rate=%.2f)\n",
		opts.pairs, opts.apiURL, opts.concurrency, opts.likeRate)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for i := 0; i < opts.pairs; i++ {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := sim.runPair(gctx, i); err != nil {
				sim.collector.AddError()
				logger.Warn("pair failed", zap.Int("pair", i), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sim.collector.Report(os.Stdout)
	if sim.collector.ErrorCount() > 0 {
		return fmt.Errorf("%d sessions failed", sim.collector.ErrorCount())
	}
	return nil
}

type simulator struct {
	opts      options
	tokens    *auth.Manager
	collector *Collector
	logger    *zap.Logger
	timeout   time.Duration
	runID     string
}

func (s *simulator) runPair(ctx context.Context, i int) error {
	apiA, err := s.clientFor(fmt.Sprintf("sim-%s-%d-a", s.runID, i))
	if err != nil {
		return err
	}
	apiB, err := s.clientFor(fmt.Sprintf("sim-%s-%d-b", s.runID, i))
	if err != nil {
		return err
	}

	setupStart := time.Now()
	view, err := apiA.CreateSession(ctx, s.opts.filters)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := apiB.JoinSession(ctx, view.Code); err != nil {
		return fmt.Errorf("join %s: %w", view.Code, err)
	}
	s.collector.AddSetup(time.Since(setupStart))

	pairCtx, cancel := context.WithTimeout(ctx, s.opts.pairTimeout)
	defer cancel()

	start := time.Now()
	presA := newSimPresenter(func(domain.Match) { s.collector.AddMatch(time.Since(start)) })
	presB := newSimPresenter(nil)

	loopCfg := client.Config{JoinPollInterval: s.opts.poll, MatchPollInterval: s.opts.poll}
	loopA := client.NewLoop(apiA, s.decider(i, 0), presA, loopCfg, s.logger)
	loopB := client.NewLoop(apiB, s.decider(i, 1), presB, loopCfg, s.logger)

	g, gctx := errgroup.WithContext(pairCtx)
	g.Go(func() error { return loopA.Run(gctx, view.ID) })
	g.Go(func() error { return loopB.Run(gctx, view.ID) })
	g.Go(func() error {
		defer cancel()
		if err := s.awaitCompletion(gctx, apiA, view.ID, presA, presB); err != nil {
			return err
		}
		s.collector.AddCompleted()
		// One more match poll so both loops surface the final matches.
		loopA.Wake()
		select {
		case <-time.After(s.opts.poll):
		case <-gctx.Done():
		}
		return nil
	})
	return g.Wait()
}

func (s *simulator) awaitCompletion(ctx context.Context, api client.API, sessionID string, presenters ...*simPresenter) error {
	for _, p := range presenters {
		select {
		case <-p.done:
		case <-ctx.Done():
			return fmt.Errorf("session %s: swiping did not finish: %w", sessionID, ctx.Err())
		}
	}

	ticker := time.NewTicker(s.opts.poll)
	defer ticker.Stop()
	for {
		sess, err := api.GetSession(ctx, sessionID)
		if err == nil && sess.Status == domain.StatusCompleted {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("session %s: not completed: %w", sessionID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *simulator) clientFor(userID string) (*timedAPI, error) {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		return nil, err
	}
	return &timedAPI{
		HTTPClient: client.NewHTTPClient(s.opts.apiURL, token, s.timeout),
		collector:  s.collector,
	}, nil
}

func (s *simulator) decider(pair, side int) *randomDecider {
	return &randomDecider{
		rng:      rand.New(rand.NewPCG(s.opts.seed, uint64(pair*2+side))),
		likeRate: s.opts.likeRate,
		think:    s.opts.think,
	}
}

// timedAPI records swipe round trips.
type timedAPI struct {
	*client.HTTPClient
	collector *Collector
}

func (t *timedAPI) RecordSwipe(ctx context.Context, sessionID, restaurantID string, liked bool) (*swipe.Result, error) {
	start := time.Now()
	res, err := t.HTTPClient.RecordSwipe(ctx, sessionID, restaurantID, liked)
	if err == nil {
		t.collector.AddSwipe(time.Since(start))
	} else if !errors.Is(err, context.Canceled) {
		t.collector.AddError()
	}
	return res, err
}

type randomDecider struct {
	rng      *rand.Rand
	likeRate float64
	think    time.Duration
}

func (d *randomDecider) Decide(ctx context.Context, _ string) (bool, error) {
	if d.think > 0 {
		select {
		case <-time.After(d.think):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return d.rng.Float64() < d.likeRate, nil
}

// simPresenter signals when its loop has run out of candidates.
type simPresenter struct {
	onMatch func(domain.Match)
	done    chan struct{}
	once    sync.Once
}

func newSimPresenter(onMatch func(domain.Match)) *simPresenter {
	return &simPresenter{onMatch: onMatch, done: make(chan struct{})}
}

func (p *simPresenter) WaitingForPartner(*domain.Session) {}
func (p *simPresenter) PartnerJoined(*domain.Session)     {}
func (p *simPresenter) SwipeFailed(string, error)         {}

func (p *simPresenter) MatchFound(m domain.Match) {
	if p.onMatch != nil {
		p.onMatch(m)
	}
}

func (p *simPresenter) NoMoreCandidates() {
	p.once.Do(func() { close(p.done) })
}
