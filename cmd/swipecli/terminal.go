package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/tastebuds/match-app/internal/domain"
)

var errQuit = errors.New("quit")

// RestaurantLookup resolves candidate ids for display.
type RestaurantLookup interface {
	GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error)
}

// terminal is both the Decider and the Presenter of the interactive client.
// Output from the swipe and match goroutines is serialised by mu.
type terminal struct {
	mu          sync.Mutex
	out         io.Writer
	lines       chan string
	restaurants RestaurantLookup
	inviteURL   string

	info  *color.Color
	good  *color.Color
	warn  *color.Color
	fail  *color.Color
	title *color.Color
}

func newTerminal(in io.Reader, out io.Writer, restaurants RestaurantLookup) *terminal {
	t := &terminal{
		out:         out,
		lines:       make(chan string),
		restaurants: restaurants,
		info:        color.New(color.FgCyan),
		good:        color.New(color.FgGreen, color.Bold),
		warn:        color.New(color.FgYellow),
		fail:        color.New(color.FgRed),
		title:       color.New(color.Bold),
	}
	go t.readLines(in)
	return t
}

func (t *terminal) readLines(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
	close(t.lines)
}

// Decide shows one candidate and waits for y, n or q.
func (t *terminal) Decide(ctx context.Context, restaurantID string) (bool, error) {
	t.showCandidate(ctx, restaurantID)
	for {
		t.printf(t.info, "like? [y/n, q to quit] ")
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				return false, errQuit
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			case "n", "no":
				return false, nil
			case "q", "quit":
				return false, errQuit
			}
		}
	}
}

func (t *terminal) showCandidate(ctx context.Context, restaurantID string) {
	r, err := t.restaurants.GetRestaurant(ctx, restaurantID)
	if err != nil {
		t.printf(t.title, "\n%s\n", restaurantID)
		return
	}
	t.printf(t.title, "\n%s", r.Name)
	t.printf(nil, "  %s · %s · %.1f★\n", r.Category, r.PriceRange, r.Rating)
	if r.Description != "" {
		t.printf(nil, "  %s\n", r.Description)
	}
}

func (t *terminal) WaitingForPartner(sess *domain.Session) {
	t.printf(t.warn, "waiting for your partner to join session %s\n", sess.Code)
	if t.inviteURL != "" {
		t.printf(nil, "share this link: %s\n", t.inviteURL)
	}
}

func (t *terminal) PartnerJoined(sess *domain.Session) {
	t.printf(t.good, "partner joined, %d restaurants to go\n", len(sess.CandidateIDs))
}

func (t *terminal) MatchFound(m domain.Match) {
	name := m.RestaurantID
	if r, err := t.restaurants.GetRestaurant(context.Background(), m.RestaurantID); err == nil {
		name = r.Name
	}
	t.printf(t.good, "\nit's a match: %s\n", name)
}

func (t *terminal) SwipeFailed(restaurantID string, err error) {
	t.printf(t.fail, "could not record swipe on %s: %v\n", restaurantID, err)
}

func (t *terminal) NoMoreCandidates() {
	t.printf(t.warn, "\nno more restaurants, waiting for matches (ctrl-c to leave)\n")
}

func (t *terminal) printf(c *color.Color, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c == nil {
		fmt.Fprintf(t.out, format, args...)
		return
	}
	c.Fprintf(t.out, format, args...)
}
