package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fc-rank-search/internal/domain"
)

type refresher interface {
	Refresh(ctx context.Context, req domain.RefreshRequest) (*domain.RefreshResult, error)
}

type publisher interface {
	Publish(req domain.RefreshRequest) (domain.RefreshRequest, error)
}

type snapshotLoader interface {
	Load(gameID string) (*domain.Snapshot, error)
}

// targetsFor turns command arguments into the games to fetch.
// A single id uses the given name, then the catalog name, then the id itself.
func targetsFor(args []string) []domain.Game {
	if args[0] == "all" {
		return domain.PopularGames
	}
	name := domain.GameName(args[0])
	if len(args) > 1 && args[1] != "" {
		name = args[1]
	}
	return []domain.Game{{ID: args[0], Name: name}}
}

func printGames(out io.Writer) {
	fmt.Fprintln(out, "Available games:")
	for _, g := range domain.PopularGames {
		fmt.Fprintf(out, "  %-10s %s\n", g.ID, g.Name)
	}
	fmt.Fprintln(out, "\nUsage:")
	fmt.Fprintln(out, "  fetch-rankings <gameId> [gameName]")
	fmt.Fprintln(out, "  fetch-rankings all")
}

func printResult(out io.Writer, result *domain.RefreshResult, snapshots snapshotLoader) {
	fmt.Fprintf(out, "Game:          %s (%s)\n", result.GameName, result.GameID)
	fmt.Fprintf(out, "Total players: %s of %s\n", humanize.Comma(int64(result.TotalPlayers)), humanize.Comma(int64(result.TotalAvailable)))
	fmt.Fprintf(out, "Fetched:       %s in %s\n", result.FetchedAt.Format(time.RFC3339), result.Duration.Round(time.Millisecond))
	if result.Partial {
		fmt.Fprintln(out, "Warning:       upstream failed mid-fetch, snapshot is partial")
	}
	if snap, err := snapshots.Load(result.GameID); err == nil && len(snap.Players) > 0 {
		top := snap.Players[0]
		fmt.Fprintf(out, "Top player:    %s (%s)\n", top.Name, domain.TierLetter(top.Tier))
	}
}

// fetchAll refreshes each game in turn, pausing between games. Failures are reported and skipped.
func fetchAll(ctx context.Context, out io.Writer, r refresher, games []domain.Game, maxPlayers int, pause time.Duration) (ok int) {
	for i, g := range games {
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				fmt.Fprintln(out, "interrupted")
				return ok
			case <-time.After(pause):
			}
		}

		fmt.Fprintf(out, "Fetching %s (%s)...\n", g.Name, g.ID)
		result, err := r.Refresh(ctx, domain.RefreshRequest{GameID: g.ID, GameName: g.Name, MaxPlayers: maxPlayers, RequestedBy: "cli"})
		if err != nil {
			fmt.Fprintf(out, "  failed: %v\n", err)
			continue
		}
		ok++
		fmt.Fprintf(out, "  %s players%s\n", humanize.Comma(int64(result.TotalPlayers)), partialNote(result.Partial))
	}
	fmt.Fprintf(out, "Finished: %d of %d games fetched\n", ok, len(games))
	return ok
}

func enqueueGames(out io.Writer, p publisher, games []domain.Game, maxPlayers int) error {
	for _, g := range games {
		sent, err := p.Publish(domain.RefreshRequest{GameID: g.ID, GameName: g.Name, MaxPlayers: maxPlayers, RequestedBy: "cli"})
		if err != nil {
			return fmt.Errorf("enqueueing %s: %w", g.ID, err)
		}
		fmt.Fprintf(out, "Queued %s (request %s)\n", g.ID, sent.RequestID)
	}
	return nil
}

func partialNote(partial bool) string {
	if partial {
		return " (partial)"
	}
	return ""
}
