package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/logwatch"
	"github.com/park285/isle-dino-bot/internal/rcon"
)

func rconClient() (*rcon.Client, error) {
	if strings.TrimSpace(rconHost) == "" {
		return nil, errors.New("--host or RCON_HOST is required")
	}
	return rcon.New(rconHost, rconPort, rconPassword, rconTimeout), nil
}

func listPlayers(ctx context.Context) ([]domain.Snapshot, error) {
	c, err := rconClient()
	if err != nil {
		return nil, err
	}
	raw, err := c.PlayerList(ctx)
	if err != nil {
		return nil, fmt.Errorf("rcon %s: %w", c.Addr(), err)
	}
	return rcon.ParsePlayers(raw), nil
}

func runPlayers(cmd *cobra.Command, _ []string) error {
	players, err := listPlayers(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEAM ID\tNAME\tSPECIES\tGROWTH")
	for _, p := range players {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\n", p.PlayerID, p.Name, domain.SpeciesLabel(p.Species), domain.ToPercent(p.Growth))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d online\n", len(players))
	return nil
}

func runPlayer(cmd *cobra.Command, args []string) error {
	players, err := listPlayers(cmd.Context())
	if err != nil {
		return err
	}
	p, ok := rcon.FindPlayer(players, args[0])
	if !ok {
		return fmt.Errorf("player %s is not on the server", args[0])
	}
	st := p.StoredStats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name:     %s\n", p.Name)
	fmt.Fprintf(out, "species:  %s (%s)\n", domain.SpeciesLabel(p.Species), p.Species)
	fmt.Fprintf(out, "growth:   %.4f (stored %d)\n", p.Growth, st.Growth)
	fmt.Fprintf(out, "hunger:   %d\nthirst:   %d\nhealth:   %d\n", st.Hunger, st.Thirst, st.Health)
	fmt.Fprintf(out, "position: %.0f, %.0f, %.0f\n", p.Position.X, p.Position.Y, p.Position.Z)
	return nil
}

func runParseLog(cmd *cobra.Command, args []string) error {
	path := os.Getenv("GAME_LOG_PATH")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.New("log path argument or GAME_LOG_PATH is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if fromOffset > 0 {
		if _, err := f.Seek(fromOffset, io.SeekStart); err != nil {
			return err
		}
	}

	found, err := scanDepartures(f, func(ev domain.Departure) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d%%\n", ev.SteamID, ev.Species, domain.ToPercent(ev.Growth))
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d departures\n", found)
	return nil
}

// scanDepartures feeds every parsable departure line to fn.
func scanDepartures(r io.Reader, fn func(domain.Departure)) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		ev, err := logwatch.ParseDeparture(sc.Text())
		if err != nil {
			continue
		}
		n++
		fn(ev)
	}
	return n, sc.Err()
}
