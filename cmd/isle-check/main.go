package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	rconHost     string
	rconPort     int
	rconPassword string
	rconTimeout  time.Duration
	fromOffset   int64

	rootCmd = &cobra.Command{
		Use:   "isle-check",
		Short: "Diagnostics for the Isle server integration",
		Long: `isle-check talks to the game server the same way the bot does:
player listing over RCON and departure parsing of the server log.`,
		SilenceUsage: true,
	}

	playersCmd = &cobra.Command{
		Use:   "players",
		Short: "List players currently on the server",
		Args:  cobra.NoArgs,
		RunE:  runPlayers,
	}
	playerCmd = &cobra.Command{
		Use:   "player [steam_id]",
		Short: "Show the live dinosaur of one player",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlayer,
	}
	parseLogCmd = &cobra.Command{
		Use:   "parse-log [path]",
		Short: "Dry-run the departure parser over a log file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParseLog,
	}
)

func init() {
	_ = godotenv.Load()

	port, _ := strconv.Atoi(os.Getenv("RCON_PORT"))
	if port == 0 {
		port = 8888
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rconHost, "host", os.Getenv("RCON_HOST"), "RCON host (RCON_HOST)")
	pf.IntVar(&rconPort, "port", port, "RCON port (RCON_PORT)")
	pf.StringVar(&rconPassword, "password", os.Getenv("RCON_PASSWORD"), "RCON password (RCON_PASSWORD)")
	pf.DurationVar(&rconTimeout, "timeout", 5*time.Second, "RCON exchange timeout")

	parseLogCmd.Flags().Int64Var(&fromOffset, "offset", 0, "byte offset to start reading from")

	rootCmd.AddCommand(playersCmd, playerCmd, parseLogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
