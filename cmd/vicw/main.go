// Command vicw runs the Virtual Infinite Context Window middleware: a hot-path
// context manager fronted by an HTTP API, backed by a cold-path worker that
// offloads sheared conversation into durable chunk, vector, and graph stores.
// Grounded on the teacher's cobra/zerolog wiring style in
// itsddvn-goclaw/cmd/*.go, adapted into a single binary with serve/ingest
// subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vicw",
		Short: "Virtual Infinite Context Window middleware",
	}
	cmd.PersistentFlags().String("env-file", ".env", "path to an optional .env file to load")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(ingestCmd())
	return cmd
}

func loadEnv(cmd *cobra.Command) {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", path, err)
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
}
