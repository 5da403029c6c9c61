// botctl - консольный клиент REST API торгового бота
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"mt5_dashboard/internal/auth"
	"mt5_dashboard/internal/config"
	"mt5_dashboard/internal/dashboard"
	"mt5_dashboard/internal/logging"
	"mt5_dashboard/pkg/services/backend"
)

const usage = `Usage: botctl [flags] <command> [args]

Commands:
  status                     bot status
  start | stop               start or stop the bot
  test-mt5                   test the MT5 connection
  config                     print bot configuration
  trades | logs              recent trades or logs
  assets                     list assets
  collect                    collect candles for active assets
  candles <symbol> [tf]      stored candles for an asset
  hash <password>            bcrypt hash for DASHBOARD_PASSWORD_HASH
  token <user>               issue a dashboard JWT signed with JWT_SECRET

Flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "botctl:", dashboard.Describe(err))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}

	defaults := config.Default()
	if v := os.Getenv("API_URL"); v != "" {
		defaults.APIURL = v
	}

	flags := flag.NewFlagSet("botctl", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}

	apiURL := flags.String("api", defaults.APIURL, "trading bot API base URL")
	timeout := flags.Duration("timeout", 10*time.Second, "request timeout")
	limit := flags.Int("limit", 0, "row limit for trades, logs and candles")
	verbose := flags.Bool("v", false, "log HTTP requests")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("command is required")
	}

	cmd, rest := flags.Arg(0), flags.Args()[1:]

	switch cmd {
	case "hash":
		if len(rest) != 1 {
			return errors.New("hash: password is required")
		}

		hash, err := auth.HashPassword(rest[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(out, hash)

		return nil

	case "token":
		if len(rest) != 1 {
			return errors.New("token: username is required")
		}

		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("token: JWT_SECRET is not set")
		}

		token, err := auth.NewService(secret, 24*time.Hour, rest[0], "").GenerateToken(rest[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(out, token)

		return nil
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}

	logger, _, err := logging.New("", level)
	if err != nil {
		return err
	}

	client, err := backend.NewClient(backend.Options{
		BaseURL:     *apiURL,
		Timeout:     *timeout,
		LogBodySize: defaults.HTTPLogBody,
	}, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()

	var result any

	switch cmd {
	case "status":
		result, err = client.Status(ctx)
	case "start":
		result, err = client.StartBot(ctx)
	case "stop":
		result, err = client.StopBot(ctx)
	case "test-mt5":
		result, err = client.TestMT5(ctx)
	case "config":
		result, err = client.GetConfig(ctx)
	case "trades":
		result, err = client.Trades(ctx, *limit)
	case "logs":
		result, err = client.Logs(ctx, *limit)
	case "assets":
		result, err = client.Assets(ctx)
	case "collect":
		result, err = client.CollectCandles(ctx)
	case "candles":
		if len(rest) == 0 {
			return errors.New("candles: symbol is required")
		}

		timeframe := ""
		if len(rest) > 1 {
			timeframe = rest[1]
		}

		result, err = client.AssetCandles(ctx, rest[0], timeframe, *limit)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(result)
}
