package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"adventdrop/internal/config"
	"adventdrop/internal/db"
	"adventdrop/internal/domain"
	"adventdrop/internal/engine"
	"adventdrop/internal/evaluate"
	"adventdrop/internal/migrate"
	"adventdrop/internal/repo"
	"adventdrop/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "adventdrop",
	Short: "Adventdrop CLI",
	Long: `Adventdrop runs a 24-round scheduled giveaway with a Merkle commit-reveal.
The season's gift rules are committed up front as a single Merkle root; each
round stays hidden until its day, shows its hint on the day, and is fully
revealed with salt and proof afterwards so anyone can verify nothing changed.
- Workspace: your .adventdrop directory holding the database; adventdrop.yml
  next to it holds the season config.
- Commitment: 'adventdrop season commit' hashes all gift specs and publishes
  the root. Done once, before day 1, immutable afterwards.
- Execution: 'adventdrop day run' evaluates a round's rule over chain data
  seeded by the day's blockhash. Same inputs, same winners, every time.
- Reveal: 'adventdrop day reveal' discloses what the calendar allows;
  'adventdrop day verify' replays a disclosure's proof against the root.
- Event log: diary of changes, view with 'adventdrop log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ADVENTDROP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seasonCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(tag)), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace: %s (edit season.start_date before committing)\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "season", "advent", "season tag")
	return cmd
}

func seasonCmd() *cobra.Command {
	season := &cobra.Command{Use: "season", Short: "Manage the season commitment"}
	season.AddCommand(seasonCommitCmd())
	season.AddCommand(seasonRootCmd())
	season.AddCommand(seasonGiftsCmd())
	return season
}

func seasonCommitCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the season's gift specs",
		Long:  "Builds the Merkle tree over all gift specs and stores root, salts and proofs. Refuses to run twice.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var specs []domain.GiftSpec
			if err := loadJSONFile(file, &specs); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CommitSeason(ctx, specs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "gift specs JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func seasonRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Show the published commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCommitment(ctx, e.Config.Season.Tag)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func seasonGiftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gifts",
		Short: "List committed gift specs (operator view, bypasses reveal gating)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				gifts, err := r.ListGifts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(gifts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Type", "Hint"})
				for _, g := range gifts {
					tw.AppendRow(table.Row{g.Day, g.Type, g.Hint})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func dayCmd() *cobra.Command {
	day := &cobra.Command{Use: "day", Short: "Execute, reveal and verify rounds"}
	day.AddCommand(dayRunCmd())
	day.AddCommand(dayRevealCmd())
	day.AddCommand(dayVerifyCmd())
	day.AddCommand(dayShowCmd())
	return day
}

func parseDayArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected a day number argument")
	}
	day, err := strconv.Atoi(args[0])
	if err != nil || day < 1 {
		return 0, fmt.Errorf("invalid day %q", args[0])
	}
	return day, nil
}

func dayRunCmd() *cobra.Command {
	var blockhash, pool, holdersFile, txFile string
	cmd := &cobra.Command{
		Use:   "run <day>",
		Short: "Evaluate and persist a round's distribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayArg(args)
			if err != nil {
				return err
			}
			poolAmount, err := domain.AmountFromString(pool)
			if err != nil {
				return fmt.Errorf("--pool: %w", err)
			}
			var holders []domain.HolderSnapshot
			if holdersFile != "" {
				if err := loadJSONFile(holdersFile, &holders); err != nil {
					return err
				}
			}
			var transactions []domain.TransactionRecord
			if txFile != "" {
				if err := loadJSONFile(txFile, &transactions); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				exec, err := e.ExecuteDay(ctx, day, evaluateInputs(blockhash, poolAmount, holders, transactions), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(exec)
				}
				fmt.Printf("Day %d executed (%s): %d winners, %s distributed, %s remainder\n",
					exec.Day, exec.ID, len(exec.Result.Winners),
					exec.Result.TotalDistributed.String(), exec.Result.Remainder.String())
				renderWinners(exec.Result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&blockhash, "blockhash", "", "block hash seeding the day's randomness")
	cmd.Flags().StringVar(&pool, "pool", "0", "reward pool amount in base units")
	cmd.Flags().StringVar(&holdersFile, "holders", "", "holder snapshot JSON file")
	cmd.Flags().StringVar(&txFile, "transactions", "", "classified transactions JSON file")
	_ = cmd.MarkFlagRequired("blockhash")
	return cmd
}

func dayRevealCmd() *cobra.Command {
	var override bool
	var at string
	cmd := &cobra.Command{
		Use:   "reveal <day>",
		Short: "Disclose a round per its reveal phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayArg(args)
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				now, err = time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("--at must be YYYY-MM-DD: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.DiscloseDay(ctx, day, now, override)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().BoolVar(&override, "override", false, "force full disclosure (testing only)")
	cmd.Flags().StringVar(&at, "at", "", "evaluate the phase as of this date (YYYY-MM-DD)")
	return cmd
}

func dayVerifyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a disclosure against the published root",
		RunE: func(cmd *cobra.Command, args []string) error {
			var d domain.Disclosure
			if err := loadJSONFile(file, &d); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.VerifyDisclosure(ctx, d)
				if err != nil {
					return err
				}
				if err := printJSONOrTable(v); err != nil {
					return err
				}
				if !v.Valid {
					return fmt.Errorf("disclosure does not match the published commitment")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "disclosure JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func dayShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <day>",
		Short: "Show a round's persisted execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayArg(args)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				exec, err := r.GetExecution(ctx, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(exec)
				}
				fmt.Printf("Day %d executed at %s with blockhash %s\n", exec.Day, exec.ExecutedAt, exec.Blockhash)
				renderWinners(exec.Result)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ADVENTDROP_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ADVENTDROP_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Adventdrop API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func evaluateInputs(blockhash string, pool domain.Amount, holders []domain.HolderSnapshot, transactions []domain.TransactionRecord) evaluate.Inputs {
	return evaluate.Inputs{
		Transactions: transactions,
		Holders:      holders,
		PoolAmount:   pool,
		Blockhash:    blockhash,
	}
}

func renderWinners(result domain.ExecutionResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Wallet", "Amount", "Reason"})
	for _, w := range result.Winners {
		tw.AppendRow(table.Row{w.Wallet, w.Amount.String(), w.Reason})
	}
	tw.Render()
	if len(result.TokenAirdrops) > 0 {
		at := table.NewWriter()
		at.SetOutputMirror(os.Stdout)
		at.AppendHeader(table.Row{"Hour", "Wallet", "Amount"})
		for _, a := range result.TokenAirdrops {
			at.AppendRow(table.Row{a.Hour, a.Wallet, a.Amount.String()})
		}
		at.Render()
	}
}

func loadJSONFile(path string, v any) error {
	if path == "" {
		return fmt.Errorf("--file required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
