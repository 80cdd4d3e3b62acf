package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opexhub/internal/app"
	"opexhub/internal/config"
	"opexhub/internal/db"
	"opexhub/internal/domain"
	"opexhub/internal/engine"
	"opexhub/internal/forms"
	"opexhub/internal/repo"
	"opexhub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "opex",
	Short: "OpEx Hub CLI",
	Long: `OpEx Hub tracks operational-excellence initiatives through an 11-stage approval workflow.
- Initiatives: improvement proposals per site with expected savings and CAPEX; CAPEX above 10 lakh needs an MOC stage, any CAPEX needs a CAPEX stage.
- Workflow: each stage is approved by the site's workflow master or, for MOC/CAPEX/timeline stages, by the initiative lead named at stage 3.
- Monitoring: monthly KPI entries (target vs achieved) once an initiative reaches savings monitoring, finalized by the site lead and approved by F&A.
- Timeline: planned vs actual dates per implementation step, approved by the site lead and the initiative lead.
- Reports: the monthly initiative tracker per financial year.
- Event log: every change, view with 'opex log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadDotEnv(".")
		loadDotEnv(viper.GetString("workspace"))
		logger = newLogger(viper.GetString("log-level"))
		return nil
	},
}

var logger = zerolog.Nop()

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OPEXHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (env OPEXHUB_WORKSPACE, read from ./.env too)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "admin@godeepak.com", "email of the acting user for local commands")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(initiativeCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(monitoringCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
}

// loadDotEnv reads <dir>/.env. Variables already set win, so the .env of the
// working directory can still pick the workspace.
func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", path, err)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(lvl).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{
					JWTSecret: viper.GetString("jwt-secret"),
					TokenTTL:  viper.GetDuration("token-ttl"),
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("OPEXHUB_JWT_SECRET is required for bearer auth")
				}
				basePath := viper.GetString("base-path")
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: logger})
				if err != nil {
					return err
				}
				if d := server.NewDispatcher(e, logger); d != nil {
					go d.Run(ctx)
				}
				addr := viper.GetString("addr")
				logger.Info().Str("db", db.Path(viper.GetString("workspace"))).Msg("workspace opened")
				logger.Info().Str("docs", "http://"+addr+"/docs").Str("openapi", "http://"+addr+basePath+"/openapi.json").Msg("OpEx Hub API")
				return server.Run(ctx, addr, handler, logger)
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("base-path", "/api", "API base path")
	cmd.Flags().String("jwt-secret", "", "secret used to sign bearer tokens")
	cmd.Flags().Duration("token-ttl", 12*time.Hour, "bearer token lifetime")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "token-ttl"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo users of site NDS",
		Long:  "Creates one account per role at site NDS with password " + engine.DemoPassword + ". Existing accounts are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.SeedDemo(ctx)
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage the workspace config",
		Long:  "The config (opexhub.yml in the workspace) holds sites, disciplines, roles, the workflow stages and masters, tracking settings and webhooks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate the workspace config, or the given file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) == 1 {
				_, err = config.FromFile(args[0])
			} else {
				_, err = config.LoadOptional(viper.GetString("workspace"))
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	u.AddCommand(userRegisterCmd())
	u.AddCommand(userListCmd())
	return u
}

func userRegisterCmd() *cobra.Command {
	var form forms.Signup
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Register(ctx, form)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&form.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&form.Email, "email", "", "email address")
	cmd.Flags().StringVar(&form.Password, "password", "", "password")
	cmd.Flags().StringVar(&form.Site, "site", "", "site code")
	cmd.Flags().StringVar(&form.Discipline, "discipline", "", "discipline code")
	cmd.Flags().StringVar(&form.Role, "role", "", "role code")
	return cmd
}

func userListCmd() *cobra.Command {
	var site, role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx, site, role)
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site filter")
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("OPEXHUB_JWT_SECRET is required to mint bearer tokens")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Login(ctx, engine.LoginOptions{
					Form:   forms.Login{Email: email, Password: password},
					Secret: secret,
					TTL:    ttl,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, repo.EventFilter{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.Actor})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, e, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

// withActor runs fn as the user named by --as.
func withActor(ctx context.Context, fn func(context.Context, engine.Engine, domain.User) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		email := viper.GetString("as")
		u, err := e.UserByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("acting user %s: %w (run 'opex seed' or pass --as)", email, err)
		}
		return fn(ctx, e, u)
	})
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable(table.Row{"Email", "Name", "Site", "Discipline", "Role"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.Email, u.FullName, u.Site, u.Discipline, u.Role})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
