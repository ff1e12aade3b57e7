package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jercomio/LuT-1/internal/app"
	"github.com/jercomio/LuT-1/internal/auth"
	"github.com/jercomio/LuT-1/internal/config"
	"github.com/jercomio/LuT-1/internal/db"
	"github.com/jercomio/LuT-1/internal/domain"
	"github.com/jercomio/LuT-1/internal/engine"
	"github.com/jercomio/LuT-1/internal/export"
	"github.com/jercomio/LuT-1/internal/server"
)

const (
	envAuthSecret = "LUNARTASKS_AUTH_SECRET"
	envAPIToken   = "LUNARTASKS_API_TOKEN"
)

var rootCmd = &cobra.Command{
	Use:   "lut",
	Short: "Lunar Tasks CLI",
	Long: `Lunar Tasks keeps a list of tasks identified as TASK-0001, TASK-0002, ...
- Workspace: a directory holding lunartasks.yml and the .lunartasks store.
- Settings: lunartasks.yml names the application; bearer tokens must carry that name.
- Secrets: LUNARTASKS_AUTH_SECRET signs tokens, LUNARTASKS_API_TOKEN is the one token the API accepts.
  Both are read from the environment or from the workspace .env file.
- API: 'lut serve' exposes GET/POST/PUT/DELETE /api/tasks behind the bearer token.
- Event log: every change is recorded, view with 'lut log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LUNARTASKS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "settings file (defaults to <workspace>/lunartasks.yml)")
	rootCmd.PersistentFlags().String("driver", "", "store driver override: sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "store DSN override")
	rootCmd.PersistentFlags().String("user-id", "local-user", "user recorded on changes")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "config", "driver", "dsn", "user-id", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			rt, err := app.Open(runtimeOptions())
			if err != nil {
				return err
			}
			defer rt.Close()
			signing := viper.GetString("auth_secret")
			if signing == "" {
				return fmt.Errorf("%s is required for bearer auth", envAuthSecret)
			}
			shared := viper.GetString("api_token")
			if shared == "" {
				logger.Warn().Msgf("%s is not set; every API request will fail with a server configuration error", envAPIToken)
			}
			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			if basePath == "" {
				basePath = rt.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:      rt.Engine,
				BasePath:    basePath,
				Auth:        rt.AuthConfig(signing, shared),
				CORSOrigins: rt.Config.Server.CORSOrigins,
				Logger:      &logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().
				Str("addr", addr).
				Str("base_path", basePath).
				Str("app", rt.Config.App.Name).
				Str("driver", string(rt.Dialect)).
				Msg("serving Lunar Tasks API (OpenAPI at <base>/openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Open(runtimeOptions())
			if err != nil {
				return err
			}
			defer rt.Close()
			return printJSONOrTable(map[string]any{"driver": rt.Dialect, "version": rt.Version})
		},
	}
}

func settingsCmd() *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Manage lunartasks.yml",
		Long:  "Settings name the application (tokens must carry this name), where the API listens and which store it uses. Secrets never live here.",
	}
	settings.AddCommand(settingsInitCmd())
	settings.AddCommand(settingsShowCmd())
	return settings
}

func settingsInitCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lunartasks.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", config.DefaultAppName, "application name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func settingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(runtimeOptions())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
		Long:  "The API accepts exactly one token: a signed token naming the application that also equals LUNARTASKS_API_TOKEN.",
	}
	token.AddCommand(tokenIssueCmd())
	return token
}

func tokenIssueCmd() *cobra.Command {
	var name string
	var ttl time.Duration
	var writeEnv bool
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			signing := viper.GetString("auth_secret")
			if signing == "" {
				return fmt.Errorf("%s is required to sign tokens", envAuthSecret)
			}
			if name == "" {
				cfg, err := app.LoadConfig(runtimeOptions())
				if err != nil {
					return err
				}
				name = cfg.App.Name
			}
			tok, err := auth.IssueToken(signing, name, ttl, time.Now())
			if err != nil {
				return err
			}
			if writeEnv {
				envPath := filepath.Join(viper.GetString("workspace"), ".env")
				if err := setEnvValue(envPath, envAPIToken, tok); err != nil {
					return err
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": tok, "name": name, "expires_at": time.Now().Add(ttl).UTC()})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name claim (defaults to app.name)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	cmd.Flags().BoolVar(&writeEnv, "write-env", false, "store the token as "+envAPIToken+" in the workspace .env")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks get a TASK-NNNN identifier on creation. Priority (urgent, high, medium, low, no priority) drives the derived user priority rank 1-5.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskExportCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var content, label, status, priority string
	var aiPriority float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.UserID = viper.GetString("user-id")
			opts.Content = optionalString(content)
			opts.Label = optionalString(label)
			opts.Status = optionalString(status)
			opts.Priority = optionalString(priority)
			if cmd.Flags().Changed("ai-priority") {
				opts.AIPriority = &aiPriority
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&content, "content", "", "content")
	cmd.Flags().StringVar(&label, "label", "", "label (default others)")
	cmd.Flags().StringVar(&status, "status", "", "status (default backlog)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (default no priority)")
	cmd.Flags().Float64Var(&aiPriority, "ai-priority", 0, "AI priority score")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Identifier", "Title", "Status", "Priority", "Label", "Due"})
				for _, t := range tasks {
					due := ""
					if t.DueOfDate != nil {
						due = t.DueOfDate.Format(time.DateOnly)
					}
					tw.AppendRow(table.Row{t.Identifier, t.Title, t.Status, t.Priority, t.Label, due})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <identifier>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, content, label, status, priority, due string
	var aiPriority float64
	cmd := &cobra.Command{
		Use:   "update <identifier>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("content") {
				patch.Content = &content
			}
			if flags.Changed("label") {
				patch.Label = &label
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("ai-priority") {
				patch.AIPriority = &aiPriority
			}
			if flags.Changed("due") {
				if due == "" {
					patch.ClearDueOfDate = true
				} else {
					d, err := time.Parse(time.DateOnly, due)
					if err != nil {
						return fmt.Errorf("--due must be YYYY-MM-DD: %w", err)
					}
					patch.DueOfDate = &d
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				current, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
					ID:     current.ID,
					UserID: viper.GetString("user-id"),
					Patch:  patch,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&content, "content", "", "content")
	cmd.Flags().StringVar(&label, "label", "", "label")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().Float64Var(&aiPriority, "ai-priority", 0, "AI priority score")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD (empty clears it)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identifier>...",
		Short: "Delete one or more tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := viper.GetString("user-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids := make([]string, 0, len(args))
				for _, identifier := range args {
					t, err := e.GetTask(ctx, identifier)
					if err != nil {
						return fmt.Errorf("%s: %w", identifier, err)
					}
					ids = append(ids, t.ID)
				}
				if len(ids) == 1 {
					t, err := e.DeleteTask(ctx, ids[0], userID)
					if err != nil {
						return err
					}
					return printJSONOrTable(t)
				}
				count, err := e.DeleteTasks(ctx, ids, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"count": count})
			})
		},
	}
}

func taskExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx)
				if err != nil {
					return err
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := export.WriteTasks(f, tasks); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("Exported %d tasks to %s\n", len(tasks), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "tasks.xlsx", "output file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every create, update and delete is recorded with the user that made it.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evs, err := e.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Type", "Task", "User", "Payload"})
				for _, ev := range evs {
					tw.AppendRow(table.Row{ev.TS.Format(time.RFC3339), ev.Type, ev.Identifier, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

// --- helpers ---

func runtimeOptions() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Driver:     viper.GetString("driver"),
		DSN:        viper.GetString("dsn"),
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := app.Open(runtimeOptions())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if viper.GetBool("json") {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
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

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
