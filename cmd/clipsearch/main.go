// Package main is the clipsearch CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/clipsearch/internal/cli"
	"github.com/hyperjump/clipsearch/internal/config"
	"github.com/hyperjump/clipsearch/internal/models"
	"github.com/hyperjump/clipsearch/internal/semantic"
	"github.com/hyperjump/clipsearch/internal/server"
	"github.com/hyperjump/clipsearch/internal/settings"
	"github.com/hyperjump/clipsearch/internal/storage"
	"github.com/hyperjump/clipsearch/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/clipsearch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	serverURL  string
	debug      bool
	output     string
}

func (g *globalFlags) format() (cli.OutputFormat, error) {
	switch g.output {
	case "json":
		return cli.OutputJSON, nil
	case "text", "":
		return cli.OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", g.output)
	}
}

func (g *globalFlags) client() *apiClient {
	if g.serverURL == "" {
		return nil
	}
	return newAPIClient(g.serverURL)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "clipsearch",
		Short:         "Semantic search over clipboard history",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().StringVar(&g.serverURL, "server", defaultServerURL, "server URL (empty = open storage directly)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServerCmd(g),
		newSearchCmd(g),
		newAddCmd(g),
		newDeleteCmd(g),
		newDownloadCmd(g),
		newStatusCmd(g),
		newRebuildCmd(g),
		newEnableCmd(g, true),
		newEnableCmd(g, false),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "clipsearch version %s\n", version)
			},
		},
	)
	return root
}

func newServerCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(g)
		},
	}
}

func runServer(g *globalFlags) error {
	cfg, resolvedConfigPath, err := loadConfig(g.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || g.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize components", zap.Error(err))
		return err
	}
	defer components.Close()

	watcher := settings.NewWatcher(resolvedConfigPath, components.Semantic.HandleSettingsReload,
		settings.WithLogger(logger.Named("settings")))
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("settings watcher disabled", zap.Error(err))
	}
	defer watcher.Stop()

	srv := server.NewServer(
		components.Semantic,
		components.Storage,
		&cfg.Server,
		logger,
		resolvedConfigPath,
		cfg,
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search clipboard history by meaning",
		Example: `  clipsearch search wifi password
  clipsearch search --limit 5 -o json "flight confirmation"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			query := models.SearchQuery{Query: buildSearchQuery(args), Limit: limit}
			if err := query.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			var response *models.SearchResponse
			if c := g.client(); c != nil {
				response, err = c.Search(ctx, query)
			} else {
				response, err = withLocal(ctx, g, func(c *components) (*models.SearchResponse, error) {
					start := time.Now()
					results, err := c.Semantic.Search(ctx, query.Query, query.Limit)
					if err != nil {
						return nil, err
					}
					return &models.SearchResponse{
						Query:   query.Query,
						Results: results,
						Total:   len(results),
						TookMs:  time.Since(start).Milliseconds(),
					}, nil
				})
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of results (0 = configured default)")
	return cmd
}

func newAddCmd(g *globalFlags) *cobra.Command {
	var itemType string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Record a clipboard item (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			content := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(b)
			}
			input := models.ItemInput{Type: itemType, Content: content}
			if strings.TrimSpace(input.Content) == "" {
				return errors.New("content is required")
			}
			ctx := cmd.Context()

			var item *models.Item
			if c := g.client(); c != nil {
				item, err = c.AddItem(ctx, input)
			} else {
				item, err = withLocal(ctx, g, func(c *components) (*models.Item, error) {
					item, created, err := c.Storage.AddItem(ctx, input.Type, input.Content)
					if err != nil {
						return nil, err
					}
					c.Semantic.OnItemSaved(ctx, item, created)
					return item, nil
				})
			}
			if err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			return cli.WriteItem(cmd.OutOrStdout(), item, format)
		},
	}
	cmd.Flags().StringVar(&itemType, "type", models.TypeText, "item type: text or image")
	return cmd
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a clipboard item and its embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			ctx := cmd.Context()
			if c := g.client(); c != nil {
				err = c.DeleteItem(ctx, id)
			} else {
				_, err = withLocal(ctx, g, func(c *components) (struct{}, error) {
					if err := c.Storage.DeleteItem(ctx, id); err != nil {
						return struct{}{}, err
					}
					c.Semantic.OnItemDeleted(ctx, id)
					return struct{}{}, nil
				})
			}
			if err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item deleted: %d\n", id)
			return nil
		},
	}
}

func newDownloadCmd(g *globalFlags) *cobra.Command {
	var manual bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the embedding model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := g.client()
			if manual {
				var info map[string]string
				var err error
				if c != nil {
					info, err = c.ManualDownloadInfo(ctx)
				} else {
					info, err = withLocal(ctx, g, func(c *components) (map[string]string, error) {
						i := c.Semantic.ManualDownloadInfo()
						return map[string]string{"url": i.URL, "target_path": i.TargetPath, "filename": i.Filename}, nil
					})
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Download %s\nand save it as %s\n", info["url"], info["target_path"])
				return nil
			}
			if c != nil {
				if err := c.StartDownload(ctx); err != nil {
					return fmt.Errorf("download failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Download started; run 'clipsearch status' to follow progress")
				return nil
			}
			_, err := withLocal(ctx, g, func(c *components) (struct{}, error) {
				if err := c.Semantic.Download(ctx); err != nil {
					return struct{}{}, err
				}
				c.Semantic.Wait()
				return struct{}{}, nil
			})
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Model downloaded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "print where to fetch the model and where to save it")
	return cmd
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show semantic search status",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var report *cli.StatusReport
			if c := g.client(); c != nil {
				report, err = c.Status(ctx)
			} else {
				report, err = withLocal(ctx, g, func(c *components) (*cli.StatusReport, error) {
					snap, err := c.Semantic.Status(ctx)
					if err != nil {
						return nil, err
					}
					return &cli.StatusReport{
						Snapshot:   snap,
						ModelState: c.Semantic.ModelState().String(),
						ModelPath:  c.Config.Semantic.ModelPath,
					}, nil
				})
			}
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), *report, format)
		},
	}
}

func newRebuildCmd(g *globalFlags) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reload the index from stored embeddings (--full re-embeds everything)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if c := g.client(); c != nil {
				msg, err := c.Rebuild(ctx, full)
				if err != nil {
					return fmt.Errorf("rebuild failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			}
			msg, err := withLocal(ctx, g, func(c *components) (string, error) {
				if full {
					cleared, err := c.Semantic.FullRebuild(ctx)
					if err != nil {
						return "", err
					}
					c.Semantic.Wait()
					return fmt.Sprintf("Cleared %d embeddings, re-indexed %d items", cleared, c.Semantic.IndexLen()), nil
				}
				n, err := c.Semantic.Rebuild(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Loaded %d embeddings", n), nil
			})
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "delete all embeddings and re-embed every text item")
	return cmd
}

func newEnableCmd(g *globalFlags, enabled bool) *cobra.Command {
	use, short := "enable", "Turn semantic search on"
	if !enabled {
		use, short = "disable", "Turn semantic search off"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := g.client(); c != nil {
				if err := c.SetEnabled(cmd.Context(), enabled); err != nil {
					return err
				}
			} else {
				cfg, path, err := loadConfig(g.configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg.Semantic.Enabled = enabled
				if err := config.Save(path, cfg); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Semantic search %s\n", use+"d")
			return nil
		},
	}
}

// components is the locally opened stack used when no server URL is given.
type components struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Semantic *semantic.Service
	logger   *zap.Logger
}

// Close releases all components.
func (c *components) Close() {
	if c.Semantic != nil {
		if err := c.Semantic.Close(); err != nil {
			c.logger.Warn("semantic close failed", zap.Error(err))
		}
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	svc, err := semantic.New(cfg.Semantic, store, semantic.ONNXLoader(cfg.Semantic),
		semantic.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c := &components{Config: cfg, Storage: store, Semantic: svc, logger: logger}
	if err := svc.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start semantic search: %w", err)
	}
	return c, nil
}

// withLocal opens the local stack, runs fn and closes the stack again.
func withLocal[T any](ctx context.Context, g *globalFlags, fn func(*components) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(g.configPath)
	if err != nil {
		return zero, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || g.debug)
	if err != nil {
		return zero, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return zero, err
	}
	defer c.Close()
	return fn(c)
}
