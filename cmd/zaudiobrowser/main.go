package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DanielSnd/zaudiobrowser/internal/cache"
	"github.com/DanielSnd/zaudiobrowser/internal/config"
	"github.com/DanielSnd/zaudiobrowser/internal/core"
	"github.com/DanielSnd/zaudiobrowser/internal/extract"
	"github.com/DanielSnd/zaudiobrowser/internal/tree"
	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

var (
	version = "0.1.0"
	logger  *zap.Logger
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zaudiobrowser",
		Short: "Browse and extract audio files inside ZIP archives",
		Long: `Indexes the audio contents of ZIP archives into one virtual tree,
cached by content fingerprint so repeat opens skip re-scanning, with
ranked search and streaming extraction of individual entries.`,
		Version: version,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(lsCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initLogger builds the process logger; verbose switches to development
// output, otherwise only errors reach stderr.
func initLogger() error {
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.Config{
			Level:            zap.NewAtomicLevelAt(zapcore.ErrorLevel),
			Encoding:         "json",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig:    zap.NewProductionEncoderConfig(),
		}
		logger, err = cfg.Build()
	}
	return err
}

// newEngine wires config, cache store and engine for a command run.
func newEngine(skipCache bool) (*core.Engine, *cache.Store, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if skipCache {
		cfg.SkipCache = true
	}
	store, err := cache.NewStore(cfg.CacheDir, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open cache: %w", err)
	}
	return core.NewEngine(cfg, logger, store), store, cfg, nil
}

func printSources(sources []models.SourceStatus) {
	for _, s := range sources {
		mark := "ok"
		detail := fmt.Sprintf("%d entries in %s", s.Entries, s.Duration.Round(1e6))
		if s.FromCache {
			detail += " (cached)"
		}
		if s.Err != nil {
			mark = "failed"
			detail = s.Err.Error()
		}
		fmt.Printf("  [%s] %s: %s\n", mark, s.Source, detail)
	}
}

// indexCmd creates the index command
func indexCmd() *cobra.Command {
	var skipCache bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index an archive or a folder of archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(); err != nil {
				return err
			}
			defer logger.Sync()

			engine, _, _, err := newEngine(skipCache)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := engine.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			printSources(session.Sources())
			folders, files := session.Tree().Count()
			fmt.Printf("\n%d folders, %d files", folders, files)
			if n := len(session.Collisions()); n > 0 {
				fmt.Printf(", %d path collisions:\n", n)
				for _, c := range session.Collisions() {
					fmt.Printf("  %s shadowed by %s\n", c.Path, c.Winner)
				}
			} else {
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipCache, "no-cache", false, "Re-scan even if a cached snapshot exists")
	return cmd
}

// lsCmd creates the ls command
func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "Print the merged virtual tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(); err != nil {
				return err
			}
			defer logger.Sync()

			engine, _, _, err := newEngine(false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := engine.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			return session.Tree().Walk(func(path string, n *tree.Node) error {
				if n.Kind == tree.KindFile {
					fmt.Printf("%s (%d bytes)\n", path, n.Ref.Size)
				} else {
					fmt.Printf("%s/\n", path)
				}
				return nil
			})
		},
	}
}

// searchCmd creates the search command
func searchCmd() *cobra.Command {
	var caseSensitive bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search [path] [query]",
		Short: "Search node names in the merged tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(); err != nil {
				return err
			}
			defer logger.Sync()

			engine, _, _, err := newEngine(false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := engine.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			var matches = session.Search(args[1])
			if caseSensitive {
				matches = session.SearchCase(args[1])
			}
			tiers := map[int]string{0: "exact", 1: "prefix", 2: "substring"}
			for i, m := range matches {
				if limit > 0 && i >= limit {
					fmt.Printf("... and %d more\n", len(matches)-limit)
					break
				}
				fmt.Printf("%-9s %s\n", tiers[m.Tier], m.Path)
			}
			if len(matches) == 0 {
				fmt.Println("no matches")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&caseSensitive, "case-sensitive", "c", false, "Match case exactly")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum matches to print (0 = all)")
	return cmd
}

// extractCmd creates the extract command
func extractCmd() *cobra.Command {
	var (
		outputDir string
		all       bool
		flatten   bool
	)

	cmd := &cobra.Command{
		Use:   "extract [path] [entry...]",
		Short: "Extract entries to a directory",
		Long: `Extracts the named entries (tree paths) from the indexed archives.
With --all, every file in the tree is extracted. Failures are reported
per entry; one bad entry does not abort the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(); err != nil {
				return err
			}
			defer logger.Sync()

			engine, _, _, err := newEngine(false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := engine.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			paths := args[1:]
			if all {
				// Select everything through the tracker so extraction takes
				// the same selected-leaves input the UI uses.
				session.Tree().Walk(func(p string, n *tree.Node) error {
					if n.Kind == tree.KindFile {
						session.Toggle(p)
					}
					return nil
				})
				paths = session.SelectedLeaves()
			}
			if len(paths) == 0 {
				return fmt.Errorf("nothing to extract: name entries or pass --all")
			}

			results := session.Extract(ctx, paths, extract.DirSink{Dir: outputDir, Flatten: flatten})
			okCount := 0
			for _, r := range results {
				if r.Err != nil {
					fmt.Printf("  [failed] %s: %v\n", r.Path, r.Err)
					continue
				}
				okCount++
				fmt.Printf("  [ok] %s (%d bytes)\n", r.Path, r.Bytes)
			}
			fmt.Printf("\n%d/%d extracted to %s\n", okCount, len(results), outputDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Output directory")
	cmd.Flags().BoolVar(&all, "all", false, "Extract every file in the tree")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "Drop folder structure, write base names only")
	return cmd
}

// cacheCmd creates the cache command group
func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the snapshot cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show cache location, record count and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(); err != nil {
				return err
			}
			defer logger.Sync()

			_, store, cfg, err := newEngine(false)
			if err != nil {
				return err
			}
			fps, err := store.List()
			if err != nil {
				return err
			}
			size, err := store.Size()
			if err != nil {
				return err
			}
			fmt.Printf("cache dir: %s\nrecords:   %d\nsize:      %d bytes\n", cfg.CacheDir, len(fps), size)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogger(); err != nil {
				return err
			}
			defer logger.Sync()

			_, store, _, err := newEngine(false)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	})

	return cmd
}

// configCmd creates the config command group
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var out string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(out); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&out, "output", "o", "zaudiobrowser.yaml", "Where to write the config file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("cache_dir:          %s\n", cfg.CacheDir)
			fmt.Printf("workers:            %d\n", cfg.Workers)
			exts := append([]string(nil), cfg.Extensions...)
			sort.Strings(exts)
			fmt.Printf("extensions:         %v\n", exts)
			fmt.Printf("archive_extensions: %v\n", cfg.ArchiveExtensions)
			fmt.Printf("open_timeout:       %s\n", cfg.OpenTimeout)
			fmt.Printf("chunk_size:         %d\n", cfg.ChunkSize)
			fmt.Printf("share_limit:        %s\n", cfg.ShareLimit)
			fmt.Printf("skip_cache:         %v\n", cfg.SkipCache)
			return nil
		},
	})

	return cmd
}
