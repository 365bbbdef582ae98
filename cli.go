package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        *Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "photosearch",
		Short: "Search stock photos page by page and keep favorites",
		Long: `photosearch pages through keyword searches on Pexels or Pixabay.

Upstream responses are cached in a local sqlite database, which also keeps
the favorite flag of each photo across restarts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigFile, "Configuration file (.json or .yaml)")

	cmd.AddCommand(
		a.newServeCmd(),
		a.newSearchCmd(),
		a.newFavoriteCmd(),
		a.newFavoritesCmd(),
		a.newUserCmd(),
	)
	return cmd
}

func (a *app) openStore() (*Store, error) {
	store, err := OpenStore(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.cfg.Database, err)
	}
	return store, nil
}

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve search sessions over HTTP",
		Example: `  # Listen on the configured address (default :8081)
  photosearch serve

  # Use a YAML configuration
  photosearch serve --config conf/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := checkAuthUsers(a.cfg, store); err != nil {
				return err
			}

			reqCache := NewReqCache(store, a.cfg.cacheTTL())
			scheduler := cron.New()
			if err := reqCache.SchedulePurge(scheduler, a.cfg.Cache.PurgeSchedule); err != nil {
				return fmt.Errorf("cache purge schedule %q: %w", a.cfg.Cache.PurgeSchedule, err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			searcher, err := NewSearcher(a.cfg, reqCache)
			if err != nil {
				return err
			}
			sessions := NewSessions(searcher, a.cfg.Sessions.Max, a.cfg.sessionTTL())
			srv := NewServer(a.cfg, store, sessions)

			server := &http.Server{
				Addr:    a.cfg.Listen,
				Handler: srv.Routes(),
			}
			serverErr := make(chan error, 1)
			go func() {
				srv.log.Printf("Starting Server on %s (%s)", a.cfg.Listen, searcher.Type())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				srv.log.Println("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-serverErr:
				return err
			}
		},
	}
}

var ErrNoUsers = errors.New("auth.required is set but no users exist, add one with 'photosearch user add'")

// checkAuthUsers refuses a server that would answer every request with 401.
func checkAuthUsers(cfg *Config, store *Store) error {
	if !cfg.Auth.Required {
		return nil
	}
	has, err := store.HasUsers()
	if err != nil {
		return err
	}
	if !has {
		return ErrNoUsers
	}
	return nil
}

func (a *app) newSearchCmd() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Search photos and print the accumulated results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			searcher, err := NewSearcher(a.cfg, NewReqCache(store, a.cfg.cacheTTL()))
			if err != nil {
				return err
			}
			engine := NewQueryEngine(searcher)
			return runSearch(cmd.Context(), cmd.OutOrStdout(), engine, strings.Join(args, " "), pages)
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "Number of pages to load")
	return cmd
}

// runSearch loads up to pages pages of query and prints the resulting list.
func runSearch(ctx context.Context, out io.Writer, engine *QueryEngine, query string, pages int) error {
	n, err := engine.LoadPhotos(ctx, query)
	for i := 1; err == nil && n > 0 && i < pages; i++ {
		n, err = engine.LoadMoreCurrentQuery(ctx)
	}
	photos := engine.Photos().Value()
	if err != nil && len(photos) == 0 {
		fmt.Fprintln(out, engine.EmptyState().Value().Text)
		return err
	}
	if err != nil {
		fmt.Fprintln(out, "warning:", err)
	}
	if len(photos) == 0 {
		fmt.Fprintf(out, "No photos found for %q\n", query)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSIZE\tPHOTOGRAPHER\tTHUMB")
	for _, p := range photos {
		fmt.Fprintf(tw, "%d\t%dx%d\t%s\t%s\n", p.ID, p.Width, p.Height, p.Photographer, p.Thumb)
	}
	return tw.Flush()
}

func (a *app) newFavoriteCmd() *cobra.Command {
	var set, unset bool
	cmd := &cobra.Command{
		Use:   "favorite <photo-id>",
		Short: "Toggle, set or clear the favorite flag of a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ParsePhotoID(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch {
			case set || unset:
				if err := store.SetFavorite(ctx, id, set); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d favorite: %t\n", id, set)
			default:
				_, message, err := ToggleFavorite(ctx, store, id)
				fmt.Fprintln(out, message)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&set, "set", false, "Mark the photo as favorite")
	cmd.Flags().BoolVar(&unset, "unset", false, "Remove the photo from favorites")
	cmd.MarkFlagsMutuallyExclusive("set", "unset")
	return cmd
}

func (a *app) newFavoritesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List favorite photo ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ids, err := store.Favorites(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (a *app) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage basic auth users",
	}
	var level int
	add := &cobra.Command{
		Use:   "add <name> <password>",
		Short: "Create a user or replace its password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.AddUser(args[0], args[1], level); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", args[0])
			return nil
		},
	}
	add.Flags().IntVar(&level, "level", 1, "Access level")
	cmd.AddCommand(add)
	return cmd
}
