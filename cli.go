package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/buddy/fetch"
	"github.com/briangreenhill/buddy/internal/config"
	"github.com/briangreenhill/buddy/internal/favorites"
	"github.com/briangreenhill/buddy/internal/location"
	"github.com/briangreenhill/buddy/internal/query"
	"github.com/briangreenhill/buddy/internal/storage"
	"github.com/briangreenhill/buddy/internal/workspace"
)

var errNotLoggedIn = errors.New("not logged in; run `buddy login` first")

// app is the state one CLI invocation works against.
type app struct {
	dataDir string
	apiURL  string
	verbose bool

	ws  *workspace.Workspace
	log zerolog.Logger
}

// NewRootCmd builds the buddy command tree. Every invocation reopens the
// workspace from disk, so logins and favorites carry over between runs.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "buddy",
		Short:         "Search adoptable dogs, keep favorites and get matched",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.ws != nil {
				a.ws.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "where state is kept (default $BUDDY_DATA_DIR or ~/.buddy)")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "adoption service base URL (default $BUDDY_API_URL)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.breedsCmd(),
		a.searchCmd(),
		a.favCmd(),
		a.matchCmd(),
		a.locationsCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lvl := zerolog.WarnLevel
	if a.verbose {
		lvl = zerolog.DebugLevel
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()

	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	dir := a.dataDir
	if dir == "" {
		dir = cfg.DataDir
	}
	st, err := storage.NewFile(dir)
	if err != nil {
		return err
	}
	a.ws, err = workspace.Open(ctx, workspace.Options{
		Store:             st,
		ClientOptions:     cfg.ClientOptions(),
		SessionOptions:    cfg.SessionOptions(),
		QueryCacheSize:    cfg.QueryCacheSize,
		LocationCacheSize: cfg.LocationCacheSize,
		Logger:            a.log,
	})
	return err
}

func (a *app) requireLogin(ctx context.Context) error {
	if _, ok := a.ws.Session.Current(ctx); !ok {
		return errNotLoggedIn
	}
	return nil
}

func (a *app) loginCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the adoption service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.ws.Login(cmd.Context(), fetch.Credentials{Name: name, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s <%s> until %s\n", sess.Name, sess.Email, sess.ExpiresAt.Format(time.Kitchen))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "your name")
	cmd.Flags().StringVar(&email, "email", "", "your email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.ws.Logout(cmd.Context()); err != nil {
				a.log.Warn().Err(err).Msg("remote logout failed, local session cleared")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, ok := a.ws.Session.Current(cmd.Context())
			if !ok {
				return errNotLoggedIn
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>, session ends in %s\n",
				sess.Name, sess.Email, time.Until(sess.ExpiresAt).Round(time.Minute))
			return nil
		},
	}
}

func (a *app) breedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breeds",
		Short: "List every breed the service knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			breeds, err := a.ws.Engine.Breeds(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range breeds {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var (
		filter         query.Filter
		sortBy         string
		page           int
		ageMin, ageMax int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search dogs one page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}
			if cmd.Flags().Changed("age-min") {
				filter.AgeMin = &ageMin
			}
			if cmd.Flags().Changed("age-max") {
				filter.AgeMax = &ageMax
			}
			srt, err := query.ParseSort(sortBy)
			if err != nil {
				return err
			}
			key, err := query.NewKey(filter, srt, page)
			if err != nil {
				return err
			}
			res, err := a.ws.Engine.Query(ctx, key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printListings(out, a.ws.Listings(ctx, res), a.ws.Favorites)
			fmt.Fprintf(out, "page %d of %d, %d dogs\n", key.Page(), res.TotalPages, res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Breed, "breed", "", "only this breed")
	cmd.Flags().StringSliceVar(&filter.ZipCodes, "zip", nil, "only these zip codes")
	cmd.Flags().IntVar(&ageMin, "age-min", 0, "minimum age in years")
	cmd.Flags().IntVar(&ageMax, "age-max", 0, "maximum age in years")
	cmd.Flags().StringVar(&sortBy, "sort", query.DefaultSort.String(), "breed, name or age with :asc or :desc")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func (a *app) favCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fav",
		Short: "Manage favorite dogs",
	}

	add := &cobra.Command{
		Use:   "add ID...",
		Short: "Add dogs by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}
			dogs, err := a.ws.Client.Dogs(ctx, ids)
			if err != nil {
				return err
			}
			if len(dogs) < len(ids) {
				return fmt.Errorf("only %d of %d dogs found", len(dogs), len(ids))
			}
			for _, d := range dogs {
				if err := a.ws.Favorites.Add(ctx, d); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d favorites\n", a.ws.Favorites.Len())
			return nil
		},
	}

	rm := &cobra.Command{
		Use:     "rm ID...",
		Aliases: []string{"remove"},
		Short:   "Remove dogs by id",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			for _, id := range ids {
				if err := a.ws.Favorites.Remove(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d favorites\n", a.ws.Favorites.Len())
			return nil
		},
	}

	var sortBy string
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dogs := a.ws.Favorites.List()
			if sortBy != "" {
				field, dir, _ := strings.Cut(sortBy, ":")
				dogs = a.ws.Favorites.Sorted(favorites.SortBy(field), dir == "desc")
			}
			locs, err := a.ws.Locations.Lookup(cmd.Context(), location.ZipsOf(dogs))
			if err != nil {
				a.log.Warn().Err(err).Msg("some locations unavailable")
			}
			printListings(cmd.OutOrStdout(), location.Annotate(dogs, locs), nil)
			return nil
		},
	}
	ls.Flags().StringVar(&sortBy, "sort", "", "name, breed or age with optional :desc")

	cmd.AddCommand(add, rm, ls)
	return cmd
}

func (a *app) matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Ask the service to pick one of your favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			l, err := a.ws.MatchFavorites(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "matched with %s!\n", l.Dog.Name)
			printListings(cmd.OutOrStdout(), []location.Listing{*l}, nil)
			return nil
		},
	}
}

func (a *app) locationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations ZIP...",
		Short: "Resolve zip codes to places",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, zips []string) error {
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			locs, err := a.ws.Locations.Lookup(cmd.Context(), zips)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ZIP\tCITY\tSTATE\tCOUNTY")
			for _, z := range query.NormalizeZips(zips) {
				l, ok := locs[z]
				if !ok {
					fmt.Fprintf(tw, "%s\t-\t-\t-\n", z)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", z, l.City, l.State, l.County)
			}
			if ferr := tw.Flush(); ferr != nil {
				return ferr
			}
			return err
		},
	}
}

// printListings writes one row per dog. A star marks favorites when fav is set.
func printListings(w io.Writer, ls []location.Listing, fav *favorites.Store) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tBREED\tAGE\tLOCATION")
	for _, l := range ls {
		mark := ""
		if fav != nil && fav.IsMember(l.Dog.ID) {
			mark = "*"
		}
		where := l.Dog.ZipCode
		if l.Location != nil {
			where = l.Location.City + ", " + l.Location.State
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, l.Dog.ID, l.Dog.Name, l.Dog.Breed, strconv.Itoa(l.Dog.Age), where)
	}
	_ = tw.Flush()
}
