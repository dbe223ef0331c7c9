package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"quorum/pkg/sdk"
)

func newUsersCommand(baseURL, apiKey *string, asJSON *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "User management commands"}

	cmd.AddCommand(&cobra.Command{
		Use:   "me",
		Short: "Show the user owning the API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := newClient(*baseURL, *apiKey).Users.Me(cmd.Context())
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(user)
			}
			return printUsersTable([]sdk.User{user})
		},
	})

	var username string
	var trustLevel int
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its API key (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, key, err := newClient(*baseURL, *apiKey).Users.Create(cmd.Context(), username, trustLevel, admin)
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(map[string]any{"user": user, "api_key": key})
			}
			fmt.Printf("User ID: %s\n", user.ID)
			fmt.Printf("API Key (shown once): %s\n", key)
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "Username")
	create.Flags().IntVar(&trustLevel, "trust-level", 0, "Trust level 0-4")
	create.Flags().BoolVar(&admin, "admin", false, "Grant admin")
	_ = create.MarkFlagRequired("username")
	cmd.AddCommand(create)

	var level int
	trust := &cobra.Command{
		Use:   "trust-level <user-id>",
		Short: "Set a user's trust level (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := newClient(*baseURL, *apiKey).Users.SetTrustLevel(cmd.Context(), args[0], level)
			if err != nil {
				return err
			}
			return printJSON(user)
		},
	}
	trust.Flags().IntVar(&level, "level", 0, "Trust level 0-4")
	_ = trust.MarkFlagRequired("level")
	cmd.AddCommand(trust)

	cmd.AddCommand(&cobra.Command{
		Use:   "rotate-key <user-id>",
		Short: "Issue a new API key for a user (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := newClient(*baseURL, *apiKey).Users.RotateKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("API Key (shown once): %s\n", key)
			return nil
		},
	})
	return cmd
}

func newSavedSearchesCommand(baseURL, apiKey *string, asJSON *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "saved-searches", Short: "Manage your saved search terms"}

	show := func(terms []string) error {
		if *asJSON {
			return printJSON(map[string]any{"saved_searches": terms})
		}
		if len(terms) == 0 {
			fmt.Println("No saved searches")
			return nil
		}
		for i, t := range terms {
			fmt.Printf("%d. %s\n", i+1, t)
		}
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use: "get",
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := newClient(*baseURL, *apiKey).SavedSearches.Get(cmd.Context())
			if err != nil {
				return err
			}
			return show(terms)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [term...]",
		Short: "Replace the saved search list; no terms clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			terms, err := newClient(*baseURL, *apiKey).SavedSearches.Set(cmd.Context(), args)
			if err != nil {
				return err
			}
			return show(terms)
		},
	})
	return cmd
}

func newSearchCommand(baseURL, apiKey *string, asJSON *bool) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search public posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := newClient(*baseURL, *apiKey).Search.Posts(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(map[string]any{"results": results})
			}
			return printResultsTable(results)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	return cmd
}

func newAdminCommand(baseURL, apiKey *string) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Admin commands"}
	cmd.AddCommand(&cobra.Command{
		Use: "stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := newClient(*baseURL, *apiKey).Admin.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use: "config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := newClient(*baseURL, *apiKey).Admin.Config(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use: "audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := newClient(*baseURL, *apiKey).Admin.Audit(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run-saved-searches [user-id]",
		Short: "Run the notifier on the server for one user, or for everyone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(*baseURL, *apiKey)
			if len(args) == 1 {
				res, err := client.Admin.RunSavedSearches(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			}
			summary, err := client.Admin.RunAllSavedSearches(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	})
	return cmd
}

func printUsersTable(items []sdk.User) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tTRUST\tADMIN\tCREATED_AT")
	for _, u := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", u.ID, u.Username, u.TrustLevel, u.Admin, u.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func printResultsTable(items []sdk.SearchResult) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tPOST\tAUTHOR\tCREATED_AT\tTITLE")
	for _, r := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.TopicID, r.PostNumber, r.AuthorUsername, r.CreatedAt.Format(time.RFC3339), r.TopicTitle)
	}
	return w.Flush()
}
