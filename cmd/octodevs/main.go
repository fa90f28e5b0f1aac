package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/octodevs/octodevs/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	apiURL       string
	sessionToken string
	cfgFile      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "octodevs",
	Short: "Octodevs leaderboard CLI",
	Long: `octodevs is the command-line interface for the Octodevs developer
leaderboard. It lists published profiles and manages your own profile.

Authenticated commands (me, publish, unpublish) need a session token from
the web login flow; pass it with --token or set OCTODEVS_TOKEN.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.octodevs")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("octodevs")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if apiURL == "" {
			apiURL = viper.GetString("api_url")
		}
		if apiURL == "" {
			apiURL = "https://api.octodevs.com"
		}
		if sessionToken == "" {
			sessionToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.octodevs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Octodevs API URL (default https://api.octodevs.com)")
	rootCmd.PersistentFlags().StringVar(&sessionToken, "token", "", "session token for authenticated commands")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(unpublishCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if sessionToken != "" {
		opts = append(opts, client.WithSessionToken(sessionToken))
	}
	return client.New(apiURL, opts...)
}

// ── list ─────────────────────────────────────────────────────────────────────

var (
	listFormat   string
	listPageSize int
	listAll      bool
	listCursor   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List published developer profiles",
	Long: `List shows the published leaderboard ordered by follower count.

By default one page is fetched. Use --all to walk every page, or --cursor
to continue from a previous page's next cursor:

  octodevs list --limit 25
  octodevs list --all
  octodevs list --cursor gopherqueen`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
	listCmd.Flags().IntVar(&listPageSize, "limit", 0, "Page size (1-50; 0 uses the server default)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Fetch every page")
	listCmd.Flags().StringVar(&listCursor, "cursor", "", "Start from this cursor")
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var profiles []client.Profile
	nextCursor := ""
	if listAll {
		profiles, err = c.AllProfiles(ctx, listPageSize)
		if err != nil {
			return err
		}
	} else {
		page, err := c.ProfilesPage(ctx, listPageSize, listCursor)
		if err != nil {
			return err
		}
		profiles = page.Profiles
		nextCursor = page.NextCursor
	}

	if listFormat == "json" {
		return printJSON(profiles)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOGIN\tNAME\tFOLLOWERS\tLOCATION\tHIREABLE")
	for _, p := range profiles {
		hireable := ""
		if p.Hireable {
			hireable = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.GitHub, p.Name, p.Followers, p.Location, hireable)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if nextCursor != "" {
		fmt.Printf("\nnext page: octodevs list --cursor %s\n", nextCursor)
	}
	return nil
}

// ── me / publish / unpublish ─────────────────────────────────────────────────

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show your own profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		p, err := c.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish (or republish) your profile to the leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		p, err := c.Publish(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("published %s (%d followers)\n", p.GitHub, p.Followers)
		return nil
	},
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish",
	Short: "Hide your profile from the leaderboard",
	Long: `Unpublish hides your profile from the public leaderboard. Your data
is retained; running publish again restores it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		p, err := c.Unpublish(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("unpublished %s\n", p.GitHub)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("octodevs", version)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
