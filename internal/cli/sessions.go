package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/browser"
	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/publisher/drivers"
	"github.com/watzon/clipcast/internal/sessions"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage browser profiles used for publishing",
	Long: `Manage the per-account browser profiles below sessions.root.

A profile must be signed in to its platform before schedules can publish
through it. Use 'clipcast sessions login <account-id>' to open a visible
browser on the profile and sign in by hand.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles and the accounts they belong to",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create <account-id>",
	Short: "Create an empty profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsCreate,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <account-id>",
	Short: "Remove a profile and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsLoginCmd = &cobra.Command{
	Use:   "login <account-id>",
	Short: "Open a visible browser on a profile to sign in",
	Long: `Open Chrome on the account's profile at its platform's upload page.
Sign in, then press Ctrl+C; cookies stay in the profile.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsLogin,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsLoginCmd)

	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ids, err := sessions.NewStore(cfg.Sessions.Root).List()
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store := accounts.NewStore(db)
	owners := make(map[string]*accounts.Account, len(ids))
	for _, id := range ids {
		acc, getErr := store.Get(cmd.Context(), id)
		if errors.Is(getErr, accounts.ErrNotFound) {
			continue
		}
		if getErr != nil {
			return getErr
		}
		owners[id] = acc
	}

	return printSessions(cmd.OutOrStdout(), ids, owners)
}

// printSessions writes one row per profile. Profiles without an account are
// marked as orphans.
func printSessions(out io.Writer, ids []string, owners map[string]*accounts.Account) error {
	if len(ids) == 0 {
		_, err := fmt.Fprintln(out, "No session profiles.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tPLATFORM\tOWNER\tACTIVE")
	for _, id := range ids {
		acc, ok := owners[id]
		if !ok {
			fmt.Fprintf(tw, "%s\t(orphan)\t-\t-\n", id)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", id, acc.Platform, acc.OwnerID, acc.Active)
	}
	return tw.Flush()
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, err := sessions.NewStore(cfg.Sessions.Root).Create(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Profile ready at %s\n", path)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := sessions.NewStore(cfg.Sessions.Root).Delete(args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %s\n", args[0])
	return nil
}

func runSessionsLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	acc, err := accounts.NewStore(db).Get(cmd.Context(), args[0])
	db.Close()
	if err != nil {
		return err
	}

	url, ok := drivers.LoginURL(string(acc.Platform))
	if !ok {
		return fmt.Errorf("no login page known for platform %q", acc.Platform)
	}

	path, err := sessions.NewStore(cfg.Sessions.Root).Create(acc.ID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browserCfg := cfg.Browser
	browserCfg.Headless = false

	sess, err := browser.NewLauncher(browserCfg).Open(ctx, path)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := chromedp.Run(sess.Context(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}

	log.Info().Str("account_id", acc.ID).Str("url", url).Msg("Sign in, then press Ctrl+C to save the session")

	select {
	case <-ctx.Done():
	case <-sess.Context().Done():
		log.Info().Msg("Browser closed")
	}
	return nil
}
