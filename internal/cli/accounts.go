package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openindex-dev/openindex/internal/core/domain"
)

var (
	addProvider string
	addName     string
	addToken    string
	addConfig   []string
	addOAuth    bool
	oauthWait   time.Duration
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts",
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a new account",
	Long: `Connects an account either with a token (--token) or through the
provider's OAuth flow (--oauth), which opens a browser and waits for
the redirect on a local callback server.`,
	RunE: runAccountsAdd,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Disconnect and remove an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsRemove,
}

func init() {
	accountsAddCmd.Flags().StringVar(&addProvider, "provider", "", "provider kind (github, gitlab, bitbucket, googledrive, dropbox, notion, localfile, weburl)")
	accountsAddCmd.Flags().StringVar(&addName, "name", "", "display name for the connection")
	accountsAddCmd.Flags().StringVar(&addToken, "token", "", "personal access token")
	accountsAddCmd.Flags().StringArrayVar(&addConfig, "config", nil, "provider setting as key=value (repeatable)")
	accountsAddCmd.Flags().BoolVar(&addOAuth, "oauth", false, "authenticate through the provider's OAuth flow")
	accountsAddCmd.Flags().DurationVar(&oauthWait, "oauth-timeout", 2*time.Minute, "how long to wait for the OAuth callback")
	_ = accountsAddCmd.MarkFlagRequired("provider")

	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsRemoveCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.accounts.List(cmd.Context(), userFlag)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		cmd.Println("No accounts connected.")
		return nil
	}
	for _, account := range accounts {
		last := "never"
		if account.LastSyncAt != nil {
			last = account.LastSyncAt.Format(time.RFC3339)
		}
		line := fmt.Sprintf("%s  %-12s %-20s %-12s last sync %s",
			account.ID, account.ConnectorType, account.AccountName, account.Status.State, last)
		if account.Status.Reason != "" {
			line += "  (" + account.Status.Reason + ")"
		}
		cmd.Println(line)
	}
	return nil
}

func runAccountsAdd(cmd *cobra.Command, _ []string) error {
	kind, err := domain.ParseProviderKind(addProvider)
	if err != nil {
		return err
	}
	providerConfig, err := parseConfigFlags(addConfig)
	if err != nil {
		return err
	}
	name := addName
	if name == "" {
		name = string(kind)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if addOAuth {
		return addViaOAuth(cmd, a, kind, name)
	}

	var creds domain.Credentials
	if addToken != "" {
		creds.PAT = &domain.PATCredentials{Token: addToken}
	}
	account, err := a.accounts.Connect(cmd.Context(), userFlag, kind, name, providerConfig, creds)
	if err != nil {
		return err
	}
	cmd.Printf("Connected %s account %s\n", kind, account.ID)
	return nil
}

// addViaOAuth runs the browser flow: local callback server, provider
// authorization page, code exchange.
func addViaOAuth(cmd *cobra.Command, a *app, kind domain.ProviderKind, name string) error {
	server := newCallbackServer(0)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	authURL, state, err := a.accounts.BeginOAuth(kind, server.RedirectURI())
	if err != nil {
		return err
	}
	server.Expect(state)

	cmd.Printf("Opening browser for %s authorization...\n", kind)
	cmd.Printf("If it does not open, visit:\n  %s\n", authURL)
	if err := openBrowser(authURL); err != nil {
		cmd.Printf("Could not open browser: %v\n", err)
	}

	code, err := server.WaitForCode(oauthWait)
	if err != nil {
		return fmt.Errorf("waiting for authorization: %w", err)
	}

	account, err := a.accounts.CompleteOAuth(cmd.Context(), userFlag, kind, name, code, state)
	if err != nil {
		return err
	}
	cmd.Printf("Connected %s account %s\n", kind, account.ID)
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.accounts.Disconnect(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Removed account %s\n", args[0])
	return nil
}

// parseConfigFlags turns repeated key=value flags into a config map.
func parseConfigFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: config flag %q is not key=value", domain.ErrInvalidConfiguration, pair)
		}
		out[key] = value
	}
	return out, nil
}
