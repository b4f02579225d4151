package cmd

import (
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

var (
	oauthScopes   []string
	oauthOpen     bool
	oauthVerifier string
	oauthNoPKCE   bool
)

var oauth2Cmd = &cobra.Command{
	Use:   "oauth2",
	Short: "Authorize users with an OAuth2 app and inspect their tokens",
	Long: `OAuth2 commands use the app configured with oauth2_client_id,
oauth2_client_secret and oauth2_redirect_uri in the config file, or the
RBLXCLOUD_OAUTH2_CLIENT_ID, RBLXCLOUD_OAUTH2_CLIENT_SECRET and
RBLXCLOUD_OAUTH2_REDIRECT_URI environment variables.`,
}

func newOAuth2App() (*opencloud.OAuth2App, error) {
	if config.OAuth2ClientID == "" {
		return nil, internal.MissingCredentialError("oauth2_client_id", "RBLXCLOUD_OAUTH2_CLIENT_ID")
	}
	clientID, err := parseID("oauth2_client_id", config.OAuth2ClientID)
	if err != nil {
		return nil, err
	}
	return opencloud.NewOAuth2App(clientID, config.OAuth2ClientSecret, config.OAuth2RedirectURI, clientOptions()...)
}

type authorizeOutput struct {
	URI          string `json:"uri"`
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

var oauth2AuthorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Print an authorization URI, optionally opening it in a browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}

		out := authorizeOutput{State: opencloud.GenerateState()}
		if !oauthNoPKCE {
			if out.CodeVerifier, err = opencloud.GenerateCodeVerifier(128); err != nil {
				return err
			}
		}
		out.URI = app.GenerateURI(oauthScopes, out.State, out.CodeVerifier)

		if oauthOpen {
			if err := browser.OpenURL(out.URI); err != nil {
				internal.LogWarn("Could not open a browser: %v", err)
			}
		}
		status("Pass the code from the redirect to: rblxcloud oauth2 exchange <code> --verifier <code_verifier>")
		return printResult(cmd, out)
	},
}

var oauth2ExchangeCmd = &cobra.Command{
	Use:   "exchange <code>",
	Short: "Exchange an authorization code for tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}
		token, err := app.ExchangeCode(cmd.Context(), args[0], oauthVerifier)
		if err != nil {
			return err
		}
		return printResult(cmd, token)
	},
}

var oauth2RefreshCmd = &cobra.Command{
	Use:   "refresh <refresh-token>",
	Short: "Get new tokens with a refresh token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}
		token, err := app.RefreshToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, token)
	},
}

var oauth2RevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke an access or refresh token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}
		if err := app.RevokeToken(cmd.Context(), args[0]); err != nil {
			return err
		}
		status("🔒 Token revoked")
		return nil
	},
}

var oauth2UserinfoCmd = &cobra.Command{
	Use:   "userinfo <access-token>",
	Short: "Show the user an access token belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}
		user, err := app.FromAccessTokenString(args[0]).FetchUserinfo(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, user)
	},
}

var oauth2ResourcesCmd = &cobra.Command{
	Use:   "resources <access-token>",
	Short: "Show the experiences, users and groups an access token can reach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}
		resources, err := app.FromAccessTokenString(args[0]).FetchResources(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, resources)
	},
}

var oauth2TokenInfoCmd = &cobra.Command{
	Use:   "token-info <access-token>",
	Short: "Introspect an access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newOAuth2App()
		if err != nil {
			return err
		}
		info, err := app.FromAccessTokenString(args[0]).FetchTokenInfo(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, info)
	},
}

func init() {
	authFlags := oauth2AuthorizeCmd.Flags()
	authFlags.StringSliceVar(&oauthScopes, "scopes", []string{"openid", "profile"}, "Scopes to request")
	authFlags.BoolVar(&oauthOpen, "open", false, "Open the URI in the default browser")
	authFlags.BoolVar(&oauthNoPKCE, "no-pkce", false, "Do not add a PKCE code challenge")

	oauth2ExchangeCmd.Flags().StringVar(&oauthVerifier, "verifier", "", "Code verifier printed by authorize")

	oauth2Cmd.AddCommand(
		oauth2AuthorizeCmd,
		oauth2ExchangeCmd,
		oauth2RefreshCmd,
		oauth2RevokeCmd,
		oauth2UserinfoCmd,
		oauth2ResourcesCmd,
		oauth2TokenInfoCmd,
	)
}
