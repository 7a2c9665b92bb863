package cli

import (
	"github.com/spf13/cobra"

	"github.com/mizuikk/codex-openai-wrapper/internal/auth"
	"github.com/mizuikk/codex-openai-wrapper/internal/config"
	"github.com/mizuikk/codex-openai-wrapper/internal/util"
)

var loginNoBrowser bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a ChatGPT account",
	Long: `Run the ChatGPT OAuth flow and save the tokens to the auth file.

A browser window opens to complete authentication; use --no-browser to print
the URL instead. The resulting auth.json is the same file the codex CLI
writes, so an existing codex login is picked up without this step.`,
	RunE: func(c *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = "config.yaml"
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		authFile := util.ExpandHome(cfg.Upstream.AuthFile)
		return auth.Login(c.Context(), authFile, auth.LoginOptions{NoBrowser: loginNoBrowser})
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "print the login URL instead of opening a browser")
	rootCmd.AddCommand(loginCmd)
}
