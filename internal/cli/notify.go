package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LightningDocs/monthly-double-checker-v2/config"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/httpclient"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/logging"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/notify"
)

// NewNotifyCommand creates the notify command
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <title> <message> <success>",
		Short: "Send a message to the Teams webhook",
		Long: `Post an adaptive card to TEAMS_WEBHOOK_URL. success is a boolean
(true/false, 1/0) choosing the card colour.

Example:
  double-checker notify "Double checker" "Nightly run skipped" false`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			success, err := strconv.ParseBool(args[2])
			if err != nil {
				return WrapExitError(ExitUsage, fmt.Sprintf("invalid success value %q", args[2]), err)
			}
			webhook, err := config.LoadTeamsWebhook(rootOpts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitUsage, "failed to load configuration", err)
			}

			logger, err := logging.New(logging.Config{Level: "info"}, time.Now().UTC())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to create logger", err)
			}
			defer logger.Sync()

			teams, err := notify.NewTeams(httpclient.NewClient(httpclient.DefaultConfig(), logger), webhook, logger)
			if err != nil {
				return WrapExitError(ExitUsage, "invalid webhook", err)
			}
			if err := teams.Notify(cmd.Context(), args[0], args[1], success); err != nil {
				return WrapExitError(ExitFailure, "failed to send notification", err)
			}
			return nil
		},
	}
	return cmd
}
