package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/form3tech-oss/pact-kit/pkg/broker"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type publishFlags struct {
	consumer         string
	version          string
	pactDir          string
	brokerURL        string
	username         string
	password         string
	token            string
	tags             []string
	tagWithGitBranch bool
	branch           string
	buildURL         string
	autoDetect       bool
}

var publishOpts publishFlags

var publishCmd = &cobra.Command{
	Use:   "publish [pact files]",
	Short: "Publish a consumer's pacts to a pact broker",
	Example: `  # Publish every pact of a consumer in ./pacts
  pact publish --consumer "User Web" --consumer-app-version 1.0.0 --broker-base-url http://broker`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := publishOpts
		if o.consumer == "" {
			return errors.New("--consumer is required")
		}
		p := &broker.Publisher{
			BrokerURL: firstOf(o.brokerURL, config.BrokerURL),
			Username:  firstOf(o.username, config.BrokerUsername),
			Password:  firstOf(o.password, config.BrokerPassword),
			Token:     firstOf(o.token, config.BrokerToken),
			Binary:    config.BrokerBinary,
		}
		err := p.Publish(cmd.Context(), o.consumer, o.version, broker.PublishOptions{
			PactDir:                     firstOf(o.pactDir, config.PactDir),
			Files:                       args,
			Tags:                        o.tags,
			TagWithGitBranch:            o.tagWithGitBranch,
			Branch:                      o.branch,
			BuildURL:                    o.buildURL,
			AutoDetectVersionProperties: o.autoDetect,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("published %s %s", o.consumer, o.version))
		return nil
	},
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&publishOpts.consumer, "consumer", "", "name of the consumer whose pacts are published")
	f.StringVar(&publishOpts.version, "consumer-app-version", "", "version of the consumer")
	f.StringVar(&publishOpts.pactDir, "pact-dir", "", "directory holding the pact files, defaults to PACT_DIR")
	f.StringVar(&publishOpts.brokerURL, "broker-base-url", "", "pact broker URL, defaults to PACT_BROKER_BASE_URL")
	f.StringVar(&publishOpts.username, "broker-username", "", "pact broker username, defaults to PACT_BROKER_USERNAME")
	f.StringVar(&publishOpts.password, "broker-password", "", "pact broker password, defaults to PACT_BROKER_PASSWORD")
	f.StringVar(&publishOpts.token, "broker-token", "", "pact broker token, defaults to PACT_BROKER_TOKEN")
	f.StringArrayVarP(&publishOpts.tags, "tag", "t", nil, "tag for the consumer version, may be repeated")
	f.BoolVar(&publishOpts.tagWithGitBranch, "tag-with-git-branch", false, "tag the consumer version with the current git branch")
	f.StringVar(&publishOpts.branch, "branch", "", "branch of the consumer version")
	f.StringVar(&publishOpts.buildURL, "build-url", "", "URL of the build that produced the pacts")
	f.BoolVar(&publishOpts.autoDetect, "auto-detect-version-properties", false, "detect the branch and build URL from the CI environment")
}
