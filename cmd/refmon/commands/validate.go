package commands

import (
	"os"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/editorialops/referee-monitor/internal/credentials"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var validateFile string

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "platforms file to check (default $PLATFORMS_FILE or platforms.yaml)")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Checks the platforms file and reports which credentials are present.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := validateFile
		if path == "" {
			path = os.Getenv("PLATFORMS_FILE")
		}
		if path == "" {
			path = "platforms.yaml"
		}

		platforms, err := config.LoadPlatforms(path)
		if err != nil {
			return err
		}

		prefix := os.Getenv("CREDENTIAL_PREFIX")
		if prefix == "" {
			prefix = "REFMON_"
		}
		creds := credentials.NewEnvProvider(prefix)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Platform", "Credentials", "List URL", "Username", "Password", "Second factor"})

		for _, p := range platforms {
			t.AppendRow(table.Row{
				p.Name,
				p.CredentialService,
				p.Extraction.ListURL,
				presence(creds, p.CredentialService, credentials.FieldUsername),
				presence(creds, p.CredentialService, credentials.FieldPassword),
				secondFactor(creds, p),
			})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

// presence reports whether a credential field is set without revealing it
func presence(creds credentials.Provider, service, field string) string {
	if _, ok := creds.Get(service, field); ok {
		return "set"
	}
	return "missing"
}

func secondFactor(creds credentials.Provider, p config.PlatformConfig) string {
	if p.Login.SecondFactor == "" {
		return "-"
	}
	return presence(creds, p.CredentialService, credentials.FieldSecondFactor)
}
