package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "featurewindow",
		Short: "featurewindow - time-windowed feature documents on DynamoDB",
		Long: `featurewindow persists time-ordered feature documents into DynamoDB and reads
back bounded windows of them per entity. It validates pipeline schemas, provisions
the document table, inspects stored windows and runs the stream writer on Lambda.`,
		SilenceUsage: true,
	}

	var configFile string
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "featurewindow.yaml", "Path to the YAML configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("featurewindow v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the declared columns against the access pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), configFile, cmd.OutOrStdout())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "provision",
		Short: "Create the document table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd.Context(), configFile)
		},
	})

	var entity, window string
	var until time.Duration
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the stored documents of an entity as JSON lines",
		Long: `Scan prints every document stored for an entity within a window, newest first.

Example:
  featurewindow scan --entity customer-42 --window 7d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), configFile, entity, window, until, cmd.OutOrStdout())
		},
	}
	scanCmd.Flags().StringVar(&entity, "entity", "", "Entity whose documents are scanned (required)")
	scanCmd.Flags().StringVar(&window, "window", "1d", "Window length ending at --until, e.g. 12h or 90d")
	scanCmd.Flags().DurationVar(&until, "until", 0, "End of the window relative to now, e.g. 1h ago is 1h")
	_ = scanCmd.MarkFlagRequired("entity")
	root.AddCommand(scanCmd)

	var source string
	lambdaCmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run the stream writer as an AWS Lambda handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLambda(cmd.Context(), configFile, source)
		},
	}
	lambdaCmd.Flags().StringVar(&source, "source", "dynamodb", "Event source: dynamodb or kinesis")
	root.AddCommand(lambdaCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
