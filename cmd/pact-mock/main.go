package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-mock/internal/app/configuration"
)

var version = "dev"

var (
	serverAddress    string
	adminPort        int
	consumerName     string
	providerName     string
	interactionsFile string
)

var rootCmd = &cobra.Command{
	Use:   "pact-mock",
	Short: "Mock provider for consumer-driven contract tests",
	Long: `pact-mock serves pact-style mock providers: consumer tests register
expected interactions, point their code at the mock, and verify that every
interaction was exercised.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a mock server and the admin API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pact-mock version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverAddress, "address", "", "address to serve the mock on, e.g. http://localhost:8080 (overrides SERVER_ADDRESS)")
	serveCmd.Flags().IntVar(&adminPort, "admin-port", 8080, "port for the admin API")
	serveCmd.Flags().StringVar(&consumerName, "consumer", "", "consumer name reported by /__identify__ (overrides CONSUMER_NAME)")
	serveCmd.Flags().StringVar(&providerName, "provider", "", "provider name reported by /__identify__ (overrides PROVIDER_NAME)")
	serveCmd.Flags().StringVar(&interactionsFile, "file", "", "YAML/JSON interactions file to preload (overrides INTERACTIONS_FILE)")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := configuration.NewFromEnv()
	if err != nil {
		return err
	}

	if serverAddress != "" {
		addr, err := url.Parse(serverAddress)
		if err != nil {
			return errors.Wrap(err, "unable to parse --address")
		}
		config.ServerAddress = *addr
	}
	if consumerName != "" {
		config.ConsumerName = consumerName
	}
	if providerName != "" {
		config.ProviderName = providerName
	}
	if interactionsFile != "" {
		config.InteractionsFile = interactionsFile
	}

	if config.ServerAddress.Host != "" {
		log.Infof("starting mock server at %s", config.ServerAddress.String())
		if err := configuration.ConfigureServer(config); err != nil {
			return err
		}
	}

	adminServer := configuration.ServeAdminAPI(adminPort)
	log.Infof("admin API listening on port %d", adminPort)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if err := adminServer.Close(); err != nil {
		log.Error(err)
	}
	configuration.ShutdownAllServers(context.Background())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
