// Package kascmd carries direct hosting API checks, independent of the
// landlord database.
package kascmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediamatex/lexarbitra-vue/platform/go/kas"
	platformlogging "github.com/mediamatex/lexarbitra-vue/platform/go/logging"
)

// Command groups the KAS API helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kas",
		Short: "KAS hosting API utilities (test, list)",
	}

	cmd.AddCommand(testCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

type clientFlags struct {
	login    string
	password string
	endpoint string
}

func registerClientFlags(c *cobra.Command, f *clientFlags) {
	c.Flags().StringVar(&f.login, "login", os.Getenv("KAS_LOGIN"), "KAS account login")
	c.Flags().StringVar(&f.password, "password", os.Getenv("KAS_PASSWORD"), "KAS account password")
	c.Flags().StringVar(&f.endpoint, "endpoint", os.Getenv("KAS_ENDPOINT"), "KAS SOAP endpoint override")
}

func buildClient(f clientFlags) (*kas.Client, error) {
	if f.login == "" || f.password == "" {
		return nil, fmt.Errorf("--login and --password (or KAS_LOGIN/KAS_PASSWORD) are required")
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: "warn"})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return kas.NewClient(kas.Config{
		Login:    f.login,
		Password: f.password,
		Endpoint: f.endpoint,
		Logger:   logger,
	}), nil
}

func testCommand() *cobra.Command {
	var flags clientFlags

	c := &cobra.Command{
		Use:   "test",
		Short: "Probe the KAS API with the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient(flags)
			if err != nil {
				return err
			}

			if !client.TestConnection(context.Background()) {
				return fmt.Errorf("kas api unreachable or credentials rejected")
			}
			fmt.Println("kas api reachable")
			return nil
		},
	}

	registerClientFlags(c, &flags)
	return c
}

func listCommand() *cobra.Command {
	var flags clientFlags

	c := &cobra.Command{
		Use:   "list [database-login]",
		Short: "List provisioned databases, optionally filtered by login",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient(flags)
			if err != nil {
				return err
			}

			login := ""
			if len(args) == 1 {
				login = args[0]
			}

			raw, err := client.ListDatabases(context.Background(), login)
			if err != nil {
				return err
			}

			var pretty any
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Println(string(raw))
				return nil
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	registerClientFlags(c, &flags)
	return c
}
