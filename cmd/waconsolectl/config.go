package main

import (
	"fmt"

	"github.com/matheus3301/waconsole/internal/api"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the runtime configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the messaging and database configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.GetConfig(ctx)
		if err != nil {
			return err
		}
		return printConfig(resp)
	},
}

var messagingCfg domain.MessagingConfig

var configMessagingCmd = &cobra.Command{
	Use:   "messaging",
	Short: "Set the messaging API credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.SetMessagingConfig(ctx, &api.SetMessagingConfigRequest{Config: messagingCfg})
		if err != nil {
			return err
		}
		return printConfig(resp)
	},
}

var databaseCfg domain.DatabaseConfig

var configDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Set the database connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.SetDatabaseConfig(ctx, &api.SetDatabaseConfigRequest{Config: databaseCfg})
		if err != nil {
			return err
		}
		return printConfig(resp)
	},
}

func printConfig(resp *api.ConfigResponse) error {
	if jsonOut {
		return outputJSON(resp)
	}
	m, d := resp.Messaging, resp.Database
	fmt.Printf("Messaging API (%s)\n", configured(m.IsConfigured))
	if m.IsConfigured {
		fmt.Printf("  Token:            %s\n", m.Token)
		fmt.Printf("  Phone number ID:  %s\n", m.PhoneNumberID)
		fmt.Printf("  Business account: %s\n", m.BusinessAccountID)
	}
	fmt.Printf("Database (%s)\n", configured(d.IsConfigured))
	if d.IsConfigured {
		driver := d.Driver
		if driver == "" {
			driver = "postgres"
		}
		fmt.Printf("  Driver:   %s\n", driver)
		fmt.Printf("  Host:     %s:%d\n", d.Host, d.Port)
		fmt.Printf("  User:     %s\n", d.Username)
		fmt.Printf("  Password: %s\n", d.Password)
		fmt.Printf("  Database: %s\n", d.Database)
	}
	return nil
}

func init() {
	f := configMessagingCmd.Flags()
	f.StringVar(&messagingCfg.Token, "token", "", "access token")
	f.StringVar(&messagingCfg.PhoneNumberID, "phone-number-id", "", "sender phone number id")
	f.StringVar(&messagingCfg.BusinessAccountID, "business-account-id", "", "business account id")

	f = configDatabaseCmd.Flags()
	f.StringVar(&databaseCfg.Host, "host", "", "database host")
	f.IntVar(&databaseCfg.Port, "port", domain.DefaultDatabasePort, "database port")
	f.StringVar(&databaseCfg.Username, "user", "", "database user")
	f.StringVar(&databaseCfg.Password, "password", "", "database password")
	f.StringVar(&databaseCfg.Database, "database", "", "database name, or file path for sqlite")
	f.StringVar(&databaseCfg.Driver, "driver", "", "postgres (default) or sqlite")
	f.StringVar(&databaseCfg.SSLMode, "sslmode", "", "postgres sslmode")

	configCmd.AddCommand(configShowCmd, configMessagingCmd, configDatabaseCmd)
	rootCmd.AddCommand(configCmd)
}
