package main

import (
	"fmt"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		fmt.Printf("Session:    %s\n", resp.Session)
		fmt.Printf("Transport:  %s\n", resp.Transport)
		if resp.Link != "" {
			fmt.Printf("Link:       %s\n", resp.Link)
		}
		if resp.PhoneNumber != "" {
			fmt.Printf("Phone:      %s\n", resp.PhoneNumber)
		}
		fmt.Printf("Uptime:     %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
		fmt.Printf("Messaging:  %s\n", configured(resp.MessagingConfigured))
		fmt.Printf("Inbox:      %d contacts, %d messages\n", resp.InboxContacts, resp.InboxMessages)
		fmt.Printf("Cache:      %d contacts, %d messages\n", resp.CachedContacts, resp.CachedMessages)
		printDatabaseStatus(resp.Database, resp.Syncing)
		if s := resp.Schedule; s != nil {
			fmt.Printf("Schedule:   %s (next %s)\n", s.Schedule, s.NextRun.Local().Format(time.DateTime))
			if s.LastError != "" {
				fmt.Printf("            last error: %s\n", s.LastError)
			}
		}
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "db-status",
	Short: "Show database sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.GetDatabaseStatus(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		printDatabaseStatus(resp.Status, resp.Syncing)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the cached contacts and messages to the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.SyncDatabase(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		fmt.Println("Sync complete.")
		printDatabaseStatus(resp.Status, resp.Syncing)
		return nil
	},
}

func printDatabaseStatus(st domain.DatabaseStatus, syncing bool) {
	state := "disconnected"
	if st.IsConnected {
		state = "connected"
	}
	if syncing {
		state += ", syncing"
	}
	fmt.Printf("Database:   %s\n", state)
	if st.LastSync != nil {
		fmt.Printf("Last sync:  %s\n", st.LastSync.Local().Format(time.DateTime))
	}
	if st.Error != "" {
		fmt.Printf("Last error: %s\n", st.Error)
	}
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func init() {
	rootCmd.AddCommand(statusCmd, dbStatusCmd, syncCmd)
}
