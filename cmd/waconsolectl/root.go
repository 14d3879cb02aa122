package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/waconsole/internal/api"
	"github.com/matheus3301/waconsole/internal/lock"
	"github.com/matheus3301/waconsole/internal/session"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	sessionFlag string
	jsonOut     bool
	timeout     time.Duration

	sessionName string
	conn        *grpc.ClientConn
	client      *api.Client
)

var rootCmd = &cobra.Command{
	Use:           "waconsolectl",
	Short:         "Control a running waconsole daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		sessionName = session.Resolve(sessionFlag)
		if err := session.ValidateName(sessionName); err != nil {
			return err
		}
		if _, held := lock.Holder(session.LockPath(sessionName)); !held {
			return fmt.Errorf("no daemon running for session %q (start waconsoled --session %s)", sessionName, sessionName)
		}
		var err error
		conn, err = api.Dial(session.SocketPath(sessionName))
		if err != nil {
			return fmt.Errorf("cannot connect to daemon for session %q: %w", sessionName, err)
		}
		client = api.NewClient(conn)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if conn != nil {
			return conn.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for unary calls")
}

// callContext bounds a unary call by --timeout.
func callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
