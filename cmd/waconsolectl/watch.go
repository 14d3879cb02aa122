package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/waconsole/internal/api"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var namespaceFlag string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stream, err := client.WatchEvents(cmd.Context(), &api.WatchEventsRequest{Namespace: namespaceFlag})
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if errors.Is(err, io.EOF) || grpcstatus.Code(err) == codes.Canceled {
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOut {
				if err := outputJSON(evt); err != nil {
					return err
				}
				continue
			}
			at := time.UnixMilli(evt.OccurredAtUnixMs).Local().Format(time.TimeOnly)
			fmt.Printf("%s %-28s %s\n", at, evt.Kind, evt.Payload)
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&namespaceFlag, "namespace", "", "event kind prefix, e.g. conversation. or sync.")
	rootCmd.AddCommand(watchCmd)
}
