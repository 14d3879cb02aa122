package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/waconsole/internal/wa"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Link this session as a device by scanning a QR code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stream, err := client.StartAuth(cmd.Context())
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			switch evt.Type {
			case wa.AuthEventQRCode:
				fmt.Print("\033[H\033[2J")
				fmt.Println("Scan with WhatsApp > Linked devices > Link a device:")
				fmt.Println()
				fmt.Print(renderQR(evt.QRCode))
			case wa.AuthEventAuthenticated:
				fmt.Println("Device linked.")
				return nil
			default:
				fmt.Printf("%s: %s\n", evt.Type, evt.Message)
			}
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Unlink the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.Logout(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		fmt.Println(resp.Message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd, logoutCmd)
}
