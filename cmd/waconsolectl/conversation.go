package main

import (
	"fmt"
	"strings"

	"github.com/matheus3301/waconsole/internal/api"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/spf13/cobra"
)

var (
	searchFlag string
	reloadFlag bool
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts, most recent activity first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		var (
			resp *api.ContactsResponse
			err  error
		)
		if reloadFlag {
			resp, err = client.LoadContacts(ctx)
		} else {
			resp, err = client.ListContacts(ctx, &api.ListContactsRequest{Search: searchFlag})
		}
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		if len(resp.Contacts) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}
		for _, c := range resp.Contacts {
			unread := ""
			if c.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d)", c.UnreadCount)
			}
			fmt.Printf("%-24s %-20s %-10s %s%s\n", c.ID, c.Name, c.LastActivity, preview(c.Contact), unread)
		}
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <contact-id>",
	Short: "Show a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.OpenConversation(ctx, &api.OpenConversationRequest{ContactID: args[0]})
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		if len(resp.Groups) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, g := range resp.Groups {
			fmt.Printf("\n── %s ──\n", g.Header)
			for _, m := range g.Messages {
				fmt.Printf("%s %s %s\n", m.Time, direction(m.Status), m.Content)
				for _, a := range m.Attachments {
					fmt.Printf("      [%s] %s\n", a.Type, attachmentLabel(a))
				}
			}
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <contact-id> <text>...",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext(cmd)
		defer cancel()

		resp, err := client.SendMessage(ctx, &api.SendMessageRequest{
			ContactID: args[0],
			Content:   strings.Join(args[1:], " "),
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return outputJSON(resp)
		}
		fmt.Printf("Sent %s (%s)\n", resp.Message.ID, resp.Message.Status)
		return nil
	},
}

func preview(c domain.Contact) string {
	if c.LastMessage == nil {
		return ""
	}
	text := c.LastMessage.Content
	if text == "" && len(c.LastMessage.Attachments) > 0 {
		text = "[" + string(c.LastMessage.Attachments[0].Type) + "]"
	}
	if r := []rune(text); len(r) > 40 {
		text = string(r[:39]) + "…"
	}
	return text
}

// direction marks outgoing messages with their delivery state.
func direction(s domain.MessageStatus) string {
	switch s {
	case domain.StatusSent:
		return ">  "
	case domain.StatusDelivered:
		return ">> "
	case domain.StatusRead:
		return ">>>"
	default:
		return "<  "
	}
}

func attachmentLabel(a domain.Attachment) string {
	if a.Name != "" {
		return a.Name
	}
	return a.URL
}

func init() {
	contactsCmd.Flags().StringVar(&searchFlag, "search", "", "filter by name or phone number")
	contactsCmd.Flags().BoolVar(&reloadFlag, "reload", false, "reload the contact list from the transport")
	contactsCmd.MarkFlagsMutuallyExclusive("search", "reload")

	rootCmd.AddCommand(contactsCmd, openCmd, sendCmd)
}
