package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

var openInfo protocol.OrderInfo

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new support ticket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session, err := newClientSession(cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		resp, err := session.CreateTicket(cmd.Context(), openInfo)
		if err != nil {
			return fmt.Errorf("open ticket: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ticket %s opened (%s)\n", resp.OrderNumber, ticket.ChannelName(resp.OrderNumber))
		fmt.Fprintf(cmd.OutOrStdout(), "join with: ticketdesk chat %s\n", resp.OrderNumber)
		return nil
	},
}

func init() {
	flags := openCmd.Flags()
	flags.StringVar(&openInfo.OrderNumber, "order", "", "order number, generated when empty")
	flags.StringVar(&openInfo.ProjectName, "project", "", "project name")
	flags.StringVar(&openInfo.Email, "email", "", "contact email for the confirmation")
	flags.StringVar(&openInfo.Details, "details", "", "request details")
	flags.StringVar(&openInfo.Type, "type", "", "package id or \"quote\"")
}
