package main

import (
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/gateway"
)

type okResult struct {
	OK bool `json:"ok"`
}

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, refresh and destroy gateway sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.client.CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(struct {
				SessionID gateway.SessionID `json:"session_id"`
			}{id})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keepalive <session>",
		Short: "Refresh a session's idle timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := parseSession(args[0])
			if err != nil {
				return err
			}
			if err := c.client.KeepAlive(cmd.Context(), session); err != nil {
				return err
			}
			return c.print(okResult{OK: true})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "destroy <session>",
		Short: "Destroy a session and every handle attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := parseSession(args[0])
			if err != nil {
				return err
			}
			if err := c.client.Destroy(cmd.Context(), session); err != nil {
				return err
			}
			return c.print(okResult{OK: true})
		},
	})

	return cmd
}

func (c *cli) handleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handle",
		Short: "Attach and detach plugin handles",
	}

	var plugin string
	attach := &cobra.Command{
		Use:   "attach <session>",
		Short: "Attach a plugin to a session and print the handle id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := parseSession(args[0])
			if err != nil {
				return err
			}
			id, err := c.client.AttachPlugin(cmd.Context(), session, plugin)
			if err != nil {
				return err
			}
			return c.print(struct {
				HandleID gateway.HandleID `json:"handle_id"`
			}{id})
		},
	}
	attach.Flags().StringVar(&plugin, "plugin", gateway.VideoRoomPlugin, "Plugin package name")
	cmd.AddCommand(attach)

	cmd.AddCommand(&cobra.Command{
		Use:   "detach <session> <handle>",
		Short: "Detach a plugin handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, handle, err := parseSessionHandle(args)
			if err != nil {
				return err
			}
			if err := c.client.Detach(cmd.Context(), session, handle); err != nil {
				return err
			}
			return c.print(okResult{OK: true})
		},
	})

	return cmd
}
