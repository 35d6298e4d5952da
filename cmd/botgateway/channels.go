package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"botgateway/internal/domain"
	"botgateway/internal/metrics"

	"github.com/spf13/cobra"
)

func channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage connected channels",
	}
	cmd.AddCommand(channelAddCmd(), channelListCmd(), channelCheckCmd(), channelRemoveCmd(), channelEventsCmd())
	return cmd
}

func channelAddCmd() *cobra.Command {
	var (
		id, name, typ string
		creds         map[string]string
		skipCheck     bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a channel",
		Example: `  botgateway channel add --type whatsapp --name support \
    --cred access_token=EAAB... --cred phone_number_id=1234 --cred waba_id=5678`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ch := &domain.Channel{
				ID:          id,
				Type:        domain.ChannelType(typ),
				Name:        name,
				Credentials: creds,
				Status:      domain.StatusActive,
			}
			if !ch.Type.Valid() {
				return fmt.Errorf("unknown channel type %q (want one of %v)", typ, domain.ChannelTypes())
			}

			if !skipCheck {
				gw, err := buildGateway(cfg, st, metrics.NewGateway(nil))
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.Timeout())
				defer cancel()
				ok, err := gw.Initialize(ctx, ch)
				if err != nil || !ok {
					ch.Status = domain.StatusError
					logger.Warn("credential check failed, saving with error status", "type", ch.Type, "err", err)
				}
			}

			if err := st.SaveChannel(cmd.Context(), ch); err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", ch.ID, ch.Type, ch.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "channel id (generated when empty)")
	cmd.Flags().StringVar(&typ, "type", "", "facebook | instagram | whatsapp | discord")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringToStringVar(&creds, "cred", nil, "credential key=value (repeatable)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "do not validate credentials against the platform")
	cmd.MarkFlagRequired("type")
	return cmd
}

func channelListCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			channels, err := st.ListChannels(cmd.Context(), domain.ChannelType(typ))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNAME\tSTATUS\tUPDATED")
			for _, ch := range channels {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ch.ID, ch.Type, ch.Name, ch.Status, ch.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only list channels of this type")
	return cmd
}

func channelCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [id]",
		Short: "Validate a channel's credentials against its platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ch, err := st.GetChannel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			gw, err := buildGateway(cfg, st, metrics.NewGateway(nil))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTP.Timeout())
			defer cancel()

			ok, err := gw.Initialize(ctx, ch)
			status := domain.StatusActive
			if err != nil || !ok {
				status = domain.StatusError
			}
			if ch.Status != status {
				ch.Status = status
				if err := st.SaveChannel(cmd.Context(), ch); err != nil {
					return err
				}
			}
			if status == domain.StatusError {
				if err == nil {
					err = domain.ErrInvalidCredentials
				}
				return fmt.Errorf("channel %s: %w", ch.ID, err)
			}
			fmt.Printf("channel %s (%s): credentials valid\n", ch.ID, ch.Type)
			return nil
		},
	}
}

func channelRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Delete a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.DeleteChannel(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, domain.ErrChannelNotFound) {
					return fmt.Errorf("channel %s not found", args[0])
				}
				return err
			}
			logger.Info("channel removed", "channel_id", args[0])
			return nil
		},
	}
}

func channelEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events [id]",
		Short: "Show the most recent inbound events of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.ListEvents(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tFROM\tCONTENT")
			for _, ev := range events {
				content := ev.Content
				if content == "" {
					content = ev.Payload
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Timestamp.Format(time.RFC3339), ev.Type, ev.From.ID, content)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func sendCmd() *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "send [channel-id] [to] [text]",
		Short: "Send a text message through a channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := loadConfig()
			if err != nil {
				return err
			}
			defer closer.Close()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			gw, err := buildGateway(cfg, st, metrics.NewGateway(nil))
			if err != nil {
				return err
			}
			res, err := gw.SendToChannel(cmd.Context(), args[0], domain.OutboundMessage{
				To:      args[1],
				Body:    domain.TextBody{Text: args[2]},
				Options: domain.SendOptions{ReplyToID: replyTo},
			})
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("platform rejected message: %s", res.Error)
			}
			fmt.Println(res.MessageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "platform message id to reply to")
	return cmd
}
