package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/engine/domain"
	"github.com/WessleyAI/geoaudit/engine/jsonld"
	"github.com/WessleyAI/geoaudit/engine/tracking"
	"github.com/WessleyAI/geoaudit/pkg/natsutil"
)

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "analyze <url>",
		Short:   "Audit the structured data of a website",
		Example: "geoaudit analyze https://shop.example.com",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := domain.ValidateURL(args[0])
			if err != nil {
				return err
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			p := pipeline(cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel))
			return printJSON(cmd.OutOrStdout(), p.AnalyzeWebsite(contextOf(cmd), u))
		},
	}
}

func (a *app) analyzePostCmd() *cobra.Command {
	var url, title, contentFile string
	cmd := &cobra.Command{
		Use:   "analyze-post",
		Short: "Audit one article from its URL, title and HTML body",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := domain.ValidateURL(url)
			if err != nil {
				return err
			}
			var content []byte
			if contentFile != "" {
				if content, err = os.ReadFile(contentFile); err != nil {
					return fmt.Errorf("read content: %w", err)
				}
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			p := pipeline(cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel))
			return printJSON(cmd.OutOrStdout(), p.AnalyzePost(contextOf(cmd), u, title, string(content)))
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "post URL")
	cmd.Flags().StringVar(&title, "title", "", "post title")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "file holding the rendered post HTML")
	return cmd
}

// dateLayouts are the accepted --date forms.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (a *app) schemaCmd() *cobra.Command {
	var (
		meta     jsonld.PostMeta
		date     string
		bodyOnly bool
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the Article JSON-LD generated for a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domain.NormalizeDomain(meta.Domain)
			if err != nil {
				return err
			}
			meta.Domain = d
			if meta.PostID <= 0 {
				return domain.NewValidationError("post-id", fmt.Sprint(meta.PostID), domain.ErrInvalidPostID)
			}
			if date != "" {
				if meta.Published, err = parseDate(date); err != nil {
					return err
				}
			}
			g := jsonld.Generate(audit.AuditAnalysis{}, meta)
			out, err := g.ScriptTag()
			if bodyOnly {
				out, err = g.Payload()
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&meta.Domain, "domain", "", "site domain")
	cmd.Flags().IntVar(&meta.PostID, "post-id", 0, "WordPress post id")
	cmd.Flags().StringVar(&meta.Title, "title", "", "post title")
	cmd.Flags().StringVar(&meta.Link, "link", "", "post permalink; defaults to <domain>/?p=<id>")
	cmd.Flags().StringVar(&date, "date", "", "publication date (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&bodyOnly, "json", false, "print the bare JSON instead of the script tag")
	return cmd
}

func (a *app) eventsCmd() *cobra.Command {
	var url, subject string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the tracking events published on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.NATS.URL
			}
			if subject == "" {
				subject = cfg.NATS.Subject
			}
			if url == "" {
				return errors.New("no NATS url: set NATS_URL or pass --nats")
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			nc, err := natsutil.Connect(url, "geoaudit-cli", logger)
			if err != nil {
				return err
			}
			defer nc.Close()

			events := make(chan tracking.Event, 64)
			sub, err := natsutil.Subscribe(nc, subject, func(_ context.Context, ev tracking.Event) {
				select {
				case events <- ev:
				default:
					logger.Warn("dropping event, output is behind", "name", ev.Name)
				}
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			if err := nc.Flush(); err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			logger.Info("listening", "subject", subject)

			ctx := contextOf(cmd)
			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					fmt.Fprintf(out, "%s %-26s user=%s target=%s\n", ev.At.Format(time.RFC3339), ev.Name, ev.User, ev.Target)
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "nats", "", "NATS url; defaults to the configured one")
	cmd.Flags().StringVar(&subject, "subject", "", "subject to tail; defaults to the configured one")
	return cmd
}
