package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/events"
	"github.com/alfredjeanlab/sgcache/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch [topic]",
	GroupID: "system",
	Short:   "Print mirror, dataset and schema events as they happen",
	Long: `Subscribe to the event bus at events.nats_url and print every event.

The topic defaults to all sgcache events; NATS wildcards are accepted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Events.NATSURL == "" {
			return fmt.Errorf("events.nats_url is unset")
		}
		topic := events.TopicAll
		if len(args) == 1 {
			topic = args[0]
		}

		sub, err := events.NewNATSSubscriber(cfg.Events.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats: disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats: reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return err
		}
		defer cancel()

		logger.Debug("watching", "topic", topic)
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				printEvent(cmd.OutOrStdout(), time.Now(), msg)
			}
		}
	},
}

// printEvent writes one line per event: time, topic and a summary of the
// payload.
func printEvent(w io.Writer, at time.Time, msg events.Message) {
	short := strings.TrimPrefix(msg.Topic, "sgcache.")
	fmt.Fprintf(w, "%s %s %s\n", ui.RenderMuted(at.Format("15:04:05")), ui.RenderOK(short), summarize(msg))
}

func summarize(msg events.Message) string {
	switch msg.Topic {
	case events.TopicEntityCreated, events.TopicEntityUpdated:
		var e events.EntityUpdated
		if err := json.Unmarshal(msg.Data, &e); err == nil {
			return fmt.Sprintf("%s %d (%s)", e.Record.Type(), e.Record.ID(), e.Source)
		}
	case events.TopicEntityDeleted:
		var e events.EntityDeleted
		if err := json.Unmarshal(msg.Data, &e); err == nil {
			return fmt.Sprintf("%s %d (%s)", e.Type, e.ID, e.Source)
		}
	case events.TopicDatasetRebuilt:
		var e events.DatasetRebuilt
		if err := json.Unmarshal(msg.Data, &e); err == nil {
			total := 0
			for _, n := range e.Records {
				total += n
			}
			return fmt.Sprintf("%s: %d types, %d records", e.Sample, len(e.Records), total)
		}
	case events.TopicSchemaUpdated:
		var e events.SchemaUpdated
		if err := json.Unmarshal(msg.Data, &e); err == nil {
			return fmt.Sprintf("%s: %d types", e.Tree, len(e.Types))
		}
	}
	return string(msg.Data)
}
