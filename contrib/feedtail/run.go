// Package feedtail tails one logical stream to stdout: it opens a scope
// with the petsync client and prints every merged view change as it
// lands. Mostly useful for poking at an environment and for watching
// the fallback behavior when the push channel is cut.
package feedtail

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/pawbase/petsync"
	"github.com/pawbase/petsync/pkg/logger/zero"
)

// Run opens the configured scope and streams view changes to out until
// ctx is canceled.
func Run(ctx context.Context, conf Config, out io.Writer) error {
	if err := conf.Validate(); err != nil {
		return err
	}
	scope, err := conf.Scope()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(conf.LogLevel)
	if err != nil {
		return fmt.Errorf("bad log_level: %w", err)
	}
	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	client, err := petsync.New(petsync.Config{
		BaseURL:      conf.APIBaseURL,
		RealtimeURL:  conf.RealtimeURL,
		Token:        conf.Token,
		LocalUserID:  conf.UserID,
		PollInterval: conf.PollInterval,
		Logger:       zero.New(zl),
	})
	if err != nil {
		return err
	}

	if err := client.Connect(ctx); err != nil {
		// Poll fallback still delivers; keep going degraded.
		zl.Warn().Err(err).Msg("realtime connect failed, tailing on poll fallback")
	}
	defer client.Close(context.Background())

	stream, err := client.Open(ctx, scope)
	if err != nil {
		return err
	}
	defer stream.Close()

	zl.Info().Stringer("scope", scope).Msg("tailing")

	for {
		select {
		case <-ctx.Done():
			return nil
		case view := <-stream.Updates():
			printView(out, view)
		}
	}
}

func printView(out io.Writer, view petsync.View) {
	fmt.Fprintf(out, "-- %d items, %d unread, push %s\n",
		len(view.Items), view.Unread, view.Status)
	for _, it := range view.Items {
		marker := " "
		if it.Pending {
			marker = "?"
		} else if !it.Read {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s %s %s %s\n",
			marker, it.CreatedAt.Format("15:04:05"), it.ID, it.SenderID, string(it.Payload))
	}
}
