package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// NotifyCmd implements the 'notify' command: it sends the webhook and email
// notifications of an existing build.
type NotifyCmd struct {
	VersionID int64 `name:"version-id" required:"" help:"Version of the build"`
	BuildID   int64 `name:"build-id" required:"" help:"Build to report"`
}

func (n *NotifyCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{eager: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.notifier.SendNotifications(ctx, n.VersionID, n.BuildID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Notifications sent for build %d\n", n.BuildID)
	a.printOutbox(g.out())
	return nil
}

// printOutbox writes the messages captured by the outbox mail backend.
func (a *app) printOutbox(w io.Writer) {
	if a.outbox == nil {
		return
	}
	for _, msg := range a.outbox.Messages() {
		_, _ = fmt.Fprintf(w, "To: %s\nSubject: %s\n\n%s\n", strings.Join(msg.To, ", "), msg.Subject, msg.Text)
	}
}
