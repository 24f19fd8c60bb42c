package commands

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"text/tabwriter"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

// HookCmd groups the notification hook commands.
type HookCmd struct {
	AddEmail HookAddEmailCmd `cmd:"" name:"add-email" help:"Subscribe an email address to a project's builds"`
	AddWeb   HookAddWebCmd   `cmd:"" name:"add-web" help:"Register a webhook for a project's builds"`
	List     HookListCmd     `cmd:"" help:"List a project's hooks"`
}

// HookAddEmailCmd implements 'hook add-email'.
type HookAddEmailCmd struct {
	Project string `arg:"" help:"Project ID or slug"`
	Email   string `arg:"" help:"Recipient address"`
}

func (c *HookAddEmailCmd) Run(g *Global, root *CLI) error {
	addr, err := mail.ParseAddress(c.Email)
	if err != nil {
		return dherrors.ValidationFailed("email", err.Error())
	}
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p, err := lookupProject(ctx, store, c.Project)
		if err != nil {
			return err
		}
		h := &models.EmailHook{ProjectID: p.ID, Email: addr.Address}
		if err := store.CreateEmailHook(ctx, h); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Added email hook %d for %s\n", h.ID, p.Slug)
		return nil
	})
}

// HookAddWebCmd implements 'hook add-web'.
type HookAddWebCmd struct {
	Project string `arg:"" help:"Project ID or slug"`
	URL     string `arg:"" name:"url" help:"Endpoint receiving the build payload"`
}

func (c *HookAddWebCmd) Run(g *Global, root *CLI) error {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dherrors.ValidationFailed("url", "must be an absolute http(s) URL")
	}
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p, err := lookupProject(ctx, store, c.Project)
		if err != nil {
			return err
		}
		h := &models.WebHook{ProjectID: p.ID, URL: c.URL}
		if err := store.CreateWebHook(ctx, h); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Added webhook %d for %s\n", h.ID, p.Slug)
		return nil
	})
}

// HookListCmd implements 'hook list'.
type HookListCmd struct {
	Project string `arg:"" help:"Project ID or slug"`
}

func (c *HookListCmd) Run(g *Global, root *CLI) error {
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p, err := lookupProject(ctx, store, c.Project)
		if err != nil {
			return err
		}
		emails, err := store.ListEmailHooks(ctx, p.ID)
		if err != nil {
			return err
		}
		webs, err := store.ListWebHooks(ctx, p.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tTYPE\tTARGET")
		for _, h := range emails {
			_, _ = fmt.Fprintf(w, "%d\temail\t%s\n", h.ID, h.Email)
		}
		for _, h := range webs {
			_, _ = fmt.Fprintf(w, "%d\twebhook\t%s\n", h.ID, h.URL)
		}
		return w.Flush()
	})
}
