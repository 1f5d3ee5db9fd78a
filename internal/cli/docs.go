// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// docs.go - Document server handler.
//
// Examples:
//   bridgechat docs serve
//   bridgechat docs serve --addr 0.0.0.0:8088 --db /srv/ship/documents.db
//   bridgechat docs show manuals me-4

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/bridgechat/internal/docview"
	"go.uber.org/zap"
)

// HandleDocs routes docs subcommands.
func HandleDocs(ctx context.Context, args Args) error {
	app, err := Boot(ctx, args, BootOptions{WithoutCore: true})
	if err != nil {
		return err
	}
	defer app.Close()

	dbPath := args.Sub.FlagOrDefault("db", app.Config.Docs.Database)

	switch sub := args.Sub.Subcommand(); sub {
	case "serve", "":
		return docsServe(ctx, app, dbPath, args.Sub.FlagOrDefault("addr", app.Config.Docs.ListenAddr))
	case "show":
		table, id := args.Sub.Positional(1), args.Sub.Positional(2)
		if table == "" || id == "" {
			return ErrMissingArgument("table and id", "bridgechat docs show procedures fire-01")
		}
		return docsShow(ctx, dbPath, table, id, args.JSON)
	default:
		return &UsageError{
			Field:   "docs subcommand",
			Value:   sub,
			Reason:  "expected serve or show",
			Example: "bridgechat docs serve",
		}
	}
}

func docsServe(ctx context.Context, app *App, dbPath, addr string) error {
	lib, err := docview.OpenLibrary(dbPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	srv := docview.NewServer(lib, docview.Options{RateLimit: app.Config.Docs.RateLimit}, app.Logger)

	fmt.Fprintln(stdout, successStyle.Render("Document server on http://"+addr))
	fmt.Fprintln(stdout, dimStyle.Render("Database "+dbPath+" | Ctrl+C to stop"))
	app.Logger.Info("document server starting", zap.String("addr", addr), zap.String("db", dbPath))

	err = srv.ListenAndServe(ctx, addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func docsShow(ctx context.Context, dbPath, table, id string, jsonMode bool) error {
	lib, err := docview.OpenLibrary(dbPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	doc, err := lib.Find(ctx, table, id)
	switch {
	case errors.Is(err, docview.ErrNotFound):
		return &NotFoundError{Resource: table, ID: id}
	case errors.Is(err, docview.ErrUnknownTable), errors.Is(err, docview.ErrInvalidID):
		return &UsageError{Field: "document", Value: table + "/" + id, Reason: err.Error()}
	case err != nil:
		return err
	}

	if jsonMode {
		return NewJSONResponse("docs show", doc).Print()
	}
	fmt.Fprintln(stdout, titleStyle.Render(doc.Title))
	fmt.Fprintln(stdout, dimStyle.Render(doc.Table+"/"+doc.ID))
	for _, f := range doc.Fields {
		fmt.Fprintln(stdout, labelled(f.Name, f.Value))
	}
	return nil
}
