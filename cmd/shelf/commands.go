package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shelf/internal/domain"
	"shelf/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <text>",
	Short: "Save a link, book or note and print the stored item",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		item, err := p.ingest.Ingest(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		// Wait for AI tags so they show up in the output.
		p.queue.Close()
		if item, err = p.repo.GetItem(ctx, item.ID); err != nil {
			return err
		}
		return printYAML(cmd, item)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Run the metadata extractors for a URL without saving anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		router, browser := newRouter(nil)
		if browser != nil {
			defer browser.Close()
		}
		return printYAML(cmd, router.Extract(cmd.Context(), args[0]))
	},
}

var bookAuthor string

var bookCmd = &cobra.Command{
	Use:   "book <title>",
	Short: "Look up a book in Google Books",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		md := newBooks(nil).SearchBook(cmd.Context(), strings.Join(args, " "), domain.Str(bookAuthor))
		if md == nil {
			return errors.New("no matching book found")
		}
		return printYAML(cmd, md)
	},
}

var (
	listStatus string
	listType   string
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved items, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := storage.ListFilter{Limit: listLimit, Offset: listOffset}
		if listStatus != "" {
			s := domain.ItemStatus(listStatus)
			if !s.Valid() {
				return fmt.Errorf("invalid status %q", listStatus)
			}
			filter.Status = &s
		}
		if listType != "" {
			t := domain.ContentType(listType)
			if !t.Valid() {
				return fmt.Errorf("invalid type %q", listType)
			}
			filter.Type = &t
		}

		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()

		items, err := repo.ListItems(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return printYAML(cmd, items)
	},
}

var (
	updateStatus string
	updateTitle  string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change an item's reading status or title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := itemUpdate(updateStatus, updateTitle)
		if err != nil {
			return err
		}

		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()

		item, err := applyUpdate(cmd.Context(), repo, args[0], upd)
		if err != nil {
			return err
		}
		return printYAML(cmd, item)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.DeleteItem(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("item %q: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

// itemUpdate builds the user-editable part of an update. Empty values are
// left unchanged.
func itemUpdate(status, title string) (domain.ItemUpdate, error) {
	var upd domain.ItemUpdate
	if status != "" {
		s := domain.ItemStatus(status)
		if !s.Valid() {
			return upd, fmt.Errorf("invalid status %q", status)
		}
		upd.Status = &s
	}
	if title = strings.TrimSpace(title); title != "" {
		upd.Title = &title
	}
	if upd.Status == nil && upd.Title == nil {
		return upd, errors.New("nothing to update: pass --status or --title")
	}
	return upd, nil
}

func applyUpdate(ctx context.Context, repo storage.Repository, id string, upd domain.ItemUpdate) (*domain.Item, error) {
	if err := repo.UpdateItem(ctx, id, upd); err != nil {
		return nil, fmt.Errorf("item %q: %w", id, err)
	}
	return repo.GetItem(ctx, id)
}

func init() {
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New reading status (inbox, queued, reading, done, archived)")
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title")

	bookCmd.Flags().StringVar(&bookAuthor, "author", "", "Author to narrow the search")

	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by reading status (inbox, queued, reading, done, archived)")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by content type (article, video, post, podcast, book, note)")
	listCmd.Flags().IntVar(&listLimit, "limit", storage.DefaultListLimit, "Maximum number of items (1-100)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of items to skip")
}
