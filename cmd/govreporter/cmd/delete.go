package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/ingest"
	"github.com/govreporter/govreporter/internal/output"
	"github.com/govreporter/govreporter/internal/store"
)

// deleteOptions holds the delete command flags.
type deleteOptions struct {
	collection string
	documentID string
	all        bool
	yes        bool
}

// validate rejects flag combinations before any client is built.
func (o *deleteOptions) validate() error {
	if o.all && o.collection != "" {
		return gverrors.ValidationError("--all cannot be combined with --collection", nil)
	}
	if o.all && o.documentID != "" {
		return gverrors.ValidationError("--document-id cannot be combined with --all", nil)
	}
	if o.documentID != "" && o.collection == "" {
		return gverrors.ValidationError("--document-id requires --collection", nil)
	}
	if !o.all && o.collection == "" {
		return gverrors.ValidationError("specify --collection or --all", nil).
			WithSuggestion("Run 'govreporter info collections' to list collections.")
	}
	return nil
}

func newDeleteCmd() *cobra.Command {
	opts := &deleteOptions{}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete collections or single documents from Qdrant",
		Long: `Delete vector data and the matching ingestion progress.

Deleting a collection also removes its progress database, so the next
ingestion starts fresh. Deleting a single document removes every chunk
stored for it but keeps the collection.

Examples:
  govreporter delete --collection scotus
  govreporter delete --collection eo --document-id 2025-01759
  govreporter delete --all --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.collection, "collection", "", "Collection to delete: scotus, eo or full name")
	cmd.Flags().StringVar(&opts.documentID, "document-id", "", "Delete only this document's chunks")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Delete all govreporter collections")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, opts *deleteOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore("", logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	out := output.New(cmd.OutOrStdout())

	if opts.documentID != "" {
		return deleteDocument(ctx, cmd, out, vectors, opts)
	}
	return deleteCollections(ctx, cmd, out, vectors, opts)
}

// deleteDocument removes every chunk of one source document.
func deleteDocument(ctx context.Context, cmd *cobra.Command, out *output.Writer, vectors *store.Client, opts *deleteOptions) error {
	collection, _, err := collectionTarget(opts.collection)
	if err != nil {
		return err
	}

	out.Warningf("About to delete all chunks of document %s from %s.", opts.documentID, collection)
	if !opts.yes && !confirm(cmd, "Are you sure?") {
		out.Status("", "Deletion cancelled.")
		return nil
	}

	if err := vectors.DeleteDocumentChunks(ctx, collection, opts.documentID); err != nil {
		return err
	}
	out.Successf("Deleted document %s from %s.", opts.documentID, collection)
	return nil
}

// deleteTarget pairs a collection with its progress document type.
type deleteTarget struct {
	collection string
	docType    string
}

// deleteCollections drops whole collections and their progress
// databases.
func deleteCollections(ctx context.Context, cmd *cobra.Command, out *output.Writer, vectors *store.Client, opts *deleteOptions) error {
	var targets []deleteTarget
	if opts.all {
		targets = []deleteTarget{
			{ingest.ScotusCollection, "scotus"},
			{ingest.EOCollection, "executive_orders"},
		}
	} else {
		collection, docType, err := collectionTarget(opts.collection)
		if err != nil {
			return err
		}
		targets = []deleteTarget{{collection, docType}}
	}

	out.Status("", "The following will be deleted:")
	var existing []deleteTarget
	for _, tg := range targets {
		info, err := vectors.GetCollectionInfo(ctx, tg.collection)
		if err != nil {
			return err
		}
		if info == nil {
			out.Statusf("", "  - %s (not found, skipping)", tg.collection)
			continue
		}
		out.Statusf("", "  - %s (%d points)", tg.collection, info.PointsCount)
		existing = append(existing, tg)
	}
	for _, tg := range targets {
		if path := cfg.ProgressDBPath(tg.docType); fileExists(path) {
			out.Statusf("", "  - %s", path)
		}
	}

	if len(existing) == 0 {
		out.Newline()
		out.Status("", "No collections to delete.")
		removeProgressDBs(targets, out)
		return nil
	}

	out.Newline()
	out.Warning("This action cannot be undone!")
	if !opts.yes && !confirm(cmd, "Delete these collections?") {
		out.Status("", "Deletion cancelled.")
		return nil
	}

	deleted := 0
	for _, tg := range existing {
		if err := vectors.DeleteCollection(ctx, tg.collection); err != nil {
			return err
		}
		deleted++
	}
	removeProgressDBs(targets, out)

	out.Successf("Deleted %d collection(s).", deleted)
	out.Newline()
	out.Status("", "Re-ingest with:")
	out.Status("", "  govreporter ingest scotus --start-date <date> --end-date <date>")
	out.Status("", "  govreporter ingest eo --start-date <date> --end-date <date>")
	return nil
}

// removeProgressDBs deletes tracker databases and their lock files.
// Missing files are fine.
func removeProgressDBs(targets []deleteTarget, out *output.Writer) {
	for _, tg := range targets {
		path := cfg.ProgressDBPath(tg.docType)
		if err := os.Remove(path); err == nil {
			out.Statusf("", "Removed progress database %s", path)
		} else if !os.IsNotExist(err) {
			out.Warningf("Could not remove %s: %v", path, err)
		}
		_ = os.Remove(path + ".lock")
	}
}

// confirm reads a y/N answer from the command's stdin.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
