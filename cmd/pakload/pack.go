// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pakload/pakload/internal/issue"
	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

// packResult describes one blob written by pack.
type packResult struct {
	id     types.PackageID
	path   string
	stats  content.PackStats
	packed int64
}

// newPackCommand creates `pakload pack`.
func newPackCommand(app *App) *cobra.Command {
	var outDir string
	var jobs int

	packCmd := &cobra.Command{
		Use:   "pack <dir>...",
		Short: "Build package blobs from content directories",
		Long: `Build package blobs from content directories.

Each directory becomes one package named after the directory. Files under
its assets/ and scenes/ sub-directories are stored in a zstd-compressed tar
blob written to <out-dir>/<id><blob_extension>.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFromContext(cmd.Context())
			if outDir == "" {
				outDir = e.cfg.PackagesDir.String()
			}
			results, err := packAll(cmd.Context(), args, outDir, e.cfg.BlobExtension, jobs)
			if err != nil {
				return err
			}
			return printPackResults(app.stdout, results)
		},
	}
	packCmd.Flags().StringVar(&outDir, "out-dir", "", "directory for the blobs (default: packages_dir)")
	packCmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "packages packed in parallel")

	return packCmd
}

// packAll packs every directory concurrently; the first failure cancels
// the remaining work.
func packAll(ctx context.Context, dirs []string, outDir, ext string, jobs int) ([]packResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, newServiceError(fmt.Errorf("create output directory: %w", err), issue.PermissionDeniedId)
	}

	results := make([]packResult, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))

	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id := types.PackageID(filepath.Base(filepath.Clean(dir)))
			if err := id.Validate(); err != nil {
				return err
			}
			res, err := packOne(dir, id, outDir, ext)
			if err != nil {
				return newServiceError(
					issue.NewErrorContext().
						WithOperation("pack package").
						WithResource(dir).
						WithSuggestion("A package directory needs an assets/ or scenes/ sub-directory").
						Wrap(err).
						BuildError(),
					issue.PackFailedId)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b packResult) int { return cmp.Compare(a.id, b.id) })
	return results, nil
}

// packOne writes the blob to a temporary file and renames it into place so
// a watcher never sees a partial blob.
func packOne(dir string, id types.PackageID, outDir, ext string) (packResult, error) {
	path := storage.BlobPath(types.FilesystemPath(outDir), id, ext).String()
	tmp, err := os.CreateTemp(outDir, "."+id.String()+"-*.tmp")
	if err != nil {
		return packResult{}, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	stats, err := content.Pack(dir, tmp)
	if err != nil {
		tmp.Close() //nolint:errcheck // the pack error is reported
		return packResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return packResult{}, err
	}
	info, err := os.Stat(tmp.Name())
	if err != nil {
		return packResult{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return packResult{}, err
	}
	return packResult{id: id, path: path, stats: stats, packed: info.Size()}, nil
}

func printPackResults(w io.Writer, results []packResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tASSETS\tSCENES\tRAW\tPACKED\tBLOB")
	var raw, packed int64
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			r.id, r.stats.Assets, r.stats.Scenes,
			humanize.Bytes(uint64(r.stats.RawBytes)), //nolint:gosec // sizes are non-negative
			humanize.Bytes(uint64(r.packed)),         //nolint:gosec // sizes are non-negative
			r.path)
		raw += r.stats.RawBytes
		packed += r.packed
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s packed %d package(s), %s → %s\n",
		SuccessStyle.Render("✓"), len(results),
		humanize.Bytes(uint64(raw)),    //nolint:gosec // sizes are non-negative
		humanize.Bytes(uint64(packed))) //nolint:gosec // sizes are non-negative
	return nil
}
