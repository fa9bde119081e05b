// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pakload/pakload/internal/issue"
	"github.com/pakload/pakload/pkg/catalog"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

// newCatalogCommand creates the `pakload catalog` command tree.
func newCatalogCommand(app *App) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and rewrite the dependency catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List packages, their locality, direct dependencies and blob size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFromContext(cmd.Context())
			c, err := e.openCatalog()
			if err != nil {
				return err
			}
			return showCatalog(app.stdout, c, e.cfg.PackagesDir, e.cfg.BlobExtension)
		},
	})

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "deps <id>",
		Short: "Print the transitive dependencies of a package in load order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := envFromContext(cmd.Context()).openCatalog()
			if err != nil {
				return err
			}
			return showDeps(app.stdout, c, types.PackageID(args[0]))
		},
	})

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report dependency cycles and references to unknown packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := envFromContext(cmd.Context()).openCatalog()
			if err != nil {
				return err
			}
			return checkCatalog(app.stdout, c)
		},
	})

	var fmtTo, fmtOut string
	fmtCmd := &cobra.Command{
		Use:   "fmt",
		Short: "Rewrite the manifest in canonical form, optionally converting formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFromContext(cmd.Context())
			c, err := e.openCatalog()
			if err != nil {
				return err
			}
			return formatCatalog(app.stdout, c, e.cfg.Manifest.String(), catalog.Format(fmtTo), fmtOut)
		},
	}
	fmtCmd.Flags().StringVar(&fmtTo, "to", "", "output format: cue, json, toml or yaml (default: same as input)")
	fmtCmd.Flags().StringVarP(&fmtOut, "out", "o", "", "output file (default: stdout; use the manifest path to rewrite in place)")
	catalogCmd.AddCommand(fmtCmd)

	return catalogCmd
}

func showCatalog(w io.Writer, c *catalog.Catalog, packagesDir types.FilesystemPath, ext string) error {
	ids := c.AllPackageIDs()
	slices.Sort(ids)

	fmt.Fprintln(w, TitleStyle.Render("Packages"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCAL\tDEPENDENCIES\tBLOB")
	for _, id := range ids {
		deps, _ := c.DirectDependencies(id)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, locality(c, id), joinIDs(deps), blobSize(packagesDir, id, ext))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d packages, %d local, %d remote\n", len(ids), len(c.LocalIDs()), len(c.RemoteIDs()))
	return nil
}

func locality(c *catalog.Catalog, id types.PackageID) string {
	switch {
	case c.IsExplicitLocal(id):
		return "explicit"
	case c.IsLocal(id):
		return "implied"
	default:
		return "remote"
	}
}

func blobSize(dir types.FilesystemPath, id types.PackageID, ext string) string {
	info, err := os.Stat(storage.BlobPath(dir, id, ext).String())
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(info.Size())) //nolint:gosec // file sizes are non-negative
}

func joinIDs(ids []types.PackageID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

func showDeps(w io.Writer, c *catalog.Catalog, id types.PackageID) error {
	deps, err := c.GetAllDependencies(id)
	if err != nil {
		return catalogError(err, id)
	}
	order, err := c.TopologicalOrder(append(deps, id))
	if err != nil {
		return catalogError(err, id)
	}
	for i, dep := range order {
		marker := ""
		if !c.Contains(dep) {
			marker = " " + WarningStyle.Render("(missing)")
		}
		fmt.Fprintf(w, "%3d. %s%s\n", i+1, IDStyle.Render(dep.String()), marker)
	}
	return nil
}

// catalogError maps catalog lookup failures to issue-backed errors.
func catalogError(err error, id types.PackageID) error {
	ae := issue.NewErrorContext().
		WithOperation("resolve dependencies").
		WithResource(id.String()).
		Wrap(err)
	switch {
	case errors.Is(err, catalog.ErrUnknownPackage):
		return newServiceError(ae.WithSuggestion("Run 'pakload catalog show' to list known ids").BuildError(), issue.PackageNotFoundId)
	case errors.Is(err, catalog.ErrCyclicDependency):
		return newServiceError(ae.WithSuggestion("Run 'pakload catalog check' to see every cycle").BuildError(), issue.DependencyCycleId)
	default:
		return ae.BuildError()
	}
}

func checkCatalog(w io.Writer, c *catalog.Catalog) error {
	err := c.Validate()
	if err == nil {
		fmt.Fprintln(w, SuccessStyle.Render("✓")+" catalog is consistent")
		return nil
	}

	problems := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		problems = joined.Unwrap()
	}
	for _, p := range problems {
		fmt.Fprintln(w, ErrorStyle.Render("✗")+" "+p.Error())
	}

	id := issue.ManifestInvalidId
	var cycleErr *catalog.CycleError
	if errors.As(err, &cycleErr) {
		id = issue.DependencyCycleId
	}
	return &ExitError{
		Code: 2,
		Err:  newServiceError(fmt.Errorf("catalog has %d problem(s)", len(problems)), id),
	}
}

func formatCatalog(w io.Writer, c *catalog.Catalog, manifestPath string, to catalog.Format, out string) error {
	if to == "" {
		switch {
		case out != "":
			f, err := catalog.FormatFromPath(out)
			if err != nil {
				return err
			}
			to = f
		default:
			f, err := catalog.FormatFromPath(manifestPath)
			if err != nil {
				return err
			}
			to = f
		}
	}
	if err := to.Validate(); err != nil {
		return err
	}

	m := c.Serialize()
	if out == "" {
		data, err := catalog.Encode(to, m)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if got, err := catalog.FormatFromPath(out); err != nil || got != to {
		return fmt.Errorf("output file %s does not match format %s", filepath.Base(out), to)
	}
	if err := catalog.WriteFile(out, m); err != nil {
		return newServiceError(err, issue.PermissionDeniedId)
	}
	fmt.Fprintf(w, "%s wrote %s\n", SuccessStyle.Render("✓"), out)
	return nil
}
