package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashmitsharp/homeledger-api/internal/models"
	"github.com/ashmitsharp/homeledger-api/internal/services"
)

func newPreviewCommand() *cobra.Command {
	var accountID int64

	cmd := &cobra.Command{
		Use:   "preview <statement.csv|statement.xlsx>",
		Short: "Parse and classify a statement without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			importer, err := newImporter(s)
			if err != nil {
				return err
			}
			preview, err := previewFile(cmd.Context(), s, importer, args[0], optionalAccount(accountID))
			if err != nil {
				return err
			}
			return printPreview(cmd.OutOrStdout(), preview)
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "bank account id the statement belongs to")
	return cmd
}

func newImportCommand() *cobra.Command {
	var accountID int64
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <statement.csv|statement.xlsx>",
		Short: "Import every classified row of a statement",
		Long: "Import every classified row of a statement. Rows no rule classified and possible " +
			"duplicates are left out; review those through the API. Without --yes this is a dry run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			importer, err := newImporter(s)
			if err != nil {
				return err
			}
			account := optionalAccount(accountID)
			preview, err := previewFile(cmd.Context(), s, importer, args[0], account)
			if err != nil {
				return err
			}
			if err := printPreview(cmd.OutOrStdout(), preview); err != nil {
				return err
			}

			req := services.CommitRequest{
				Filename:      preview.Filename,
				BankAccountID: account,
				Rows:          acceptClassified(preview.Rows),
			}
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "\ndry run: %d of %d rows would be imported, pass --yes to commit\n",
					acceptedCount(req.Rows), len(req.Rows))
				return nil
			}

			summary, err := importer.Commit(cmd.Context(), req)
			var reviewErr *services.ReviewError
			if errors.As(err, &reviewErr) {
				s.log.Error().Interface("rows", reviewErr.Rows).Msg("rows need review")
				return errors.New("some rows need review, nothing was imported")
			}
			if err != nil {
				return err
			}

			s.log.Info().
				Int("expenses", summary.ExpensesCreated).
				Int("incomes", summary.IncomesCreated).
				Int("duplicates", summary.DuplicatesSkipped).
				Msg("import committed")
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", summary.Message)
			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "bank account id the statement belongs to")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "commit the classified rows")
	return cmd
}

func newImporter(s *session) (*services.Importer, error) {
	rules, err := services.LoadRuleSet(s.cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	categorizer := services.NewCategorizer(rules, s.cfg.RulesFile)
	return services.NewImporter(s.store, services.NewParser(s.cfg.DefaultLocation), categorizer), nil
}

func previewFile(ctx context.Context, s *session, importer *services.Importer, path string, accountID *int64) (*services.PreviewResult, error) {
	validator := services.NewFileValidator(s.cfg.MaxUploadBytes)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	filename := filepath.Base(path)
	result, data, err := validator.ValidateFile(f, filename, "")
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	return importer.Preview(ctx, bytes.NewReader(data), filename, accountID)
}

func optionalAccount(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// acceptClassified marks every row that still needs a human decision as skipped
func acceptClassified(rows []services.ReviewRow) []services.ReviewRow {
	out := make([]services.ReviewRow, len(rows))
	for i, row := range rows {
		classified := row.CategoryID != nil || row.WithholdingPayout
		if row.EntryType == models.DirectionIncome {
			classified = row.Source != ""
		}
		row.Skip = row.PossibleDuplicate || !classified
		out[i] = row
	}
	return out
}

func acceptedCount(rows []services.ReviewRow) int {
	n := 0
	for _, row := range rows {
		if !row.Skip {
			n++
		}
	}
	return n
}

func printPreview(out io.Writer, p *services.PreviewResult) error {
	fmt.Fprintf(out, "%s: %d rows, %d classified (%.1f%%), %d possible duplicates, rules %s\n",
		p.Filename, p.Stats.TotalRows, p.Stats.Categorized, p.Stats.AccuracyPercent, p.Stats.PossibleDuplicates, p.RulesVersion)
	if p.Discarded > 0 {
		fmt.Fprintf(out, "%d rows could not be read and were dropped\n", p.Discarded)
	}
	for _, name := range p.MissingCategories {
		fmt.Fprintf(out, "missing category: %s\n", name)
	}
	for _, warning := range p.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tDESCRIPTION\tAMOUNT\tTYPE\tCLASSIFIED AS\t")
	for _, row := range p.Rows {
		label := row.CategoryName
		if row.EntryType == models.DirectionIncome {
			label = row.Source
		}
		if label == "" && row.WithholdingPayout {
			label = "(withholding payout)"
		}
		if label == "" {
			label = "-"
		}
		if row.PossibleDuplicate {
			label += " [duplicate]"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			row.Index, row.Date, row.VendorName, row.Amount.StringFixed(2), row.EntryType, label)
	}
	return w.Flush()
}
