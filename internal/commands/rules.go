package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashmitsharp/homeledger-api/internal/services"
)

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect classification rules",
	}
	cmd.AddCommand(newRulesCheckCommand())
	return cmd
}

func newRulesCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [rules.yaml]",
		Short: "Compile a rules file and list its rules in evaluation order",
		Long:  "Compile a rules file and list its rules in evaluation order. Without a file the built-in rules are checked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			rules, err := services.LoadRuleSet(path)
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}
}

func printRules(out io.Writer, rules *services.RuleSet) error {
	fmt.Fprintf(out, "version %s: %d rules, %d ambiguity groups\n\n", rules.Version, len(rules.Rules), len(rules.Groups))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tOUTCOME")
	for i, rule := range rules.Rules {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, rule.Name, describeOutcome(rule.Outcome))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	keywords := make([]string, 0, len(rules.Groups))
	for keyword := range rules.Groups {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)
	for _, keyword := range keywords {
		g := rules.Groups[keyword]
		fmt.Fprintf(out, "\n%s: smaller of a pair or up to %s -> %s, larger or above -> %s\n", keyword, g.Threshold.StringFixed(2), g.Small, g.Large)
	}
	return nil
}

func describeOutcome(o services.Outcome) string {
	var parts []string
	if o.SetDirection != "" {
		parts = append(parts, "as "+string(o.SetDirection))
	}
	switch {
	case o.Category != "":
		parts = append(parts, "category "+o.Category)
	case o.IncomeSource != "":
		parts = append(parts, "income "+o.IncomeSource)
	case o.Ambiguity != "":
		parts = append(parts, "split "+o.Ambiguity)
	}
	return strings.Join(parts, ", ")
}
