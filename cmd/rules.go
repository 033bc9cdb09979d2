package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/trustscore/internal/model"
)

var rulesListAll bool

// rulesFile is the YAML layout read by "rules import". Rules are active
// unless they say otherwise.
type rulesFile struct {
	Blacklist    []blacklistEntry `yaml:"blacklist"`
	ContentTypes []contentEntry   `yaml:"content_types"`
}

type blacklistEntry model.BlacklistRule

func (e *blacklistEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain model.BlacklistRule
	p := plain{Active: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = blacklistEntry(p)
	return nil
}

type contentEntry model.ContentTypeRule

func (e *contentEntry) UnmarshalYAML(n *yaml.Node) error {
	type plain model.ContentTypeRule
	p := plain{Active: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = contentEntry(p)
	return nil
}

// parseRules decodes and validates a rules file.
func parseRules(r io.Reader) ([]model.BlacklistRule, []model.ContentTypeRule, error) {
	var f rulesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, nil, eris.Wrap(err, "rules: decode yaml")
	}

	bl := make([]model.BlacklistRule, 0, len(f.Blacklist))
	for i, e := range f.Blacklist {
		rule := model.BlacklistRule(e)
		if err := rule.Validate(); err != nil {
			return nil, nil, eris.Wrapf(err, "rules: blacklist entry %d", i)
		}
		bl = append(bl, rule)
	}
	ct := make([]model.ContentTypeRule, 0, len(f.ContentTypes))
	for i, e := range f.ContentTypes {
		rule := model.ContentTypeRule(e)
		if err := rule.Validate(); err != nil {
			return nil, nil, eris.Wrapf(err, "rules: content type entry %d", i)
		}
		ct = append(ct, rule)
	}
	return bl, ct, nil
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage blacklist and content-type rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Upsert rules from a YAML file",
	Long:  "Upserts rules from a YAML file with top-level blacklist and content_types lists. Run recompute afterwards so existing scores pick up the change.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "rules: open file")
		}
		defer f.Close() //nolint:errcheck

		bl, ct, err := parseRules(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportRules(ctx, bl, ct)
		if err != nil {
			return eris.Wrap(err, "rules: import")
		}

		zap.L().Info("rules imported",
			zap.Int("written", n),
			zap.Int("blacklist", len(bl)),
			zap.Int("content_types", len(ct)),
			zap.String("file", args[0]),
		)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		bl, err := st.ListBlacklistRules(ctx, !rulesListAll)
		if err != nil {
			return err
		}
		ct, err := st.ListContentTypeRules(ctx, !rulesListAll)
		if err != nil {
			return err
		}
		formatRules(cmd.OutOrStdout(), bl, ct)
		return nil
	},
}

func formatRules(out io.Writer, bl []model.BlacklistRule, ct []model.ContentTypeRule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATTERN\tCATEGORY\tSEVERITY\tACTIVE")
	_, _ = fmt.Fprintln(w, "-------\t--------\t--------\t------")
	for _, r := range bl {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", r.Pattern, r.Category, r.Severity, r.Active)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tTYPE\tPATTERN\tMODIFIER\tMIN RATINGS\tPRIORITY\tACTIVE")
	_, _ = fmt.Fprintln(w, "------\t----\t-------\t--------\t-----------\t--------\t------")
	for _, r := range ct {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%+.1f\t%d\t%d\t%t\n",
			r.Domain, r.ContentType, r.URLPattern, r.TrustModifier, r.MinRatingsRequired, r.Priority, r.Active)
	}
	_ = w.Flush()
}

func init() {
	rulesListCmd.Flags().BoolVar(&rulesListAll, "all", false, "include inactive rules")
	rulesCmd.AddCommand(rulesImportCmd, rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}
