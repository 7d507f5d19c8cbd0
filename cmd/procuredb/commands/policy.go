package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marshallshelly/procuredb/cmd/procuredb/output"
	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

var (
	checkTable   string
	checkOp      string
	checkUser    string
	checkOwner   string
	checkAdmin   bool
	checkSystem  bool
	checkChanged []string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect row level policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules of every protected table",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := models.Policies()
		if err != nil {
			return err
		}
		return printPolicies(set)
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one operation against the rules",
	Long: `Evaluate whether a principal may perform an operation on a row.

Examples:
  procuredb policy check --table orders --op select --user $ALICE --owner $BOB
  procuredb policy check --table users --op update --user $ALICE --owner $ALICE --changed is_admin
  procuredb policy check --table social_trends --op insert --system`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := models.Policies()
		if err != nil {
			return err
		}
		return runPolicyCheck(set)
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd, policyCheckCmd)

	f := policyCheckCmd.Flags()
	f.StringVar(&checkTable, "table", "", "Table name (required)")
	f.StringVar(&checkOp, "op", "select", "Operation: select, insert, update or delete")
	f.StringVar(&checkUser, "user", "", "Acting user id; empty means anonymous")
	f.StringVar(&checkOwner, "owner", "", "Owning user id of the row")
	f.BoolVar(&checkAdmin, "admin", false, "Acting user is an admin")
	f.BoolVar(&checkSystem, "system", false, "Act as the trusted system principal")
	f.StringSliceVar(&checkChanged, "changed", nil, "Columns an update writes")
	_ = policyCheckCmd.MarkFlagRequired("table")
}

func printPolicies(set *policy.Set) error {
	type ruleView struct {
		Table        string   `json:"table"`
		Rule         string   `json:"rule"`
		Kind         string   `json:"kind"`
		Operations   []string `json:"operations"`
		Predicate    string   `json:"predicate"`
		AdminColumns []string `json:"admin_columns,omitempty"`
	}
	var views []ruleView
	for _, name := range set.Tables() {
		tp, _ := set.Table(name)
		for _, r := range tp.Rules {
			ops := make([]string, 0, len(r.Operations))
			for _, op := range r.Operations {
				ops = append(ops, string(op))
			}
			if len(ops) == 0 {
				ops = []string{"all"}
			}
			views = append(views, ruleView{
				Table:        name,
				Rule:         r.Name,
				Kind:         r.Kind.String(),
				Operations:   ops,
				Predicate:    set.Predicate(name, r),
				AdminColumns: tp.AdminColumns,
			})
		}
	}
	if jsonOutput {
		return output.JSON(views)
	}
	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{v.Table, v.Rule, v.Kind, strings.Join(v.Operations, ","), v.Predicate}
	}
	output.Table([]string{"TABLE", "RULE", "KIND", "OPERATIONS", "PREDICATE"}, rows)
	return nil
}

func parseOptionalID(flag, v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return id, nil
}

func runPolicyCheck(set *policy.Set) error {
	op := policy.Operation(strings.ToLower(checkOp))
	valid := false
	for _, known := range policy.Operations {
		valid = valid || known == op
	}
	if !valid {
		return fmt.Errorf("--op must be one of select, insert, update, delete")
	}
	if _, ok := set.Table(checkTable); !ok {
		output.Warning("%s has no policy; every operation is denied", checkTable)
	}

	userID, err := parseOptionalID("user", checkUser)
	if err != nil {
		return err
	}
	ownerID, err := parseOptionalID("owner", checkOwner)
	if err != nil {
		return err
	}

	p := policy.Principal{UserID: userID, Admin: checkAdmin && userID != uuid.Nil, System: checkSystem}
	d := set.Evaluate(p, checkTable, op, policy.Target{OwnerID: ownerID, Changed: checkChanged})

	if jsonOutput {
		return output.JSON(map[string]any{
			"principal": p.String(),
			"table":     checkTable,
			"operation": op,
			"allowed":   d.Allowed,
			"rule":      d.Rule,
		})
	}
	if d.Allowed {
		output.Success("%s may %s on %s (rule %s)", p, op, checkTable, d.Rule)
		return nil
	}
	output.Error("%s may not %s on %s", p, op, checkTable)
	return nil
}
