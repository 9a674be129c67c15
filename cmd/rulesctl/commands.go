package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"escrow-sentinel/internal/alerting/engine"
	"escrow-sentinel/internal/alerting/rules"
	policyengine "escrow-sentinel/internal/policy/engine"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rulesctl",
		Short:         "Inspect alert rules and the session drift policy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDefaultsCmd(), newValidateCmd(), newDriftCmd())
	return root
}

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in rule set as a rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := rules.Marshal(engine.DefaultRules())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a rule file loads into the alerting engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := rules.LoadFile(args[0])
			if err != nil {
				return err
			}
			// The engine applies stricter checks than the file decoder.
			if _, err := engine.New(nil, nil, nil, nil, engine.Options{Rules: loaded}); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d rules OK\n", args[0], len(loaded))
			for _, r := range loaded {
				state := "enabled"
				if !r.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(w, "  %-32s %-20s %-8s %s\n", r.ID, r.Condition.Kind(), r.Severity, state)
			}
			return nil
		},
	}
}

func newDriftCmd() *cobra.Command {
	var (
		policyFile string
		in         policyengine.DriftInput
	)
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Evaluate the session drift policy for a fingerprint change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := policyengine.NewOPAEvaluatorFromFile(cmd.Context(), policyFile)
			if err != nil {
				return err
			}
			d, err := ev.EvaluateDrift(cmd.Context(), in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	f := cmd.Flags()
	f.StringVar(&policyFile, "policy", "", "Rego policy file (built-in policy when empty)")
	f.BoolVar(&in.IPChanged, "ip-changed", false, "request IP differs from the session's")
	f.BoolVar(&in.UserAgentChanged, "ua-changed", false, "request user agent differs from the session's")
	f.StringVar(&in.Role, "role", "", "subject role")
	f.Float64Var(&in.SessionAge, "age", 0, "session age in seconds")
	return cmd
}
