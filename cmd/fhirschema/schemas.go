package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gofhir/fhirschema/schema"
)

func newSchemasCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List the registered schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := a.codec.Registry()
			names := reg.Resources()
			if all {
				names = reg.Types()
			}
			if a.cfg.Output == "json" {
				data, err := json.MarshalIndent(names, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include data types and backbone elements")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "describe <type>",
		Short:   "Show the members of a schema",
		Example: "  fhirschema describe Patient\n  fhirschema describe Patient.Contact",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := a.codec.Registry().Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown type %q", args[0])
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s (%s)\n", s.Name, s.Category)
			if s.Base != "" {
				fmt.Fprintf(w, "Base: %s\n", s.Base)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "MEMBER\tTYPE\tCARD\tBINDING")
			for _, m := range s.Members() {
				if m.Group != nil {
					fmt.Fprintf(w, "%s[x]\t%s\t%s\t\n", m.Group.Name, strings.Join(m.Group.Types(), "|"), m.Group.Card)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Field.Name, fieldType(m.Field), m.Field.Card, bindingLabel(m.Field.Binding))
			}
			for _, inv := range s.Invariants {
				fmt.Fprintf(w, "\n%s\t%s\t%s", inv.Key, inv.Severity, inv.Human)
			}
			if len(s.Invariants) > 0 {
				fmt.Fprintln(w)
			}
			return w.Flush()
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <type>",
		Short: "Export a schema as an R4 StructureDefinition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sd, err := a.codec.Registry().StructureDefinition(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(sd, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func fieldType(f *schema.Field) string {
	if len(f.Targets) > 0 {
		return f.Type + "(" + strings.Join(f.Targets, "|") + ")"
	}
	if f.Nested != nil {
		return f.Nested.Name
	}
	return f.Type
}

func bindingLabel(b *schema.Binding) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", b.Strength, b.ValueSet)
}
