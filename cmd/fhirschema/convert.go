package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		to     string
		indent bool
	)
	cmd := &cobra.Command{
		Use:   "convert [file|-]",
		Short: "Convert a resource between JSON and XML",
		Example: `  fhirschema convert patient.json --to xml
  fhirschema convert -f xml patient.xml --indent`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := readInputs(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if len(jobs) != 1 {
				return fmt.Errorf("convert takes one document, %d matched", len(jobs))
			}

			target := to
			if target == "" {
				target = "xml"
				if a.cfg.Format == "xml" {
					target = "json"
				}
			}

			rec, err := a.decodeFunc()(jobs[0].Data)
			if err != nil {
				return err
			}

			var out []byte
			switch target {
			case "xml":
				out, err = a.codec.EncodeXML(rec)
			case "json":
				if indent {
					out, err = a.codec.EncodeIndent(rec, "", "  ")
				} else {
					out, err = a.codec.Encode(rec)
				}
			default:
				return fmt.Errorf("unknown target format %q", target)
			}
			if err != nil {
				return err
			}
			a.log.Debug().Str("from", a.cfg.Format).Str("to", target).Str("type", rec.Type()).Msg("converted")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target format: json or xml (default: the other one)")
	cmd.Flags().BoolVar(&indent, "indent", false, "indent JSON output")
	return cmd
}
