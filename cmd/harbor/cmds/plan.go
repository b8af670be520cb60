package cmds

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eduard-lt/Harbor/pkg/config"
	"github.com/eduard-lt/Harbor/pkg/graph"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type planStep struct {
	Order      int               `json:"order"`
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Dir        string            `json:"dir"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Dependents []string          `json:"dependents,omitempty"`
	Probe      string            `json:"probe"`
	Env        map[string]string `json:"env,omitempty"`
}

func newPlanCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the order services would start in, without starting them",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if err := checkOutput(output, "table", "json"); err != nil {
				return err
			}
			cfg, err := config.LoadAndValidate(opts.Config)
			if err != nil {
				return err
			}
			order, err := graph.Resolve(cfg.Services)
			if err != nil {
				return err
			}

			deps := graph.Dependents(order)
			steps := make([]planStep, 0, len(order))
			for i, svc := range order {
				dir := svc.Dir(opts.BaseDir)
				probe := "none"
				if spec, ok := svc.Probe(dir); ok {
					probe = spec.Describe()
				}
				steps = append(steps, planStep{
					Order:      i + 1,
					Name:       svc.Name,
					Command:    svc.Command,
					Dir:        dir,
					DependsOn:  svc.DependsOn,
					Dependents: deps[svc.Name],
					Probe:      probe,
					Env:        config.RedactEnv(svc.Env),
				})
			}

			w := cmd.OutOrStdout()
			if output == "json" {
				b, err := json.MarshalIndent(steps, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal plan")
				}
				_, _ = fmt.Fprintln(w, string(b))
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(w)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"#", "Service", "Depends on", "Needed by", "Probe", "Command", "Env"})
			for _, s := range steps {
				t.AppendRow(table.Row{
					s.Order,
					s.Name,
					strings.Join(s.DependsOn, ", "),
					strings.Join(s.Dependents, ", "),
					s.Probe,
					s.Command,
					strings.Join(config.EnvPairs(s.Env), "\n"),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}
