package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/andreyvit/sectioned"
	"github.com/andreyvit/sectioned/store"
)

func newPutCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "put ID GROUP [TEXT]",
		Short: "Insert or replace a note",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(c *cobra.Command, args []string) error {
			e, err := g.open(stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			n := &Note{ID: args[0], Group: args[1]}
			if len(args) > 2 {
				n.Text = args[2]
			}
			err = e.db.Update(func(tx *store.Tx) error {
				store.Put(tx, e.notes, n)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "v%d\n", e.db.Version())
			return nil
		},
	}
}

func newDelCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "del ID...",
		Short: "Delete notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			e, err := g.open(stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			var missing []string
			err = e.db.Update(func(tx *store.Tx) error {
				for _, id := range args {
					if !store.Delete(tx, e.notes, id) {
						missing = append(missing, id)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, id := range missing {
				fmt.Fprintf(stderr, "not found: %s\n", id)
			}
			fmt.Fprintf(stdout, "v%d\n", e.db.Version())
			return nil
		},
	}
}

func newClearCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all notes",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			e, err := g.open(stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			var n int
			err = e.db.Update(func(tx *store.Tx) error {
				n = store.Clear(tx, e.notes)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "deleted %d notes, v%d\n", n, e.db.Version())
			return nil
		},
	}
}

func newShowCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var group string
	var dump, stats bool
	ccmd := &cobra.Command{
		Use:   "show",
		Short: "Print the sectioned view",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			e, err := g.open(stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			if dump {
				return e.db.View(func(tx *store.Tx) error {
					fmt.Fprint(stdout, store.Dump(tx, e.notes))
					return nil
				})
			}
			if stats {
				return e.db.View(func(tx *store.Tx) error {
					st := store.Stats(tx, e.notes)
					fmt.Fprintf(stdout, "v%d: %d notes, %d index entries, %d bytes in use, %d allocated\n", tx.Version(), st.Rows, st.IndexRows, st.TotalSize(), st.TotalAlloc())
					return nil
				})
			}
			if group != "" {
				return e.db.View(func(tx *store.Tx) error {
					for _, n := range store.WithOrder(tx, e.notes, store.OrderString(group)) {
						fmt.Fprintf(stdout, "%s\t%s\n", n.ID, n.Text)
					}
					return nil
				})
			}

			l := e.live(sectioned.Options[string]{Background: sectioned.Immediate})
			defer l.Close()
			v, err := l.Snapshot()
			if err != nil {
				return err
			}
			for _, err := range l.Diagnostics() {
				fmt.Fprintf(stderr, "excluded: %v\n", err)
			}
			printView(stdout, v)
			return nil
		},
	}
	flags := ccmd.Flags()
	flags.StringVar(&group, "group", "", "only print notes of this group")
	flags.BoolVar(&dump, "dump", false, "print raw rows with their order keys and tokens")
	flags.BoolVar(&stats, "stats", false, "print row counts and storage usage")
	return ccmd
}

// replayOp is one line of a replay script.
type replayOp struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Group string `json:"group"`
	Text  string `json:"text"`
}

func newReplayCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var metrics bool
	ccmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Apply a script of operations, printing change events",
		Long: `
Applies a JSON lines script, one commit per line:

    {"op": "put", "id": "a1", "group": "A", "text": "apple"}
    {"op": "del", "id": "a1"}

and prints the initial view and every change event as it is delivered.
Use - to read the script from stdin.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var in io.Reader = c.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			e, err := g.open(stderr)
			if err != nil {
				return err
			}
			defer e.Close()

			var reg *prometheus.Registry
			if metrics {
				reg = prometheus.NewRegistry()
				reg.MustRegister(sectioned.MetricCollectors()...)
			}

			l := e.live(sectioned.Options[string]{Background: sectioned.Immediate})
			defer l.Close()
			tok := l.Subscribe(sectioned.Immediate, func(ev sectioned.Event[*Note, string]) {
				printEvent(stdout, ev)
			})
			defer tok.Cancel()

			scanner := bufio.NewScanner(in)
			var lineNo int
			for scanner.Scan() {
				lineNo++
				line := scanner.Bytes()
				if len(line) == 0 || line[0] == '#' {
					continue
				}
				var op replayOp
				if err := json.Unmarshal(line, &op); err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
				err := e.db.Update(func(tx *store.Tx) error {
					switch op.Op {
					case "put":
						store.Put(tx, e.notes, &Note{ID: op.ID, Group: op.Group, Text: op.Text})
					case "del":
						store.Delete(tx, e.notes, op.ID)
					default:
						return fmt.Errorf("unknown op %q", op.Op)
					}
					return nil
				})
				if err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			if reg != nil {
				return printMetrics(stdout, reg)
			}
			return nil
		},
	}
	ccmd.Flags().BoolVar(&metrics, "metrics", false, "print live view metrics when done")
	return ccmd
}

func printView(w io.Writer, v *sectioned.View[*Note, string]) {
	fmt.Fprintf(w, "v%d: %d sections, %d notes\n", v.Version(), v.SectionCount(), v.Len())
	for _, sec := range v.Sections() {
		fmt.Fprintf(w, "[%s]\n", sec.Key())
		for _, n := range sec.All() {
			fmt.Fprintf(w, "  %s\t%s\n", n.ID, n.Text)
		}
	}
}

func printEvent(w io.Writer, ev sectioned.Event[*Note, string]) {
	switch ev.Kind {
	case sectioned.EventInitial:
		printView(w, ev.View)
	case sectioned.EventUpdate:
		fmt.Fprintf(w, "v%d: %v", ev.View.Version(), ev.Changes)
		if !ev.Sections.IsEmpty() {
			fmt.Fprintf(w, " sections -%v +%v", ev.Sections.Deletions, ev.Sections.Insertions)
		}
		fmt.Fprintln(w)
		for _, i := range ev.Changes.Insertions {
			fmt.Fprintf(w, "  + %v %s\n", ev.View.PathOf(i), ev.View.At(i).ID)
		}
		for _, i := range ev.Changes.Modifications {
			fmt.Fprintf(w, "  ~ %v %s\n", ev.View.PathOf(i), ev.View.At(i).ID)
		}
	case sectioned.EventError:
		fmt.Fprintf(w, "error: %v\n", ev.Err)
	}
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels string
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(w, "%s%s count=%d sum=%g\n", mf.GetName(), labels, m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
	return nil
}
