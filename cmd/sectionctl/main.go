package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/sectioned"
	"github.com/andreyvit/sectioned/store"
)

// Note is the row type sectionctl manages: notes grouped by Group.
type Note struct {
	ID    string `msgpack:"id"`
	Group string `msgpack:"g"`
	Text  string `msgpack:"t,omitempty"`
}

func noteGroup(n *Note) (string, error) {
	if n.Group == "" {
		return "", sectioned.ErrEmptyKey
	}
	return n.Group, nil
}

type globalFlags struct {
	DBPath  string
	Verbose bool
	Desc    bool
}

type env struct {
	flags  *globalFlags
	logger *slog.Logger
	db     *store.DB
	notes  *store.Collection[Note]
}

func (g *globalFlags) open(stderr io.Writer) (*env, error) {
	level := slog.LevelInfo
	if g.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	db, err := store.Open(g.DBPath, store.Options{Logger: logger, Verbose: g.Verbose})
	if err != nil {
		return nil, err
	}
	notes, err := store.AddCollection(db, "notes", store.CollectionOptions[Note]{
		ID:    func(n *Note) string { return n.ID },
		Order: func(n *Note) []byte { return store.OrderString(n.Group) },
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{flags: g, logger: logger, db: db, notes: notes}, nil
}

func (e *env) Close() {
	e.db.Close()
}

func (e *env) live(opt sectioned.Options[string]) *sectioned.Live[*Note, string] {
	opt.Logger = e.logger
	opt.Verbose = e.flags.Verbose
	if e.flags.Desc {
		opt.Compare = strings.Compare
		opt.Descending = true
	}
	return sectioned.New[*Note, string](e.notes, noteGroup, opt)
}

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func realMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdin, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "sectionctl: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rc := &cobra.Command{
		Use:   "sectionctl",
		Short: "Inspect and edit a sectioned notes database",
		Long: `
Maintains notes grouped into sections by their group, stored in a Bolt file,
and prints the sectioned view and the changes between versions.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	flags := rc.PersistentFlags()
	flags.StringVar(&g.DBPath, "db", "notes.db", "path to the database file")
	flags.BoolVarP(&g.Verbose, "verbose", "v", false, "log every operation")
	flags.BoolVar(&g.Desc, "desc", false, "sort sections by group, descending")

	rc.AddCommand(newPutCommand(g, stdout, stderr))
	rc.AddCommand(newDelCommand(g, stdout, stderr))
	rc.AddCommand(newClearCommand(g, stdout, stderr))
	rc.AddCommand(newShowCommand(g, stdout, stderr))
	rc.AddCommand(newReplayCommand(g, stdout, stderr))
	return rc
}
