package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/explorer"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

const explorePrompt = "lineage> "

// NewExploreCommand creates the explore command.
func NewExploreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore <type> <fqn>",
		Short: "Explore and edit the lineage of an entity interactively",
		Long: `Load the lineage of an entity and open a REPL to expand nodes, draw and
remove edges, and inspect entities. Edits are written to the catalog.`,
		Example: `  leaplineage explore table sample_data.ecommerce_db.shopify.fact_session`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envOf(cmd)
			ctx := cmd.Context()

			client, closeCache, err := newCatalog(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeCache() }()

			s := explorer.NewSession("cli", explorer.Options{
				Fetcher:         client,
				Persister:       client,
				Layout:          e.cfg.Layout,
				UpstreamDepth:   e.cfg.Catalog.UpstreamDepth,
				DownstreamDepth: e.cfg.Catalog.DownstreamDepth,
				Logger:          e.logger,
			})
			if err := s.Load(ctx, lineage.EntityType(args[0]), args[1]); err != nil {
				return fmt.Errorf("failed to load lineage of %s: %w", args[1], err)
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          explorePrompt,
				HistoryFile:     filepath.Join(filepath.Dir(e.cfg.StatePath), "explore_history"),
				AutoComplete:    newExploreCompleter(s),
				InterruptPrompt: "^C",
				EOFPrompt:       ".quit",
				Stdin:           io.NopCloser(cmd.InOrStdin()),
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize REPL: %w", err)
			}
			defer func() { _ = rl.Close() }()

			e.out.Printf("Exploring %s\n", lineage.DataLabel(s.Graph().Entity))
			e.out.Println("Type .help for commands, .quit to exit")
			e.out.Println("")

			repl := &exploreREPL{env: e, session: s, confirm: func(question string) bool {
				rl.SetPrompt(question + " [y/N] ")
				defer rl.SetPrompt(explorePrompt)
				answer, err := rl.Readline()
				if err != nil {
					return false
				}
				answer = strings.ToLower(strings.TrimSpace(answer))
				return answer == "y" || answer == "yes"
			}}
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if repl.exec(ctx, line) {
					return nil
				}
				// entity ids may have changed
				rl.Config.AutoComplete = newExploreCompleter(s)
			}
		},
	}
	return cmd
}

// exploreREPL runs the dot-commands of the explore command against a session.
type exploreREPL struct {
	env     env
	session *explorer.Session
	// confirm asks a yes/no question. Nil answers yes.
	confirm func(question string) bool
}

// exec runs one line and reports whether the REPL should exit. Errors are
// written to the diagnostics writer.
func (r *exploreREPL) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	command, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch command {
	case ".quit", ".exit":
		return true
	case ".help":
		printExploreHelp(r.env.out.Writer())
	case ".show":
		err = r.show()
	case ".expand":
		err = r.expand(ctx, args)
	case ".connect":
		err = r.connect(ctx, args)
	case ".disconnect":
		err = r.disconnect(ctx, args)
	case ".remove":
		err = r.remove(ctx, args)
	case ".toggle":
		err = r.toggle(args)
	case ".describe":
		err = r.describe(args)
	case ".edit":
		err = r.edit(args)
	case ".upstream":
		err = r.related(args, true)
	case ".downstream":
		err = r.related(args, false)
	case ".levels":
		r.levels()
	default:
		err = fmt.Errorf("unknown command: %s (type .help for commands)", command)
	}
	if err != nil {
		_, _ = fmt.Fprintf(r.env.out.ErrWriter(), "Error: %v\n", err)
	}
	return false
}

func (r *exploreREPL) show() error {
	v := r.session.View()
	return renderProjection(r.env.out, "Lineage of "+lineage.DataLabel(v.Root),
		lineage.Projection{Nodes: v.Nodes, Edges: v.Edges}, true)
}

func (r *exploreREPL) expand(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: .expand <entity-id> <from|to>")
	}
	dir, err := lineage.ParseDirection(args[1])
	if err != nil {
		return err
	}
	if err := r.session.Expand(ctx, args[0], dir); err != nil {
		return err
	}
	return r.show()
}

func (r *exploreREPL) connect(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: .connect <source> <target> [sql]")
	}
	ne, err := r.newEdge(lineage.ParseHandle(args[0]), lineage.ParseHandle(args[1]))
	if err != nil {
		return err
	}
	ne.SQLQuery = strings.Join(args[2:], " ")

	kind, err := r.session.Connect(ctx, ne)
	if kind != "" {
		r.env.out.Printf("Added %s edge %s\n",
			r.env.out.Styles().EdgeKind(kind).Render(string(kind)), ne.Connection().EdgeID())
	}
	return err
}

func (r *exploreREPL) newEdge(source, target lineage.Handle) (lineage.NewEdge, error) {
	g := r.session.Graph()
	from, ok := g.Lookup(source.EntityID)
	if !ok {
		return lineage.NewEdge{}, fmt.Errorf("%w: %s", explorer.ErrNodeNotFound, source.EntityID)
	}
	to, ok := g.Lookup(target.EntityID)
	if !ok {
		return lineage.NewEdge{}, fmt.Errorf("%w: %s", explorer.ErrNodeNotFound, target.EntityID)
	}
	if err := columnOf(from, source.Column); err != nil {
		return lineage.NewEdge{}, err
	}
	if err := columnOf(to, target.Column); err != nil {
		return lineage.NewEdge{}, err
	}
	return lineage.NewEdge{From: from, To: to, FromColumn: source.Column, ToColumn: target.Column}, nil
}

// columnOf checks that column, when set, is a column of ent.
func columnOf(ent lineage.EntityRef, column string) error {
	if column == "" || lineage.TableFQNFromColumnFQN(column) == ent.FullyQualifiedName {
		return nil
	}
	return fmt.Errorf("%s is not a column of %s", column, lineage.DataLabel(ent))
}

func (r *exploreREPL) disconnect(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: .disconnect <source> <target>")
	}
	conn := lineage.Connection{Source: lineage.ParseHandle(args[0]), Target: lineage.ParseHandle(args[1])}
	edge, ok := r.renderEdge(conn.EdgeID())
	if !ok {
		return fmt.Errorf("no edge between %s and %s", args[0], args[1])
	}

	g := r.session.Graph()
	from, _ := g.Lookup(edge.Source)
	to, _ := g.Lookup(edge.Target)
	if r.confirm != nil && !r.confirm(lineage.RemoveEdgeMessage(from, to, edge)) {
		r.env.out.Println("Cancelled")
		return nil
	}

	if sel, ok := lineage.SelectionFromEdge(edge); ok {
		if err := r.session.RemoveColumn(ctx, sel); err != nil {
			return err
		}
		r.env.out.Printf("Removed column lineage %s -> %s\n", shortName(sel.SourceColumn), shortName(sel.TargetColumn))
		return nil
	}
	if err := r.session.Disconnect(ctx, edge.Source, edge.Target); err != nil {
		return err
	}
	r.env.out.Printf("Removed edge %s\n", edge.ID)
	return nil
}

func (r *exploreREPL) renderEdge(id string) (lineage.RenderEdge, bool) {
	for _, e := range r.session.View().Edges {
		if e.ID == id {
			return e, true
		}
	}
	return lineage.RenderEdge{}, false
}

// related lists every entity upstream or downstream of an entity.
func (r *exploreREPL) related(args []string, upstream bool) error {
	command, ids := ".downstream", (*dag.Graph).Downstream
	if upstream {
		command, ids = ".upstream", (*dag.Graph).Upstream
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <entity-id>", command)
	}
	g := dag.FromLineage(r.session.Graph())
	if _, ok := g.Node(args[0]); !ok {
		return fmt.Errorf("%w: %s", explorer.ErrNodeNotFound, args[0])
	}

	found := ids(g, args[0])
	if len(found) == 0 {
		r.env.out.Println(r.env.out.Styles().Muted.Render("No entities"))
		return nil
	}
	t := r.env.out.Table()
	t.AppendHeader([]any{"ID", "LABEL", "TYPE"})
	for _, id := range found {
		ent := entityOf(g, id)
		t.AppendRow([]any{id, lineage.DataLabel(ent), lineage.EntityTypeLabel(ent.Type)})
	}
	t.Render()
	r.env.out.Println(r.env.out.Styles().Muted.Render(fmt.Sprintf("Total: %d entities", len(found))))
	return nil
}

// levels prints the entities grouped by their distance from the sources.
func (r *exploreREPL) levels() {
	g := dag.FromLineage(r.session.Graph())
	muted := r.env.out.Styles().Muted
	for i, level := range g.Levels() {
		labels := make([]string, len(level))
		for j, id := range level {
			labels[j] = lineage.DataLabel(entityOf(g, id))
		}
		r.env.out.Printf("%s %s\n", muted.Render(fmt.Sprintf("%d:", i)), strings.Join(labels, ", "))
	}
}

func entityOf(g *dag.Graph, id string) lineage.EntityRef {
	n, ok := g.Node(id)
	if !ok {
		return lineage.EntityRef{ID: id}
	}
	ent, _ := n.Data.(lineage.EntityRef)
	return ent
}

func (r *exploreREPL) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: .remove <entity-id>")
	}
	if err := r.session.RemoveNode(ctx, args[0]); err != nil {
		return err
	}
	r.env.out.Printf("Removed %s\n", args[0])
	return nil
}

func (r *exploreREPL) toggle(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: .toggle <entity-id>")
	}
	expanded, err := r.session.ToggleExpanded(args[0])
	if err != nil {
		return err
	}
	r.env.out.Printf("%s columns expanded: %t\n", args[0], expanded)
	return nil
}

func (r *exploreREPL) describe(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: .describe <entity-id>")
	}
	ent, ok := r.session.Graph().Lookup(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", explorer.ErrNodeNotFound, args[0])
	}

	styles := r.env.out.Styles()
	r.env.out.Println(styles.Header2.Render(lineage.DataLabel(ent)))
	r.env.out.Printf("%s %s\n", styles.Muted.Render("type:"), lineage.EntityTypeLabel(ent.Type))
	r.env.out.Printf("%s %s\n", styles.Muted.Render("fqn: "), ent.FullyQualifiedName)
	if ent.Deleted {
		r.env.out.Println(styles.Warning.Render("deleted"))
	}
	if ent.Description == "" {
		return nil
	}
	md, err := htmltomarkdown.ConvertString(ent.Description)
	if err != nil {
		return fmt.Errorf("failed to convert description: %w", err)
	}
	r.env.out.Println("")
	r.env.out.Println(md)
	return nil
}

func (r *exploreREPL) edit(args []string) error {
	on := !r.session.EditMode()
	if len(args) == 1 {
		switch args[0] {
		case "on":
			on = true
		case "off":
			on = false
		default:
			return errors.New("usage: .edit [on|off]")
		}
	}
	r.session.SetEditMode(on)
	r.env.out.Printf("Edit mode: %t\n", on)
	return nil
}

func printExploreHelp(w io.Writer) {
	help := `
Commands:
  .show                          Show the laid-out lineage
  .expand <id> <from|to>         Fetch one more level of lineage
  .connect <source> <target>     Draw an edge; handles are id or id:columnFQN
  .disconnect <source> <target>  Remove an edge, or one column mapping for column handles
  .remove <id>                   Remove an entity and its edges
  .toggle <id>                   Expand or collapse the columns of an entity
  .describe <id>                 Show an entity and its description
  .edit [on|off]                 Switch edit mode
  .upstream <id>                 List every entity feeding an entity
  .downstream <id>               List every entity fed by an entity
  .levels                        Group entities by distance from the sources
  .quit / .exit                  Exit the REPL
`
	_, _ = fmt.Fprintln(w, help)
}

// newExploreCompleter completes dot-commands and the entity ids of s.
func newExploreCompleter(s *explorer.Session) *readline.PrefixCompleter {
	var ids []readline.PrefixCompleterInterface
	for _, ent := range s.Graph().Entities() {
		ids = append(ids, readline.PcItem(ent.ID))
	}
	withIDs := func(name string) readline.PrefixCompleterInterface {
		return readline.PcItem(name, ids...)
	}
	dirs := []readline.PrefixCompleterInterface{readline.PcItem("from"), readline.PcItem("to")}

	var expand []readline.PrefixCompleterInterface
	for _, ent := range s.Graph().Entities() {
		expand = append(expand, readline.PcItem(ent.ID, dirs...))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".show"),
		readline.PcItem(".expand", expand...),
		withIDs(".connect"),
		withIDs(".disconnect"),
		withIDs(".remove"),
		withIDs(".toggle"),
		withIDs(".describe"),
		readline.PcItem(".edit", readline.PcItem("on"), readline.PcItem("off")),
		withIDs(".upstream"),
		withIDs(".downstream"),
		readline.PcItem(".levels"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
