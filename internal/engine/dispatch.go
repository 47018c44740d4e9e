package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, arg string) error

type Command struct {
	Name    string
	Aliases []string
	Usage   string // argument synopsis, without the prefix and name
	Summary string
	// Passive commands run even while the channel waits on a pending request.
	Passive bool
	Run     Handler
}

// Group is one named command registry.
type Group struct {
	Name     string
	commands map[string]*Command
	order    []*Command
}

func NewGroup(name string) *Group {
	return &Group{Name: name, commands: make(map[string]*Command)}
}

// Register adds c under its name and aliases. Names already taken in the
// group keep their first registration.
func (g *Group) Register(c *Command) *Group {
	g.order = append(g.order, c)
	for _, n := range append([]string{c.Name}, c.Aliases...) {
		if _, ok := g.commands[n]; !ok {
			g.commands[n] = c
		}
	}
	return g
}

func (g *Group) Lookup(name string) (*Command, bool) {
	c, ok := g.commands[name]
	return c, ok
}

func (g *Group) Commands() []*Command {
	return g.order
}

// Dispatcher resolves names against its groups in order; the first group
// claiming a name wins.
type Dispatcher struct {
	groups []*Group
}

func (d *Dispatcher) Add(g *Group) {
	d.groups = append(d.groups, g)
}

func (d *Dispatcher) Lookup(name string) (*Command, bool) {
	for _, g := range d.groups {
		if c, ok := g.Lookup(name); ok {
			return c, true
		}
	}
	return nil, false
}

func (d *Dispatcher) Groups() []*Group {
	return d.groups
}

type usageError struct {
	usage string
}

func (u *usageError) Error() string {
	return "usage: " + u.usage
}

func usage(c string) error {
	return &usageError{usage: c}
}

func parseCommand(s string) (name, arg string) {
	name, arg, _ = strings.Cut(s, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func (e *Engine) dispatch(ctx context.Context, name, arg string) error {
	c, ok := e.commands.Lookup(name)
	if !ok {
		e.Out.Error(fmt.Sprintf("Unknown command. Type %shelp for a list of commands.", e.Prefix))
		return nil
	}
	s := e.session(e.current)
	if s.Pending != nil && !c.Passive {
		e.Out.Error(fmt.Sprintf("Waiting on %s%s. Answer it or type cancel first.", e.Prefix, commandOf(s.Pending)))
		return nil
	}
	e.Log.Debug("dispatch",
		zap.String("command", c.Name),
		zap.String("channel", string(e.current)),
		zap.Int("arg_len", len(arg)))
	return c.Run(ctx, arg)
}

// CommandNames returns every command name and alias, sorted.
func (e *Engine) CommandNames() []string {
	var names []string
	for _, g := range e.commands.Groups() {
		for n := range g.commands {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return slices.Compact(names)
}
