// Package commands implements the static command metadata table: name,
// description, usage, category, aliases, and the auth/admin gating flags
// consulted by the server's CMD dispatcher. It deliberately does not own
// command execution — handlers live on the server, which has access to the
// remote/channel state a command like /mute or /join needs to mutate.
package commands

import "strings"

// Category groups commands for the client's command-palette UI.
type Category byte

const (
	CategoryUser Category = iota
	CategoryChannel
	CategoryAudio
	CategoryChat
	CategoryAdmin
	CategoryUtility
	CategoryFun
)

// Command is one registry entry.
type Command struct {
	Name         string
	Description  string
	Usage        string
	Category     Category
	Aliases      []string
	RequiresAuth bool
	AdminOnly    bool
}

// Registry is a name/alias -> Command lookup table.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]string
}

// NewRegistry builds a Registry pre-populated with the built-in command set.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
	for _, c := range defaultCommands() {
		r.Register(c)
	}
	return r
}

// Register adds cmd to the table and indexes its aliases. A later call with
// the same Name overwrites the earlier entry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd.Name
	}
}

// Lookup resolves name (which may be an alias) to its canonical Command.
func (r *Registry) Lookup(name string) (*Command, bool) {
	if canon, ok := r.aliases[name]; ok {
		name = canon
	}
	cmd, ok := r.commands[name]
	return cmd, ok
}

// All returns every registered command, in no particular order.
func (r *Registry) All() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	return out
}

// ForUser returns the commands visible to a user, excluding admin-only
// entries unless isAdmin is true.
func (r *Registry) ForUser(isAdmin bool) []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		if c.AdminOnly && !isAdmin {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Parse splits a "/cmd arg arg" line into its command token and arguments.
// ok is false if line does not start with '/' or is empty after trimming.
func Parse(line string) (name string, args []string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	parts := strings.Fields(trimmed)
	if len(parts) == 0 {
		return "", nil, false
	}
	return parts[0], parts[1:], true
}

// Resolution is the outcome of resolving a parsed command line against the
// registry and the caller's auth state.
type Resolution int

const (
	// ResolutionOK means cmd/args are ready for the server to execute.
	ResolutionOK Resolution = iota
	// ResolutionUnknown means no command or alias matched.
	ResolutionUnknown
	// ResolutionMalformed means the line did not parse as a command at all.
	ResolutionMalformed
	// ResolutionNeedsAuth means RequiresAuth is set and the sender is unmasked.
	ResolutionNeedsAuth
	// ResolutionNeedsAdmin means AdminOnly is set and the sender is not an admin.
	ResolutionNeedsAdmin
)

// Resolve parses line and checks it against auth gating, without executing
// anything. The server's CMD handler calls this first and only invokes its
// own per-command switch on ResolutionOK.
func (r *Registry) Resolve(line string, masked, isAdmin bool) (cmd *Command, args []string, res Resolution) {
	name, args, ok := Parse(line)
	if !ok {
		return nil, nil, ResolutionMalformed
	}
	cmd, found := r.Lookup(name)
	if !found {
		return nil, nil, ResolutionUnknown
	}
	if cmd.RequiresAuth && !masked {
		return cmd, args, ResolutionNeedsAuth
	}
	if cmd.AdminOnly && !isAdmin {
		return cmd, args, ResolutionNeedsAdmin
	}
	return cmd, args, ResolutionOK
}

func defaultCommands() []*Command {
	return []*Command{
		{Name: "/nick", Description: "Change your display name", Usage: "/nick <name>", Category: CategoryUser, Aliases: []string{"/name", "/rename", "/username"}},
		{Name: "/whoami", Description: "Show your current mask and channel", Usage: "/whoami", Category: CategoryUser},
		{Name: "/join", Description: "Switch to another channel", Usage: "/join <channel_id>", Category: CategoryChannel, Aliases: []string{"/j", "/switch"}},
		{Name: "/list", Description: "List all channels and their members", Usage: "/list", Category: CategoryChannel, Aliases: []string{"/ls"}},
		{Name: "/mute", Description: "Toggle your microphone mute", Usage: "/mute", Category: CategoryAudio},
		{Name: "/unmute", Description: "Clear your microphone mute", Usage: "/unmute", Category: CategoryAudio},
		{Name: "/deafen", Description: "Toggle your speaker deafen", Usage: "/deafen", Category: CategoryAudio},
		{Name: "/undeafen", Description: "Clear your speaker deafen", Usage: "/undeafen", Category: CategoryAudio},
		{Name: "/me", Description: "Perform an action in chat", Usage: "/me <action>", Category: CategoryChat, RequiresAuth: true},
		{Name: "/whisper", Description: "Send a private message", Usage: "/whisper <user> <message>", Category: CategoryChat, Aliases: []string{"/w", "/msg", "/tell"}, RequiresAuth: true},
		{Name: "/help", Description: "Show help for commands", Usage: "/help [command]", Category: CategoryUtility, Aliases: []string{"/?", "/commands"}},
		{Name: "/ping", Description: "Check server latency", Usage: "/ping", Category: CategoryUtility},
		{Name: "/serverinfo", Description: "Show server information", Usage: "/serverinfo", Category: CategoryUtility, Aliases: []string{"/info", "/status"}},
		{Name: "/kick", Description: "Kick a user from the server", Usage: "/kick <mask> [reason]", Category: CategoryAdmin, RequiresAuth: true, AdminOnly: true},
		{Name: "/channels", Description: "Create, rename or delete a channel", Usage: "/channels create|rename|delete <args>", Category: CategoryAdmin, RequiresAuth: true, AdminOnly: true},
	}
}
