// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"

	"github.com/monomirror/monomirror/pkg/hearthstone"
	"github.com/monomirror/monomirror/pkg/mirror"
	"github.com/monomirror/monomirror/pkg/mono"
	"github.com/monomirror/monomirror/pkg/terminal/starbind"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	// classArg is set when the first argument is a class name, so that it
	// can be completed from the image.
	classArg bool
	helpMsg  string
	cmdFn    cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the terminal.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// MirrorCommands returns a Commands struct with default commands defined.
func MirrorCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"status"}, group: sessionCmds, cmdFn: statusCommand, helpMsg: `Attaches to the target, if needed, and prints the outcome.

	status`},
		{aliases: []string{"assemblies", "asm"}, group: sessionCmds, cmdFn: assembliesCommand, helpMsg: `Lists the assemblies loaded in the root domain.

	assemblies`},
		{aliases: []string{"exports"}, group: sessionCmds, cmdFn: exportsCommand, helpMsg: `Lists the exports of the main module.

	exports [-d] [<regex>]

Only exports matching regex are listed. With -d the first instructions of every listed export are disassembled, in the syntax set by the disassemble-flavor configuration key.`},
		{aliases: []string{"clear-cache", "cc"}, group: sessionCmds, cmdFn: clearCacheCommand, helpMsg: `Drops every cached page of target memory.

	clear-cache

Reads made after this command observe the current state of the target.`},
		{aliases: []string{"clean"}, group: sessionCmds, cmdFn: cleanCommand, helpMsg: `Detaches from the target.

	clean

The next command attaches again and reloads the image.`},
		{aliases: []string{"classes", "ls"}, group: browseCmds, classArg: true, cmdFn: classesCommand, helpMsg: `Lists the classes of the image.

	classes [<prefix>]

Only classes whose full name starts with prefix are listed.`},
		{aliases: []string{"search"}, group: browseCmds, cmdFn: searchCommand, helpMsg: `Fuzzy searches class names.

	search <pattern>

Class names containing the characters of pattern in order are listed, shortest first.`},
		{aliases: []string{"fields", "f"}, group: browseCmds, classArg: true, cmdFn: fieldsCommand, helpMsg: `Lists the fields of a class and of its ancestors.

	fields <class>`},
		{aliases: []string{"print", "p", "get"}, group: browseCmds, classArg: true, cmdFn: printCommand, helpMsg: `Prints the value of a static field.

	print [-d <depth>] <class> <field> [<field>|<index>...]

Objects and structs are expanded depth levels deep, 1 by default. The path after the static field is followed one instance field or array index at a time, for example:

	print Game.Manager s_instance m_decks 0 m_name`},
		{aliases: []string{"collection"}, group: gameCmds, cmdFn: collectionCommand, helpMsg: `Prints the card collection.

	collection`},
		{aliases: []string{"decks"}, group: gameCmds, cmdFn: decksCommand, helpMsg: `Prints the decks.

	decks`},
		{aliases: []string{"arena"}, group: gameCmds, cmdFn: arenaCommand, helpMsg: `Prints the current arena run.

	arena [-choices]

With -choices the cards offered by the draft are printed instead.`},
		{aliases: []string{"match"}, group: gameCmds, cmdFn: matchCommand, helpMsg: `Prints the players of the current match.

	match`},
		{aliases: []string{"gametype"}, group: gameCmds, cmdFn: gameTypeCommand, helpMsg: `Prints the game type, the spectating state and the deck selected in the menu.

	gametype`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script. If path is a single '-' character an interactive starlark interpreter will start instead. Type 'exit' to exit.`},
		{aliases: []string{"transcript"}, cmdFn: transcriptCommand, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of commands is appended to the specified output file. If -t is specified and the output file exists it is truncated. If -x is specified output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter. Offsets are set as offsets.<name>. Target settings apply the next time monomirror starts.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the browser.

	exit`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

func (c *Commands) find(cmdstr string) *command {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			return &c.cmds[i]
		}
	}
	return nil
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}
	if cmd := c.find(cmdstr); cmd != nil {
		return cmd.cmdFn
	}
	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		if cmd := c.find(args); cmd != nil {
			fmt.Fprintln(t.stdout, cmd.helpMsg)
			return nil
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits a command line into words, honoring quotes.
func splitArgs(args string) ([]string, error) {
	if args == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

func statusCommand(t *Term, args string) error {
	st := mirror.GetStatus(t.m)
	switch st.Kind {
	case mirror.StatusOK:
		fmt.Fprintf(t.stdout, "%s (pid %d)\n", t.highlight(ansiGreen, st.Kind.String()), t.m.Pid())
	case mirror.StatusProcNotFound:
		fmt.Fprintf(t.stdout, "%s: %s\n", t.highlight(ansiYellow, st.Kind.String()), t.m.Config().ProcessName)
	default:
		fmt.Fprintf(t.stdout, "%s: %v\n", t.highlight(ansiRed, st.Kind.String()), st.Err)
	}
	return nil
}

func assembliesCommand(t *Term, args string) error {
	names, err := t.m.Assemblies()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

// exportInstructions is the number of instructions exports -d prints.
const exportInstructions = 8

func exportsCommand(t *Term, args string) error {
	words, err := splitArgs(args)
	if err != nil {
		return err
	}
	disasm := false
	if len(words) > 0 && words[0] == "-d" {
		disasm = true
		words = words[1:]
	}
	var filter *regexp.Regexp
	switch len(words) {
	case 0:
	case 1:
		filter, err = regexp.Compile(words[0])
		if err != nil {
			return err
		}
	default:
		return errors.New("wrong number of arguments: exports [-d] [<regex>]")
	}

	r, err := t.m.Resolver()
	if err != nil {
		return err
	}
	view, err := t.m.View()
	if err != nil {
		return err
	}
	flavour := mirror.ParseFlavour(t.conf.DisassembleFlavor)
	t.stdout.pager.Watch()
	for _, name := range r.Exports() {
		if filter != nil && !filter.MatchString(name) {
			continue
		}
		addr := r.GetExport(name)
		fmt.Fprintf(t.stdout, "%#x %s\n", addr, name)
		if !disasm || addr == 0 {
			continue
		}
		// 15 bytes is the longest x86 instruction.
		code := view.Read(addr, exportInstructions*15)
		insts := mirror.Disassemble(code, addr)
		if len(insts) > exportInstructions {
			insts = insts[:exportInstructions]
		}
		for i := range insts {
			fmt.Fprintf(t.stdout, "\t%#x\t% x\t%s\n", insts[i].PC, insts[i].Bytes, insts[i].Text(flavour, nil))
			if insts[i].Kind == mirror.RetInstruction || insts[i].Kind == mirror.JmpInstruction {
				break
			}
		}
	}
	return nil
}

func clearCacheCommand(t *Term, args string) error {
	t.m.ClearCache()
	return nil
}

func cleanCommand(t *Term, args string) error {
	t.m.Clean()
	return nil
}

func classesCommand(t *Term, args string) error {
	img, err := t.m.Root()
	if err != nil {
		return err
	}
	t.stdout.pager.Watch()
	for _, name := range img.Complete(args) {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func searchCommand(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: search <pattern>")
	}
	img, err := t.m.Root()
	if err != nil {
		return err
	}
	t.stdout.pager.Watch()
	for _, name := range img.Search(args) {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func fieldsCommand(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: fields <class>")
	}
	t.m.ClearCache()
	img, err := t.m.Root()
	if err != nil {
		return err
	}
	infos, err := starbind.ClassFields(img, args)
	if err != nil {
		return err
	}
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, f := range infos {
		static := ""
		if f.Static {
			static = "static"
		}
		fmt.Fprintf(w, "%#x\t%s\t%s\t%s\t%s\n", f.Offset, static, f.Tag, f.Name, f.Type)
	}
	return w.Flush()
}

func printCommand(t *Term, args string) error {
	const usage = "wrong number of arguments: print [-d <depth>] <class> <field> [<field>|<index>...]"
	words, err := splitArgs(args)
	if err != nil {
		return err
	}
	depth := 1
	if len(words) >= 2 && words[0] == "-d" {
		depth, err = strconv.Atoi(words[1])
		if err != nil || depth < 0 {
			return fmt.Errorf("invalid depth %q", words[1])
		}
		words = words[2:]
	}
	if len(words) < 2 {
		return errors.New(usage)
	}

	t.m.ClearCache()
	img, err := t.m.Root()
	if err != nil {
		return err
	}
	v, err := img.StaticValue(words[0], words[1])
	if err != nil {
		return err
	}
	v, err = followPath(v, words[2:])
	if err != nil {
		return err
	}
	t.stdout.pager.Watch()
	t.printValue(v, depth, "")
	fmt.Fprintln(t.stdout)
	return nil
}

// followPath walks path from v. Numeric elements index arrays, the others
// name instance fields.
func followPath(v mono.Value, path []string) (mono.Value, error) {
	for i, elem := range path {
		var err error
		if n, aerr := strconv.Atoi(elem); aerr == nil && v.Kind() == mono.KindArray {
			v, err = v.Index(n)
		} else {
			v, err = v.Field(elem)
		}
		if err != nil {
			return mono.Value{}, fmt.Errorf("%s: %w", strings.Join(path[:i+1], "."), err)
		}
	}
	return v, nil
}

// printValue prints v expanding objects, structs and arrays depth levels
// deep. Arrays print at most max-array-values elements.
func (t *Term) printValue(v mono.Value, depth int, indent string) {
	switch v.Kind() {
	case mono.KindObject, mono.KindStruct:
		fmt.Fprint(t.stdout, t.highlight(ansiBlue, v.String()))
		if depth <= 0 {
			return
		}
		var fields []mono.NamedValue
		var err error
		if o, ok := v.AsObject(); ok {
			fields, err = o.Fields()
		} else {
			s, _ := v.AsStruct()
			fields, err = s.Fields()
		}
		if err != nil {
			fmt.Fprintf(t.stdout, " <%v>", err)
			return
		}
		fmt.Fprintln(t.stdout, " {")
		for _, f := range fields {
			fmt.Fprintf(t.stdout, "%s\t%s: ", indent, f.Name)
			if f.Err != nil {
				fmt.Fprintf(t.stdout, "<%v>", f.Err)
			} else {
				t.printValue(f.Value, depth-1, indent+"\t")
			}
			fmt.Fprintln(t.stdout)
		}
		fmt.Fprintf(t.stdout, "%s}", indent)
	case mono.KindArray:
		fmt.Fprint(t.stdout, v.String())
		if depth <= 0 {
			return
		}
		elems := v.Array()
		n := t.conf.MaxArrayValues
		if n <= 0 || n > len(elems) {
			n = len(elems)
		}
		fmt.Fprint(t.stdout, "[")
		for i, el := range elems[:n] {
			if i > 0 {
				fmt.Fprint(t.stdout, ", ")
			}
			t.printValue(el, depth-1, indent)
		}
		if n < len(elems) {
			fmt.Fprintf(t.stdout, ", ...+%d more", len(elems)-n)
		}
		fmt.Fprint(t.stdout, "]")
	default:
		fmt.Fprint(t.stdout, v.String())
	}
}

// printYAML prints the result of an extraction.
func (t *Term) printYAML(v interface{}) error {
	buf, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	t.stdout.pager.Watch()
	_, err = t.stdout.Write(buf)
	return err
}

func collectionCommand(t *Term, args string) error {
	cards, err := hearthstone.GetCollection(t.m)
	if err != nil {
		return err
	}
	return t.printYAML(cards)
}

func decksCommand(t *Term, args string) error {
	decks, err := hearthstone.GetDecks(t.m)
	if err != nil {
		return err
	}
	return t.printYAML(decks)
}

func arenaCommand(t *Term, args string) error {
	switch args {
	case "":
		info, err := hearthstone.GetArenaDeck(t.m)
		if err != nil {
			return err
		}
		return t.printYAML(info)
	case "-choices":
		cards, err := hearthstone.GetArenaDraftChoices(t.m)
		if err != nil {
			return err
		}
		return t.printYAML(cards)
	}
	return errors.New("wrong arguments: arena [-choices]")
}

func matchCommand(t *Term, args string) error {
	info, err := hearthstone.GetMatchInfo(t.m)
	if err != nil {
		return err
	}
	return t.printYAML(info)
}

func gameTypeCommand(t *Term, args string) error {
	gt, err := hearthstone.GetGameType(t.m)
	if err != nil {
		return err
	}
	spectating, err := hearthstone.IsSpectating(t.m)
	if err != nil {
		return err
	}
	deck, err := hearthstone.GetSelectedDeckInMenu(t.m)
	if err != nil {
		return err
	}
	return t.printYAML(struct {
		GameType     int   `yaml:"game-type"`
		Spectating   bool  `yaml:"spectating"`
		SelectedDeck int64 `yaml:"selected-deck"`
	}{gt, spectating, deck})
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}

	if filepath.Ext(args) == ".star" {
		t.m.ClearCache()
		_, err := t.starlarkEnv.Execute(args, nil, "main", nil)
		return err
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	return c.executeFile(t, args)
}

func transcriptCommand(t *Term, args string) error {
	argv := strings.Fields(args)
	truncate := false
	fileOnly := false
	disable := false
	path := ""
	for _, arg := range argv {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			}
			path = arg
		}
	}

	if disable {
		if path != "" {
			return errors.New("-off option specified with an output path")
		}
		return t.stdout.StopTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	header := fmt.Sprintf("# %s session\n", t.m.Config().ProcessName)
	if err := t.stdout.StartTranscript(fh, fileOnly, header); err != nil {
		fh.Close()
		return err
	}
	return nil
}

// ExitRequestError is returned when the user
// exits the terminal.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
