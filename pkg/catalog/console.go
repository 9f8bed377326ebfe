package catalog

import (
	"fmt"
	"strings"
)

// CommandKind enumerates the console grammar's verbs (spec §6).
type CommandKind int

const (
	CmdHelp CommandKind = iota
	CmdVersion
	CmdUptime
	CmdTableList
	CmdTableDescribe
	CmdTableGet
	CmdTableSet
)

// ConsoleCommand is a parsed console line, ready for a front-end to
// execute against a Registry. No front-end is shipped in this repository
// (spec §1 Non-goals); this type and ParseConsoleCommand exist so one can
// be built against a tested, conformant grammar.
type ConsoleCommand struct {
	Kind  CommandKind
	Table string
	Field string
	Value string
}

// ParseConsoleCommand parses one line of the console grammar: `help|?`,
// `version`, `uptime`, and
// `database table {list|describe <t>|get <t>.<f>|set <t>.<f> <v>}`.
// Each token must be its full word or one fixed short form (`d`, `t`,
// `l`, `desc`, `g`, `s`); other prefixes such as `data` or `lis` are
// rejected.
func ParseConsoleCommand(line string) (ConsoleCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ConsoleCommand{}, fmt.Errorf("catalog: empty command")
	}

	switch fields[0] {
	case "help", "?":
		return ConsoleCommand{Kind: CmdHelp}, nil
	case "version":
		return ConsoleCommand{Kind: CmdVersion}, nil
	case "uptime":
		return ConsoleCommand{Kind: CmdUptime}, nil
	case "database", "d":
		return parseDatabaseCommand(fields[1:])
	default:
		return ConsoleCommand{}, fmt.Errorf("catalog: unrecognized command %q", fields[0])
	}
}

func parseDatabaseCommand(rest []string) (ConsoleCommand, error) {
	if len(rest) == 0 || (rest[0] != "table" && rest[0] != "t") {
		return ConsoleCommand{}, fmt.Errorf("catalog: expected \"table\" after \"database\"")
	}
	rest = rest[1:]
	if len(rest) == 0 {
		return ConsoleCommand{}, fmt.Errorf("catalog: expected a table subcommand")
	}

	switch rest[0] {
	case "list", "l":
		return ConsoleCommand{Kind: CmdTableList}, nil
	case "describe", "desc":
		if len(rest) < 2 {
			return ConsoleCommand{}, fmt.Errorf("catalog: \"table describe\" requires a table name")
		}
		return ConsoleCommand{Kind: CmdTableDescribe, Table: rest[1]}, nil
	case "get", "g":
		if len(rest) < 2 {
			return ConsoleCommand{}, fmt.Errorf("catalog: \"table get\" requires <table>.<field>")
		}
		table, field, err := splitQualifiedName(rest[1])
		if err != nil {
			return ConsoleCommand{}, err
		}
		return ConsoleCommand{Kind: CmdTableGet, Table: table, Field: field}, nil
	case "set", "s":
		if len(rest) < 3 {
			return ConsoleCommand{}, fmt.Errorf("catalog: \"table set\" requires <table>.<field> <value>")
		}
		table, field, err := splitQualifiedName(rest[1])
		if err != nil {
			return ConsoleCommand{}, err
		}
		return ConsoleCommand{Kind: CmdTableSet, Table: table, Field: field, Value: rest[2]}, nil
	default:
		return ConsoleCommand{}, fmt.Errorf("catalog: unrecognized table subcommand %q", rest[0])
	}
}

func splitQualifiedName(s string) (table, field string, err error) {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return "", "", fmt.Errorf("catalog: expected <table>.<field>, got %q", s)
	}
	return s[:i], s[i+1:], nil
}
