package router

import "strings"

func (m *Manager) helpText(path []string) string {
	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		lines := []string{"Commands (use /help <cmd> for details):"}
		for _, name := range root.childNames() {
			n, _ := root.child(name)
			lines = append(lines, entry("/"+name, n))
		}
		return strings.Join(lines, "\n")
	}

	n := root.find(path)
	if n == nil {
		if len(path) == 1 {
			if leaf, ok := alias[path[0]]; ok && leaf.cmd != nil {
				return m.helpText(splitRoute(leaf.cmd.Route))
			}
		}
		return "command not found. try /help"
	}

	var lines []string
	if cmd := n.cmd; cmd != nil {
		lines = append(lines, "/"+cmd.Route, cmd.Description)
		if cmd.Usage != "" {
			lines = append(lines, "Usage: "+cmd.Usage)
		}
		if len(cmd.Aliases) > 0 {
			lines = append(lines, "Aliases: /"+strings.Join(cmd.Aliases, ", /"))
		}
	} else {
		lines = append(lines, "/"+strings.Join(path, " ")+" subcommands:")
	}
	if len(n.children) > 0 {
		if n.cmd != nil {
			lines = append(lines, "Subcommands:")
		}
		prefix := "/" + strings.Join(path, " ") + " "
		for _, child := range n.childNames() {
			cn, _ := n.child(child)
			lines = append(lines, entry(prefix+child, cn))
		}
	}
	return strings.Join(filterEmpty(lines), "\n")
}

func entry(label string, n *cmdNode) string {
	if len(n.children) > 0 && n.cmd == nil {
		label += " …"
	}
	if n.cmd != nil && n.cmd.Description != "" {
		return "- " + label + ": " + n.cmd.Description
	}
	return "- " + label
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
