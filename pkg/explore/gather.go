package explore

import (
	"kcexplore/pkg/kconfig"
)

type choiceGroup struct {
	id      kconfig.NodeID
	members []kconfig.NodeID
}

type workload struct {
	booleans []kconfig.NodeID
	choices  []choiceGroup
	values   []kconfig.NodeID
}

// gather collects the options below the in-scope menus. Submenus offered to
// the directory stage are skipped; below menus at the depth limit the whole
// subtree is gathered. Prompt-less nodes are invisible and pruned with their
// subtrees.
func (e *Explorer) gather(scope []kconfig.NodeID) workload {
	var w workload
	inScope := make(map[kconfig.NodeID]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}
	depth := e.menuDepths(scope)
	seen := make(map[kconfig.NodeID]bool)

	for _, menu := range scope {
		stack := reverse(e.tree.Children(menu))
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[id] {
				continue
			}
			n := e.tree.Node(id)
			if n.Kind == kconfig.KindComment || !n.Visible() {
				continue
			}
			// menus offered to the directory stage were either selected or declined
			offered := inScope[n.Parent] && depth[n.Parent] < e.opts.MaxDepth
			if n.Kind == kconfig.KindMenu && (inScope[id] || offered) {
				continue
			}
			seen[id] = true

			switch {
			case n.Kind == kconfig.KindChoice:
				group := choiceGroup{id: id}
				for _, c := range e.tree.Children(id) {
					if m := e.tree.Node(c); m.Kind == kconfig.KindSymbol && m.Name != "" && m.Visible() {
						group.members = append(group.members, c)
						seen[c] = true
						// dependents of a member are ordinary options
						stack = append(stack, reverse(e.tree.Children(c))...)
					}
				}
				if len(group.members) > 0 {
					w.choices = append(w.choices, group)
				}
				continue
			case n.Name == "":
			case n.IsBoolean():
				w.booleans = append(w.booleans, id)
			case n.IsNumeric():
				w.values = append(w.values, id)
			}
			stack = append(stack, reverse(e.tree.Children(id))...)
		}
	}
	return w
}

// menuDepths counts selectable menu levels between the root and each scope menu.
func (e *Explorer) menuDepths(scope []kconfig.NodeID) map[kconfig.NodeID]int {
	root := e.tree.Root()
	out := make(map[kconfig.NodeID]int, len(scope))
	for _, id := range scope {
		d := 0
		for cur := id; cur != root && cur != kconfig.NoNode; cur = e.tree.Node(cur).Parent {
			if e.tree.Node(cur).Kind == kconfig.KindMenu {
				d++
			}
		}
		out[id] = d
	}
	return out
}

func reverse(ids []kconfig.NodeID) []kconfig.NodeID {
	out := make([]kconfig.NodeID, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
