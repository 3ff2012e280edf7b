package teamwork

// BuildTaskTree turns a flat task list into a forest. Roots are the tasks
// with an empty parent id; every other task hangs off the task whose id
// matches its parent id. Tasks whose parent is not in the list are dropped.
//
// Children keep their input order. The parent index is built once, so the
// whole tree costs O(n). Duplicate ids keep their first occurrence.
func BuildTaskTree(tasks []Task) []*Task {
	seen := make(map[string]bool, len(tasks))
	children := make(map[string][]*Task, len(tasks))
	var roots []*Task

	for i := range tasks {
		t := tasks[i]
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		node := &t
		node.ChildTasks = nil
		if node.Parent == "" {
			roots = append(roots, node)
			continue
		}
		children[node.Parent] = append(children[node.Parent], node)
	}

	for _, root := range roots {
		attachChildren(root, children)
	}
	if roots == nil {
		roots = []*Task{}
	}
	return roots
}

func attachChildren(node *Task, children map[string][]*Task) {
	node.ChildTasks = children[node.ID]
	if node.ChildTasks == nil {
		node.ChildTasks = []*Task{}
	}
	// Each node is claimed by exactly one parent, so no node is visited twice.
	delete(children, node.ID)
	for _, child := range node.ChildTasks {
		attachChildren(child, children)
	}
}

// Walk calls fn for every task in the forest, parents before children.
func Walk(forest []*Task, fn func(t *Task, depth int)) {
	var walk func(nodes []*Task, depth int)
	walk = func(nodes []*Task, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.ChildTasks, depth+1)
		}
	}
	walk(forest, 0)
}

// TotalEstimation sums the estimation of every task in the forest.
func TotalEstimation(forest []*Task) float64 {
	var total float64
	Walk(forest, func(t *Task, _ int) {
		total += t.Estimation
	})
	return total
}
