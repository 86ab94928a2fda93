package clustering

// condensedCluster is a node of the condensed tree. Cluster 0 is the root.
type condensedCluster struct {
	parent   int
	birth    float64 // lambda at which the cluster split off its parent; 0 for the root
	children []int
	size     int
}

type condensedTree struct {
	clusters []condensedCluster
	// Per point: the cluster it falls out of and the lambda at which it does.
	pointCluster []int
	pointLambda  []float64
}

type frame struct {
	node    int
	cluster int
}

// condense walks the dendrogram top-down. A split where both sides have at least minClusterSize
// points creates two child clusters; otherwise the larger side keeps the parent's identity and the
// smaller side's points fall out at the split lambda. Merge distances below floor count as floor.
func condense(tree []linkage, n, minClusterSize int, floor float64) *condensedTree {
	ct := &condensedTree{
		clusters:     []condensedCluster{{parent: -1, size: n}},
		pointCluster: make([]int, n),
		pointLambda:  make([]float64, n),
	}

	root := len(tree) - 1
	stack := []frame{{node: root, cluster: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := tree[f.node]
		if node.left < 0 {
			ct.fallOut(tree, f.node, f.cluster, ct.clusters[f.cluster].birth)

			continue
		}

		lambda := 1 / max(node.dist, floor)
		left, right := tree[node.left], tree[node.right]

		switch {
		case left.size >= minClusterSize && right.size >= minClusterSize:
			l := ct.addCluster(f.cluster, lambda, left.size)
			r := ct.addCluster(f.cluster, lambda, right.size)
			// Right is pushed first so the left subtree is numbered first.
			stack = append(stack, frame{node: node.right, cluster: r}, frame{node: node.left, cluster: l})
		case left.size >= minClusterSize:
			ct.fallOut(tree, node.right, f.cluster, lambda)
			stack = append(stack, frame{node: node.left, cluster: f.cluster})
		case right.size >= minClusterSize:
			ct.fallOut(tree, node.left, f.cluster, lambda)
			stack = append(stack, frame{node: node.right, cluster: f.cluster})
		default:
			ct.fallOut(tree, node.left, f.cluster, lambda)
			ct.fallOut(tree, node.right, f.cluster, lambda)
		}
	}

	return ct
}

func (ct *condensedTree) addCluster(parent int, birth float64, size int) int {
	id := len(ct.clusters)
	ct.clusters = append(ct.clusters, condensedCluster{parent: parent, birth: birth, size: size})
	ct.clusters[parent].children = append(ct.clusters[parent].children, id)

	return id
}

// fallOut records every point under node as leaving cluster at lambda.
func (ct *condensedTree) fallOut(tree []linkage, node, cluster int, lambda float64) {
	stack := []int{node}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if tree[cur].left < 0 {
			ct.pointCluster[cur] = cluster
			ct.pointLambda[cur] = lambda

			continue
		}

		stack = append(stack, tree[cur].right, tree[cur].left)
	}
}

// stabilities returns sum over points and child clusters leaving c of (lambda - birth(c)) * size.
func (ct *condensedTree) stabilities() []float64 {
	stab := make([]float64, len(ct.clusters))

	for p, c := range ct.pointCluster {
		stab[c] += ct.pointLambda[p] - ct.clusters[c].birth
	}

	for id := 1; id < len(ct.clusters); id++ {
		c := ct.clusters[id]
		stab[c.parent] += float64(c.size) * (c.birth - ct.clusters[c.parent].birth)
	}

	return stab
}

// selectEOM picks the excess-of-mass clusters, never the root. Children always have larger ids than
// their parent, so a reverse scan visits children first.
func (ct *condensedTree) selectEOM() []bool {
	stab := ct.stabilities()
	subtree := make([]float64, len(ct.clusters))
	selected := make([]bool, len(ct.clusters))

	for id := len(ct.clusters) - 1; id >= 1; id-- {
		c := ct.clusters[id]
		if len(c.children) == 0 {
			selected[id] = true
			subtree[id] = stab[id]

			continue
		}

		var childSum float64
		for _, ch := range c.children {
			childSum += subtree[ch]
		}

		if childSum > stab[id] {
			subtree[id] = childSum

			continue
		}

		selected[id] = true
		subtree[id] = stab[id]
		ct.deselectDescendants(id, selected)
	}

	return selected
}

func (ct *condensedTree) deselectDescendants(id int, selected []bool) {
	stack := append([]int(nil), ct.clusters[id].children...)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		selected[cur] = false
		stack = append(stack, ct.clusters[cur].children...)
	}
}

// labelPoints returns, per point, the selected condensed cluster id (or Noise) and the membership
// probability min(lambda_p, lambda_max)/lambda_max within that cluster.
//
// When the root never splits into two clusters, the root is the only candidate. Its members are the
// points whose GLOSH outlier score 1 - lambda_p/lambda_max is at most outlierThreshold.
func (ct *condensedTree) labelPoints(outlierThreshold float64) ([]int, []float64) {
	n := len(ct.pointCluster)
	labels := make([]int, n)
	probs := make([]float64, n)

	if len(ct.clusters[0].children) == 0 {
		var lambdaMax float64
		for _, l := range ct.pointLambda {
			lambdaMax = max(lambdaMax, l)
		}

		for p := range n {
			ratio := membership(ct.pointLambda[p], lambdaMax)
			if 1-ratio <= outlierThreshold {
				labels[p] = 0
				probs[p] = ratio
			} else {
				labels[p] = Noise
			}
		}

		return labels, probs
	}

	selected := ct.selectEOM()
	lambdaMax := make(map[int]float64)

	for p := range n {
		labels[p] = Noise

		for c := ct.pointCluster[p]; c > 0; c = ct.clusters[c].parent {
			if selected[c] {
				labels[p] = c
				lambdaMax[c] = max(lambdaMax[c], ct.pointLambda[p])

				break
			}
		}
	}

	for p := range n {
		if labels[p] != Noise {
			probs[p] = membership(ct.pointLambda[p], lambdaMax[labels[p]])
		}
	}

	return labels, probs
}

func membership(lambda, lambdaMax float64) float64 {
	if lambdaMax <= 0 {
		return 1
	}

	return min(lambda, lambdaMax) / lambdaMax
}
