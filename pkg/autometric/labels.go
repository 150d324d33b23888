package autometric

import "github.com/jt828/go-autometric/pkg/observability"

// Labels is a set of metric dimensions.
type Labels map[string]string

// ComposeLabels merges sources into a new set. Later sources win on key
// collisions; nil sources count as empty. The inputs are never modified.
func ComposeLabels(sources ...Labels) Labels {
	n := 0
	for _, s := range sources {
		n += len(s)
	}
	out := make(Labels, n)
	for _, s := range sources {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

func (l Labels) Clone() Labels {
	return ComposeLabels(l)
}

func (l Labels) toObservability() []observability.Label {
	out := make([]observability.Label, 0, len(l))
	for k, v := range l {
		out = append(out, observability.Label{Key: k, Value: v})
	}
	return out
}

// applyRewrite hands a copy of current to rewrite and merges the result back
// over current. A rewrite can overwrite keys but cannot remove them.
func applyRewrite(current Labels, rewrite func(Labels) Labels) Labels {
	if rewrite == nil {
		return current
	}
	return ComposeLabels(current, rewrite(current.Clone()))
}
