package compose

import (
	"context"
)

type cycle int

const cycleKey cycle = 0

// inFlight is the chain of claims held by one resolution, carried through the context. Claims are
// keyed by (scope, part) for shared activations and by the reference itself for deferred ones.
type inFlight struct {
	key    any
	part   PartID
	parent *inFlight
}

type claimKey struct {
	scope *Scope
	part  PartID
}

func currentClaims(ctx context.Context) *inFlight {
	f, _ := ctx.Value(cycleKey).(*inFlight)
	return f
}

// enterClaim records that this resolution chain is about to construct key. If the chain already
// holds that claim, waiting for it would deadlock, so a cycle error is returned instead.
func enterClaim(ctx context.Context, key any, part PartID) (context.Context, error) {
	head := currentClaims(ctx)
	for f := head; f != nil; f = f.parent {
		if f.key == key {
			return nil, &CompositionError{
				Kind:    ErrCompositionCycle,
				Message: "activation re-entered a construction that is still in progress",
				Part:    part,
				Path:    head.path(part),
			}
		}
	}
	return context.WithValue(ctx, cycleKey, &inFlight{key: key, part: part, parent: head}), nil
}

func (f *inFlight) path(closing PartID) []PartID {
	var rev []PartID
	for cur := f; cur != nil; cur = cur.parent {
		rev = append(rev, cur.part)
	}
	out := make([]PartID, 0, len(rev)+1)
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return append(out, closing)
}
