package live

// subscription is one listener registration. A shallow subscription fires
// only when its exact container is a mutation target; a deep one fires when
// the target is the subscribed container or any descendant. Registrations
// stay active until explicitly unsubscribed.
type subscription struct {
	id     int
	target Container
	fn     func()
	deep   bool
}

// Unsubscribe removes a listener registration.
type Unsubscribe func()

// Subscribe registers a shallow listener on target.
func (d *Document) Subscribe(target Container, fn func()) Unsubscribe {
	return d.subscribe(target, fn, false)
}

// SubscribeDeep registers a listener firing for mutations anywhere in
// target's subtree.
func (d *Document) SubscribeDeep(target Container, fn func()) Unsubscribe {
	return d.subscribe(target, fn, true)
}

func (d *Document) subscribe(target Container, fn func(), deep bool) Unsubscribe {
	d.nextSubID++
	sub := &subscription{id: d.nextSubID, target: target, fn: fn, deep: deep}
	d.subs = append(d.subs, sub)
	return func() {
		for i, s := range d.subs {
			if s.id == sub.id {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// notify fires subscribers for one dispatch pass over the touched container
// set. This is the single dispatch primitive for both local calls (a
// one-element set, one pass per call) and remote/replayed batches (one pass
// per batch). Listeners never fire from inside the apply loop.
func (d *Document) notify(touched map[Container]struct{}) {
	if len(touched) == 0 || len(d.subs) == 0 {
		return
	}

	// Ancestor-or-self closure of the touched set: a deep subscriber fires
	// iff its target is in the closure.
	closure := make(map[Container]struct{}, len(touched))
	for c := range touched {
		for cur := c; cur != nil; {
			if _, seen := closure[cur]; seen {
				break
			}
			closure[cur] = struct{}{}
			cur = cur.nodeRef().parent
		}
	}

	// Snapshot the registry so listeners that unsubscribe (or subscribe)
	// during dispatch do not disturb this pass.
	pass := make([]*subscription, len(d.subs))
	copy(pass, d.subs)

	for _, sub := range pass {
		if sub.deep {
			if _, ok := closure[sub.target]; ok {
				sub.fn()
			}
		} else if _, ok := touched[sub.target]; ok {
			sub.fn()
		}
	}
}
