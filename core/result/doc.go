// Package result provides the tri-state outcome of decoding a store snapshot
// into a typed value, and stream combinators operating on streams of outcomes.
//
// A [Result] is either a success carrying a value, or a failure carrying a
// [DecodeError]. One failure kind, [KindNoValuePresent], denotes that nothing
// exists at the requested path. The combinators in this package treat it as a
// legitimate value ("empty") where the other kinds are genuine failures:
//
//	values := result.IfPresent(service.ObserveDocument(svc, userPath))
//	sub, err := values.Subscribe(ctx, func(u *User) {
//	    if u == nil {
//	        // user was deleted or never existed
//	    }
//	})
package result
