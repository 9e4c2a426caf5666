// Package service is the typed facade over a document store.
//
// Reads and writes are keyed by path descriptors that carry the value type,
// so a Document[User] always decodes into a User. Go methods cannot have
// type parameters, so the operations are package functions taking the
// Service as their first argument after the context.
//
// Shapes:
//   - FetchDocument / FetchCollection / FetchCollectionSlice return a
//     Deferred that rejects with a *result.DecodeError on any failure,
//     absence included.
//   - GetDocument treats absence as (nil, nil).
//   - ObserveDocument / ObserveCollection / ObserveCollectionSlice return
//     lazy streams of result.Result values.
//   - FetchCollection and ObserveCollection produce maps keyed by document
//     id and report an empty collection as NoValuePresent.
//     FetchCollectionSlice and ObserveCollectionSlice produce slices in
//     document id order and report an empty collection as an empty slice.
//
// Subscriptions are counted through [Metrics]; the stop is recorded when the
// subscription is cancelled, on the cancelling goroutine.
//
// # Usage
//
//	svc := service.New(store, service.WithLogger(log))
//	users := path.MustColl[User]("users")
//
//	if err := service.SetValue(ctx, svc, users.Doc("alice"), User{Name: "Alice"}); err != nil {
//	    return err
//	}
//	u, err := service.GetDocument(ctx, svc, users.Doc("alice"))
//
//	sub, err := result.IfPresent(service.ObserveCollectionSlice(svc, users)).
//	    Subscribe(ctx, func(all *[]User) { ... })
package service
