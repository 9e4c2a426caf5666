// Package path provides typed addresses into a hierarchical document store.
//
// A [Document] path has an even number of segments (collection/id pairs) and
// resolves to one value of type T. A [Collection] path has an odd number of
// segments and resolves to the set of documents directly below it.
//
//	users := path.MustColl[User]("users")
//	alice := users.Doc("alice")            // users/alice
//	posts := path.SubCollection[Post](alice, "posts") // users/alice/posts
package path
