// Package keys maps entities to the cache keys a mutation must touch.
//
// An entity is usually visible under several keys at once: by its own id, by a
// parent id, by a compound parent plus actor id, and sometimes by a denormalized
// table view. A Composer lists every one of those shapes for a category so that
// none is forgotten:
//
//	annotations := keys.NewComposer("annotation",
//		keys.Shape[Annotation]{Name: "by-id", AfterResponse: true, Key: byID},
//		keys.Shape[Annotation]{Name: "by-sdoc-user", Key: bySdocUser},
//		keys.Shape[Annotation]{Name: "table", Invalidate: true, Key: byProject},
//	)
//
// Shapes marked AfterResponse are written only once the server result is known.
// Shapes marked Invalidate are marked stale rather than patched. Group splits a
// bulk result by every distinct key it touches.
package keys
