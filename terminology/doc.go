// Package terminology validates coded values against ValueSets and
// CodeSystems.
//
// The package provides:
//   - Store: an in-memory ValueSet/CodeSystem store. It answers both the
//     synchronous lookups the codec makes while decoding and the Provider
//     interface.
//   - Provider: the interface of an external terminology service.
//   - Cached and Chain: provider decorators for caching and fallback.
//   - Verify: checks every bound code of a decoded record against a Provider.
//
// Example usage:
//
//	store := terminology.NewStore()
//	store.LoadBindings(reg)
//	if _, err := store.LoadJSON(bundle); err != nil {
//		return err
//	}
//
//	res, err := terminology.Verify(ctx, terminology.NewCached(store, 1024), reg, rec)
package terminology
