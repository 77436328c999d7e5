// Package entity implements the schema registry and the generic access
// engine of the object store.
//
// A Store holds every entity in an arena addressed by stable integer
// handles. The schema describes itself: units, meta-types and field
// descriptors are entities of the foundational "entity_meta" types, wired by
// hand at construction and then registered through the same path as caller
// types.
//
// All reads and writes go through Access with a typed Path:
//
//	s.Set(entity.Create("shop", "product").F("name"), ir.IRString("lamp"))
//	s.Add(p.Path().F("tags"), ir.IRString("red"))
//	s.Get(p.Path().F("category").F("name"), nil)
//
// A write that leaves the stored value unchanged is silent: the committed
// state does not move and no Change is sent to the Notifier.
package entity
