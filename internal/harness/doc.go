// Package harness runs scripted access scenarios against a live entity
// store and its SQL persistence.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: restock
//	description: "CHANGE treats an unset counter as zero"
//	types:
//	  - ../types/shop.yaml
//	setup:
//	  - {op: create, unit: shop, type: product, as: lamp}
//	steps:
//	  - op: change
//	    entity: lamp
//	    field: stock
//	    value: 5
//	    expect: {value: 5}
//	  - op: flush
//	  - op: reload
//	assertions:
//	  - {type: value, entity: lamp, field: stock, equals: 5}
//	  - {type: state, entity: lamp, state: saved}
//
// Steps name an access operation (set, add, get, peek, visit, change, del,
// walk) or one of the harness operations:
//
//   - create: allocate an entity of unit/type and remember it under "as"
//   - flush: run a persistence pass over pending entities
//   - reload: drop the entity store and load everything back from storage
//
// Entities are addressed by the alias they were created under, optionally
// followed by a field, a list index and a map key. "scope: unit:type"
// addresses every loaded entity of a type for visit steps.
//
// # Assertion Types
//
//   - value: the value at entity/field equals "equals" (null means unset)
//   - count: the number of loaded entities in "scope" not marked deleted
//   - state: the persistence state of an entity (uncommitted, dirty, saved, deleted)
//   - notified: the number of change notifications an entity produced
//
// # Deterministic Testing
//
// Every run uses a fresh SQLite database in a temporary directory, numbers
// steps with a logical clock and names persistence passes "pass-N", so the
// same scenario always yields the same trace. RunWithGolden compares the
// trace and final entity state against testdata/golden/{name}.golden.
package harness
