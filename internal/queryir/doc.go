// Package queryir describes filtered loads of stored entities.
//
// A Select names one meta-type and an optional predicate over its
// single-valued fields. Predicates are built from Compare, IsNull and And;
// OR and predicates over SET, LIST or MAP fields are not expressible.
//
// Conditions usually arrive as text ("price>=10", "name=lamp") and are bound
// to typed predicates against the declared fields of the meta-type:
//
//	conds, _ := queryir.ParseConditions([]string{"price>=10", "tags!=null"})
//	pred, err := queryir.Bind(mt, conds)
//
// The querysql package compiles a bound predicate to a parameterized WHERE
// clause. Values are never interpolated into SQL.
//
// Predicate is a sealed interface; only types in this package implement it,
// so backend compilers can switch over it exhaustively.
package queryir
