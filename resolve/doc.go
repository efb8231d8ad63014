// Package resolve rewrites the symbolic $name references of a parsed module
// or script to numeric indices, mutating the AST in place.
//
// Parsing leaves every index reference symbolic so that names bound later in
// the source still resolve. This pass builds binding tables for each index
// space (types, functions, tables, memories, globals, element and data
// segments, plus per-function locals and labels) and settles every reference
// against them. Branch targets become relative depths counted from the
// innermost enclosing block.
//
// Resolution never stops at the first problem. Each unresolved name,
// duplicate binding, or out-of-range index appends one diagnostic to the
// caller's sink, and the pass keeps going so a single run reports everything
// it can find. The returned Result tells the caller whether the AST is now
// fully numeric; on error it may be partially rewritten and should be
// discarded.
package resolve
