// Package block defines the Block record shown on the status line.
//
// A Block is a typed record with one validation function per field. All
// ingestion paths (RPC calls, configuration overrides) go through Set, so a
// value that reaches a Block has already been checked.
//
// # Keys
//
// Field names follow the i3bar protocol. Hyphenated spellings are accepted
// on input and stored under the underscored name:
//
//	min-width             -> min_width
//	separator-block-width -> separator_block_width
//
// Keys starting with "_" are vendor extensions. They are kept verbatim and
// emitted after the standard fields. Any other unknown key is rejected.
//
// # Identity
//
// Two blocks with the same (name, instance) Key describe the same slot on
// the bar. Text fields are NFC-normalized on the way in, so Equal compares
// canonical forms.
package block
