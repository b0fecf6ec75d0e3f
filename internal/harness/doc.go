// Package harness runs YAML conformance scenarios against the block
// service.
//
// A scenario starts a fresh service with an inline config, drives it
// through a flow of calls, then checks the emitted i3bar stream and the
// journaled call trace.
//
// # Scenario Format
//
//	name: instance_overrides
//	description: "Instance sections beat block sections"
//	config: |
//	  disk:
//	    color: "#ffffff"
//	    /home: {color: "#ff0000"}
//	generators: [disk]
//	flow:
//	  - show: {name: disk, instance: /home, full_text: "92%"}
//	  - show: {name: disk, align: diagonal}
//	    expect_error: align
//	  - get_config: disk
//	    expect: '{"/home":{"color":"#ff0000"},"color":"#ffffff"}'
//	  - reload: |
//	      general: {order: [clock, disk]}
//	assertions:
//	  - type: line_count
//	    count: 1
//	  - type: last_line
//	    blocks: ["disk[/home]"]
//	  - type: block_fields
//	    block: disk
//	    instance: /home
//	    expect: {color: "#ff0000"}
//	  - type: trace_count
//	    op: show_block
//	    count: 2
//
// # Assertion Types
//
//   - line_count: number of status lines after the preamble
//   - last_line: block keys (name or name[instance]) of the final line, in order
//   - block_fields: subset match of one block in the final line
//   - trace_count: journaled calls of one operation
//   - trace_order: operations appear in this order in the journal
//
// # Deterministic Testing
//
// Sessions get sequential ids, the journal is in-memory and generators are
// recorded instead of started, so the stream is byte-for-byte stable and
// can be compared against golden files with RunWithGolden.
package harness
