// Package config loads the user configuration mapping.
//
// The file is a mapping with one reserved section, general, and one
// section per block name:
//
//	general:
//	  generators: [clock, disk]
//	  order: [disk, clock]
//	  color: "#cccccc"
//	clock:
//	  color: "#ffffff"
//	disk:
//	  min-width: 80
//	  /home:
//	    color: "#ff0000"
//
// A sub-mapping of a block section keyed by an instance name is that
// instance's section. The format is chosen by file extension: .toml is
// TOML, .json and .jsonc are JSON with comments, anything else is YAML.
//
// Every decoded document is checked against an embedded CUE schema before
// it is used. A Config is immutable once returned and safe to share.
package config
