// Package schemas embeds the default option schema and the group-mode
// default table.
package schemas

import _ "embed"

// Attributes is the default option schema.
//
//go:embed attributes.yaml
var Attributes []byte

// GroupDefaults holds the defaults swapped in when group analysis is on.
//
//go:embed group_defaults.yaml
var GroupDefaults []byte
