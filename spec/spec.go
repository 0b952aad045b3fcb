// Package spec embeds the OpenAPI contract of the remote marker store.
// The fake store in testutil serves it at /openapi.yaml; its tests check that
// every route the fake answers is declared there.
package spec

import _ "embed"

// OpenAPI contains the raw bytes of openapi.yaml, embedded at compile time.
//
//go:embed openapi.yaml
var OpenAPI []byte
