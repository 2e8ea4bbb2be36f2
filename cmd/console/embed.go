package main

import _ "embed"

// embeddedConfig is the console.yaml baked into the binary. It is layered
// over the defaults and under any external config file.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
