package web

import "embed"

// FS contains the monitor page served at "/".
//
//go:embed index.html
var FS embed.FS
