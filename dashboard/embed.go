// Package dashboard provides the embedded web UI assets for entrywatch.
//
// The dashboard lists watched targets with their last status, streams
// changes over SSE, and raises a banner and opens the page when an alert
// fires. It is served by the server package at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Main dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
