// Package ui embeds the drop page served at the root of the HTTP server.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var content embed.FS

// GetHandler serves the embedded drop page and its assets, rooted at "static".
func GetHandler() http.Handler {
	fsys, err := fs.Sub(content, "static")
	if err != nil {
		panic(err) // cannot happen with a valid embed pattern
	}
	return http.FileServer(http.FS(fsys))
}
