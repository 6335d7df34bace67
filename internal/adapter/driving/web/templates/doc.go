// Package templates holds the templ components that render storepanel pages.
// The *_templ.go files are generated from the .templ sources; edit those.
package templates

//go:generate go tool templ generate
