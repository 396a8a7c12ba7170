// Package project holds the narrow task model shared by the mirror and the
// updater, and a lossless-enough XML document for project files.
//
// The document keeps every element and attribute it does not understand, so
// re-serializing a parsed file only changes what the task rows changed.
package project
