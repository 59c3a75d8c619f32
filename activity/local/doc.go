// Package local implements the document listing and text extraction
// activities against a local directory tree, treating it as a flat blob
// container with slash-separated references.
package local
