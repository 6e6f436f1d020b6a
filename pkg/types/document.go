// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Document is the plain text of one publication, ready for prompting.
type Document struct {
	// ID names the publication, usually the source file name without extension.
	ID string `json:"id" yaml:"id"`

	// Path is the source file the text came from, if any.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Text is the full UTF-8 text of the publication.
	Text string `json:"text" yaml:"text"`

	// Tables optionally holds the publication's tables as delimited rows.
	Tables string `json:"tables,omitempty" yaml:"tables,omitempty"`
}
