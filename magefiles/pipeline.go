//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Convert turns every PDF in input/ into Markdown under output/markdown/.
func Convert() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "convert", "--input", "input", "--output", "output/markdown")
}

// Extract runs a batch extraction over input/ and stores every record.
func Extract() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "batch", "--store")
}

// Ingest loads the record files in output/records/ into the store.
func Ingest() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "store", "ingest", "output/records")
}

// Export writes the store to output/trials.csv.
func Export() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "store", "export", "--format", "csv", "--out", "output/trials.csv")
}

// QC compares output/records/ against the curated records in reference/.
func QC() error {
	mg.Deps(Build)
	return sh.RunV(binPath, "qc", "output/records", "reference")
}
