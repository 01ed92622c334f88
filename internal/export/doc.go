// Package export packages completed conversions for download: PDF documents
// built from a preview and its markup, and XLSX job reports.
package export
