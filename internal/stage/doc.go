// Package stage defines the provider contracts the conversion pipeline
// depends on and the health records providers report.
package stage
