// Package domain contains the shared value types of the shopping pipeline
// (aesthetic analyses, products) and the error taxonomy used to classify
// failures of remote calls. It has no dependencies on transport or storage.
package domain
