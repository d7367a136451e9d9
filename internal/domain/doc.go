// Package domain holds the export request model, its parse-and-validate
// boundary and the error taxonomy shared by the pipeline and the HTTP layer.
// It stays free of transport (fiber) and infrastructure (storage) concerns.
package domain
