// Package detection provides the interfaces and error types for the
// external collaborators of the labeling pipeline: the vision model that
// detects objects, the refinement pass that classifies traffic signs, the
// sampled model review, and the frame extractor. It keeps the pipeline core
// decoupled from any concrete provider or tool.
package detection
