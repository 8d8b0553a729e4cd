// Package inference specifies only the interface boundary spec.md §1
// names for the inference runtime: "a session object with a run(frame)
// → tensor contract". The runtime itself is an external collaborator
// out of scope for this engine.
package inference

// Session runs one configured model against a preprocessed frame.
// Implementations own whatever runtime (ONNX, TensorRT, ...) the
// configured model_uri selects; this package only pins the contract
// the Worker loop calls through.
type Session interface {
	// Run executes the model on preprocessed input and returns an
	// opaque result, stored on the user-app as inference.results
	// (spec.md §4.6's field-injection contract) and cached across
	// skipped frames (spec.md §4.7).
	Run(frame any) (result any, err error)
}

// Config mirrors the worker.inference.* settings spec.md §4.2 enumerates,
// kept alongside Session since both describe the same external boundary.
type Config struct {
	ModelURI           string
	PreProcessModelURI string
	ForceOpsetVersion  int
	ForceIRVersion     int
	ImageShapeFormat   string
	ImageWidth         int
	ImageHeight        int
	ImageChannels      int
}

// Enabled reports whether a model is configured, per pkg/config's
// Inference.Enabled().
func (c Config) Enabled() bool {
	return c.ModelURI != ""
}
