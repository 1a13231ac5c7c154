package v0

// ConvertSpec v0: minimal contract for the HTTP renderer.
// The renderer shares the worker's filesystem; every path is absolute.
// - job_id: job identifier, for the renderer's own logs
// - source_path: fetched input document
// - kind: document | presentation | spreadsheet
// - format: pdf | html
// - output: where the renderer must write the artifact and, for html, its assets
type ConvertSpec struct {
	JobID      string `json:"job_id"`
	SourcePath string `json:"source_path"`
	Kind       string `json:"kind"`
	Format     string `json:"format"`
	Output     struct {
		Path      string `json:"path"`
		AssetsDir string `json:"assets_dir,omitempty"`
	} `json:"output"`
}

// ErrorBody is what the renderer answers with on a non-2xx status.
type ErrorBody struct {
	Error string `json:"error"`
}
