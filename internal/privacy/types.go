package privacy

// Finding summarizes the matches for one category within a single call.
// Only counts are recorded; matched text never leaves the pipeline.
type Finding struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Result is the outcome of a successful masking call.
type Result struct {
	Text     string    `json:"text"`
	Warned   bool      `json:"warned"`
	Findings []Finding `json:"findings,omitempty"`
}
