package sparql

import "encoding/json"

// ResultsJSONType is the media type of the SPARQL 1.1 Query Results JSON
// Format.
const ResultsJSONType = "application/sparql-results+json"

// ResultSet is an application/sparql-results+json document. Bindings are
// kept as raw JSON: the chunk executor only ever counts and concatenates
// them, and re-encoding individual RDF terms would risk changing them.
type ResultSet struct {
	Head    Head     `json:"head"`
	Results *Results `json:"results,omitempty"`
	Boolean *bool    `json:"boolean,omitempty"`
}

type Head struct {
	Vars []string `json:"vars,omitempty"`
	Link []string `json:"link,omitempty"`
}

type Results struct {
	Bindings []json.RawMessage `json:"bindings"`
}

// BindingCount returns the number of solutions in the set.
func (rs *ResultSet) BindingCount() int {
	if rs.Results == nil {
		return 0
	}
	return len(rs.Results.Bindings)
}
