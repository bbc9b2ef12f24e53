// Package query builds OpenSearch LTR plugin request payloads: feature-logging
// queries that compute a feature set for a fixed list of documents, and rescore
// stages that apply a trained model to the top of a baseline result list.
package query

// Names fixed by the LTR plugin contract between the sltr clause and the
// ltr_log extension.
const (
	LoggedFeatureSetName = "logged_featureset"
	LogEntryName         = "log_entry"
)

// Feature-log defaults.
const (
	DefaultLogSize    = 200
	DefaultTermsField = "_id"
)

// Request is a search request body. Only the parts ltrkit produces are typed;
// the JSON encoding is the wire payload for the engine's _search API.
type Request struct {
	Size    int      `json:"size"`
	Query   Query    `json:"query"`
	Ext     *Ext     `json:"ext,omitempty"`
	Rescore *Rescore `json:"rescore,omitempty"`
}

// Query is the top-level query clause.
type Query struct {
	Bool *BoolQuery `json:"bool,omitempty"`
}

// BoolQuery holds filter-context clauses. Filter clauses never contribute to the score.
type BoolQuery struct {
	Filter []Clause `json:"filter"`
}

// Clause is one filter clause; exactly one field is set.
type Clause struct {
	Terms map[string][]string `json:"terms,omitempty"`
	SLTR  *SLTR               `json:"sltr,omitempty"`
}

// SLTR is the LTR plugin query. With FeatureSet it computes features, with
// Model it scores documents with a trained model.
type SLTR struct {
	Name       string         `json:"_name,omitempty"`
	FeatureSet string         `json:"featureset,omitempty"`
	Model      string         `json:"model,omitempty"`
	Store      string         `json:"store,omitempty"`
	Params     map[string]any `json:"params"`
}

// Ext is the search extension block.
type Ext struct {
	LTRLog LTRLog `json:"ltr_log"`
}

// LTRLog asks the engine to attach logged feature values to each hit.
type LTRLog struct {
	LogSpecs LogSpecs `json:"log_specs"`
}

// LogSpecs ties a log name to the named sltr query whose features are logged.
type LogSpecs struct {
	Name       string `json:"name"`
	NamedQuery string `json:"named_query"`
}

// FeatureLogParams describes a feature-logging query.
type FeatureLogParams struct {
	Query  string   `json:"query"`
	DocIDs []string `json:"doc_ids"`
	// ClickPriorQuery is accepted for the prior-click-history feature and is
	// not part of the request yet.
	ClickPriorQuery string `json:"click_prior_query,omitempty"`
	FeatureSet      string `json:"featureset"`
	Store           string `json:"store"`
	Size            int    `json:"size,omitempty"`
	TermsField      string `json:"terms_field,omitempty"`
}

// ApplyDefaults fills Size and TermsField.
func (p *FeatureLogParams) ApplyDefaults() {
	if p.Size <= 0 {
		p.Size = DefaultLogSize
	}
	if p.TermsField == "" {
		p.TermsField = DefaultTermsField
	}
}

// Truncates reports whether the engine will drop candidates because Size is
// smaller than the candidate list.
func (p *FeatureLogParams) Truncates() bool {
	size := p.Size
	if size <= 0 {
		size = DefaultLogSize
	}
	return size < len(p.DocIDs)
}

// BuildFeatureLog builds a filter-only request restricted to p.DocIDs that
// logs p.FeatureSet for every matching document. An empty DocIDs list matches
// nothing. Store and feature set names are resolved by the engine.
func BuildFeatureLog(p FeatureLogParams) Request {
	p.ApplyDefaults()

	ids := make([]string, len(p.DocIDs))
	copy(ids, p.DocIDs)

	return Request{
		Size: p.Size,
		Query: Query{
			Bool: &BoolQuery{
				Filter: []Clause{
					{Terms: map[string][]string{p.TermsField: ids}},
					{SLTR: &SLTR{
						Name:       LoggedFeatureSetName,
						FeatureSet: p.FeatureSet,
						Store:      p.Store,
						Params:     map[string]any{"keywords": p.Query},
					}},
				},
			},
		},
		Ext: &Ext{
			LTRLog: LTRLog{
				LogSpecs: LogSpecs{
					Name:       LogEntryName,
					NamedQuery: LoggedFeatureSetName,
				},
			},
		},
	}
}

// TermsIDs returns the document ids of the membership filter, or nil.
func (r *Request) TermsIDs() []string {
	if r.Query.Bool == nil {
		return nil
	}
	for _, c := range r.Query.Bool.Filter {
		for _, ids := range c.Terms {
			return ids
		}
	}
	return nil
}

// clone returns a copy of r that shares no maps, slices or pointers with it.
func (r Request) clone() Request {
	out := Request{Size: r.Size}
	if r.Query.Bool != nil {
		filter := make([]Clause, len(r.Query.Bool.Filter))
		for i, c := range r.Query.Bool.Filter {
			filter[i] = c.clone()
		}
		out.Query.Bool = &BoolQuery{Filter: filter}
	}
	if r.Ext != nil {
		ext := *r.Ext
		out.Ext = &ext
	}
	if r.Rescore != nil {
		rs := *r.Rescore
		rs.Query.RescoreQuery.SLTR.Params = cloneParams(rs.Query.RescoreQuery.SLTR.Params)
		out.Rescore = &rs
	}
	return out
}

func (c Clause) clone() Clause {
	var out Clause
	if c.Terms != nil {
		out.Terms = make(map[string][]string, len(c.Terms))
		for field, ids := range c.Terms {
			out.Terms[field] = append([]string(nil), ids...)
		}
	}
	if c.SLTR != nil {
		sltr := *c.SLTR
		sltr.Params = cloneParams(c.SLTR.Params)
		out.SLTR = &sltr
	}
	return out
}

// cloneParams copies an sltr params map. String slices are copied too;
// other values are scalars.
func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if ss, ok := v.([]string); ok {
			v = append([]string(nil), ss...)
		}
		out[k] = v
	}
	return out
}
