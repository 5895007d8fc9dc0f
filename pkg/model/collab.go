package model

// FetchResult is what the external fetcher returns for a crawled URL.
// The core never invokes the fetcher itself.
type FetchResult struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ExtractedStep is one heuristic step the external extractor found.
type ExtractedStep struct {
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// ExtractedFee is one fee table row the external extractor found.
type ExtractedFee struct {
	Label     string  `json:"label"`
	AmountBDT float64 `json:"amount_bdt"`
	Source    string  `json:"source,omitempty"`
}

// FAQPair is one question/answer pair the external extractor found.
type FAQPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExtractStats summarizes what the extractor produced.
type ExtractStats struct {
	StepsExtracted    int `json:"steps_extracted"`
	FeesExtracted     int `json:"fees_extracted"`
	FAQPairsExtracted int `json:"faq_pairs_extracted"`
	DocLinksFound     int `json:"doc_links_found"`
}

// ExtractResult is what the external extractor returns for one page.
type ExtractResult struct {
	Steps        []ExtractedStep `json:"steps"`
	FeeTable     []ExtractedFee  `json:"fee_table"`
	FAQPairs     []FAQPair       `json:"faq_pairs"`
	DocumentList []string        `json:"document_list"`
	Stats        ExtractStats    `json:"stats"`
}
