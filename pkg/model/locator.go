package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LocatorType discriminates the locator union.
type LocatorType string

const (
	LocatorHeadingPath LocatorType = "heading_path"
	LocatorCSSSelector LocatorType = "css_selector"
	LocatorXPath       LocatorType = "xpath"
	LocatorURLFragment LocatorType = "url_fragment"
	LocatorPDFPage     LocatorType = "pdf_page"
)

// discriminant maps each locator type to its single payload field.
var discriminant = map[LocatorType]string{
	LocatorHeadingPath: "heading_path",
	LocatorCSSSelector: "css_selector",
	LocatorXPath:       "xpath",
	LocatorURLFragment: "url_fragment",
	LocatorPDFPage:     "pdf_page",
}

// Locator identifies where in a source page a citation points. It is a
// strict tagged union: a serialized locator carries "type" plus exactly the
// one payload field that type declares, and nothing else.
type Locator struct {
	Type        LocatorType
	HeadingPath []string
	CSSSelector string
	XPath       string
	URLFragment string
	PDFPage     int
}

// Validate checks union integrity: known type and a non-empty payload.
func (l Locator) Validate() error {
	switch l.Type {
	case LocatorHeadingPath:
		if len(l.HeadingPath) == 0 {
			return fmt.Errorf("locator heading_path: empty path")
		}
	case LocatorCSSSelector:
		if l.CSSSelector == "" {
			return fmt.Errorf("locator css_selector: empty selector")
		}
	case LocatorXPath:
		if l.XPath == "" {
			return fmt.Errorf("locator xpath: empty expression")
		}
	case LocatorURLFragment:
		if l.URLFragment == "" {
			return fmt.Errorf("locator url_fragment: empty fragment")
		}
	case LocatorPDFPage:
		if l.PDFPage < 1 {
			return fmt.Errorf("locator pdf_page: page must be >= 1, got %d", l.PDFPage)
		}
	default:
		return fmt.Errorf("locator: unknown type %q", l.Type)
	}
	return nil
}

// MarshalJSON emits the union as {"type": …, <payload field>: …}.
func (l Locator) MarshalJSON() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	out := map[string]any{"type": string(l.Type)}
	switch l.Type {
	case LocatorHeadingPath:
		out["heading_path"] = l.HeadingPath
	case LocatorCSSSelector:
		out["css_selector"] = l.CSSSelector
	case LocatorXPath:
		out["xpath"] = l.XPath
	case LocatorURLFragment:
		out["url_fragment"] = l.URLFragment
	case LocatorPDFPage:
		out["pdf_page"] = l.PDFPage
	}
	return json.Marshal(out)
}

// UnmarshalJSON enforces the exactly-one-discriminant rule: a locator with a
// missing payload, the wrong payload field, or any extra field is rejected.
func (l *Locator) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("locator: %w", err)
	}

	typeRaw, ok := raw["type"]
	if !ok {
		return fmt.Errorf("locator: missing type")
	}
	var lt LocatorType
	if err := json.Unmarshal(typeRaw, &lt); err != nil {
		return fmt.Errorf("locator type: %w", err)
	}
	field, known := discriminant[lt]
	if !known {
		return fmt.Errorf("locator: unknown type %q", lt)
	}

	payload, ok := raw[field]
	if !ok {
		return fmt.Errorf("locator %s: missing %s", lt, field)
	}
	if len(raw) != 2 {
		for k := range raw {
			if k != "type" && k != field {
				return fmt.Errorf("locator %s: unexpected field %q", lt, k)
			}
		}
	}

	out := Locator{Type: lt}
	var err error
	switch lt {
	case LocatorHeadingPath:
		err = json.Unmarshal(payload, &out.HeadingPath)
	case LocatorCSSSelector:
		err = json.Unmarshal(payload, &out.CSSSelector)
	case LocatorXPath:
		err = json.Unmarshal(payload, &out.XPath)
	case LocatorURLFragment:
		err = json.Unmarshal(payload, &out.URLFragment)
	case LocatorPDFPage:
		err = json.Unmarshal(payload, &out.PDFPage)
	}
	if err != nil {
		return fmt.Errorf("locator %s: %w", lt, err)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*l = out
	return nil
}

// Humanize renders the locator for end users; internal prefixes never
// appear in the output.
func (l Locator) Humanize() string {
	switch l.Type {
	case LocatorHeadingPath:
		return "Section: " + strings.Join(l.HeadingPath, " > ")
	case LocatorCSSSelector:
		return "Element: " + l.CSSSelector
	case LocatorXPath:
		return "Element: " + l.XPath
	case LocatorURLFragment:
		return "Fragment: " + l.URLFragment
	case LocatorPDFPage:
		return fmt.Sprintf("PDF page %d", l.PDFPage)
	default:
		return ""
	}
}
