package domain

import "slices"

// Category describes one kind of document the system accepts.
type Category struct {
	ID               CategoryID `yaml:"id"`
	Name             string     `yaml:"name"`
	AllowedMIMETypes []string   `yaml:"allowed_mime_types"`
	MaxSize          int64      `yaml:"max_size"`
	// ExtractionPattern is an optional regular expression applied to the
	// document text; the first match is reported under ExtractionField.
	ExtractionPattern string `yaml:"extraction_pattern"`
	ExtractionField   string `yaml:"extraction_field"`
}

// Allows reports whether the category accepts mime. An empty list accepts anything
// the global allow-list accepts.
func (c Category) Allows(mime string) bool {
	return len(c.AllowedMIMETypes) == 0 || slices.Contains(c.AllowedMIMETypes, mime)
}

// Catalog indexes categories by ID.
type Catalog map[CategoryID]Category

func NewCatalog(categories ...Category) Catalog {
	c := make(Catalog, len(categories))
	for _, cat := range categories {
		c[cat.ID] = cat
	}
	return c
}

func (c Catalog) Lookup(id CategoryID) (Category, bool) {
	cat, ok := c[id]
	return cat, ok
}

// DefaultCatalog is the category set used when no catalog file is configured.
func DefaultCatalog() Catalog {
	docs := []string{"application/pdf", "image/jpeg", "image/png"}
	return NewCatalog(
		Category{
			ID: "national_id", Name: "National identity card", AllowedMIMETypes: docs, MaxSize: 10 << 20,
			ExtractionPattern: `\b\d{10}\b`, ExtractionField: "national_id_number",
		},
		Category{ID: "proof_of_address", Name: "Proof of address", AllowedMIMETypes: docs, MaxSize: 10 << 20},
		Category{ID: "selfie", Name: "Selfie with document", AllowedMIMETypes: []string{"image/jpeg", "image/png"}, MaxSize: 10 << 20},
		Category{ID: "business_registration", Name: "Business registration certificate", AllowedMIMETypes: docs, MaxSize: 20 << 20},
		Category{ID: "tax_certificate", Name: "Tax registration certificate", AllowedMIMETypes: docs, MaxSize: 20 << 20},
		Category{ID: "director_id", Name: "Director identity document", AllowedMIMETypes: docs, MaxSize: 10 << 20},
	)
}
