package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"kycvault/pkg/domain"
)

// CatalogFile is the on-disk shape of the category and requirement overrides.
//
//	categories:
//	  - id: national_id
//	    name: National identity card
//	    allowed_mime_types: [application/pdf, image/jpeg]
//	    max_size: 10485760
//	    extraction_pattern: '\b\d{10}\b'
//	    extraction_field: national_id_number
//	requirements:
//	  individual: [national_id, proof_of_address]
type CatalogFile struct {
	Categories   []domain.Category              `yaml:"categories"`
	Requirements map[string][]domain.CategoryID `yaml:"requirements"`
}

// LoadCatalog reads and validates a catalog file. Every category ID named in a
// requirement set must be defined in the file or in defaults.
func LoadCatalog(path string, defaults domain.Catalog) (*CatalogFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var cf CatalogFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	known := make(map[domain.CategoryID]bool, len(defaults)+len(cf.Categories))
	for id := range defaults {
		known[id] = true
	}
	for _, c := range cf.Categories {
		if _, err := domain.ParseCategoryID(string(c.ID)); err != nil {
			return nil, fmt.Errorf("catalog category %q: %w", c.ID, err)
		}
		known[c.ID] = true
	}
	for role, ids := range cf.Requirements {
		if len(ids) == 0 {
			return nil, fmt.Errorf("requirement set %q is empty", role)
		}
		for _, id := range ids {
			if !known[id] {
				return nil, fmt.Errorf("requirement set %q references unknown category %q", role, id)
			}
		}
	}
	return &cf, nil
}

// Merge overlays the file's categories on top of base.
func (cf *CatalogFile) Merge(base domain.Catalog) domain.Catalog {
	out := make(domain.Catalog, len(base)+len(cf.Categories))
	for id, c := range base {
		out[id] = c
	}
	for _, c := range cf.Categories {
		out[c.ID] = c
	}
	return out
}
