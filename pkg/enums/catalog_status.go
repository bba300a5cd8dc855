package enums

import "fmt"

// CatalogStatus maps to the catalog_status enum in Postgres.
type CatalogStatus string

const (
	CatalogStatusDraft     CatalogStatus = "draft"
	CatalogStatusPublished CatalogStatus = "published"
	CatalogStatusArchived  CatalogStatus = "archived"
)

var validCatalogStatuses = []CatalogStatus{
	CatalogStatusDraft,
	CatalogStatusPublished,
	CatalogStatusArchived,
}

// IsValid reports whether the value matches the canonical catalog status enum.
func (s CatalogStatus) IsValid() bool {
	for _, candidate := range validCatalogStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCatalogStatus converts raw input into CatalogStatus.
func ParseCatalogStatus(value string) (CatalogStatus, error) {
	for _, candidate := range validCatalogStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid catalog status %q", value)
}
