package ticket

import "strings"

// PackageSelectorCommand asks the chat to render package-selection controls locally.
const PackageSelectorCommand = "/packages"

// ActionPackageSelector tags a synthesized message carrying the package list.
const ActionPackageSelector = "package_selector"

// QuoteMarker is the plan-type value that means no package applies.
const QuoteMarker = "quote"

// Package is a pricing tier a ticket may be pinned to.
type Package struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    string   `json:"price,omitempty"`
	Features []string `json:"features,omitempty"`
}

// DefaultCatalog lists the tiers offered on the site.
var DefaultCatalog = []Package{
	{ID: "starter", Name: "Starter", Price: "$499", Features: []string{"Landing page", "Token info section", "1 revision"}},
	{ID: "growth", Name: "Growth", Price: "$1,499", Features: []string{"Multi-page site", "Wallet connect", "3 revisions"}},
	{ID: "premium", Name: "Premium", Price: "$3,999", Features: []string{"Custom dApp UI", "Tokenomics charts", "Priority support"}},
}

var planMarkerFields = map[string]struct{}{
	"type":    {},
	"package": {},
	"plan":    {},
}

// IsPackageSelectorRequest reports whether content is the package-selection command.
func IsPackageSelectorRequest(content string) bool {
	return strings.EqualFold(strings.TrimSpace(content), PackageSelectorCommand)
}

// FindPackage looks a package up by id or name.
func FindPackage(catalog []Package, value string) (Package, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Package{}, false
	}
	for _, pkg := range catalog {
		if strings.EqualFold(pkg.ID, value) || strings.EqualFold(pkg.Name, value) {
			return pkg, true
		}
	}
	return Package{}, false
}

// InferPackage scans the first system notice for a plan-type marker. A "quote" marker, a missing
// marker or an unknown value yield no package.
func InferPackage(msgs []Message, catalog []Package) (Package, bool) {
	for _, msg := range msgs {
		if msg.Role != RoleSystem {
			continue
		}
		for _, field := range msg.Fields {
			if _, ok := planMarkerFields[strings.ToLower(strings.TrimSpace(field.Name))]; !ok {
				continue
			}
			value := strings.TrimSpace(field.Value)
			if strings.EqualFold(value, QuoteMarker) {
				return Package{}, false
			}
			return FindPackage(catalog, value)
		}
		return Package{}, false
	}
	return Package{}, false
}
