package config

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID         string // package identifier used in checkout metadata
	Name       string
	Credits    int   // credits granted on purchase
	PriceCents int64 // price in the smallest currency unit
	Currency   string
}

// BillingConfig holds the credit package catalog. Webhook reconciliation
// re-validates event metadata against this catalog, so the server is the
// source of truth for how many credits a package grants.
type BillingConfig struct {
	Packages []CreditPackage
}

// DefaultBillingConfig returns the default package catalog.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Packages: []CreditPackage{
			{ID: "starter", Name: "Starter", Credits: 20, PriceCents: 900, Currency: "usd"},
			{ID: "decorator", Name: "Decorator", Credits: 50, PriceCents: 1900, Currency: "usd"},
			{ID: "studio", Name: "Studio", Credits: 150, PriceCents: 4900, Currency: "usd"},
		},
	}
}

// GetPackage returns the package with the given ID, or nil if unknown.
func (c *BillingConfig) GetPackage(id string) *CreditPackage {
	for i := range c.Packages {
		if c.Packages[i].ID == id {
			return &c.Packages[i]
		}
	}
	return nil
}
