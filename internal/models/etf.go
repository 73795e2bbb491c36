package models

import "time"

// ETF is a registered Taiwan-listed exchange-traded fund. The exchange ticker
// (Symbol) is the primary key; every snapshot, change record and scrape run
// references it.
type ETF struct {
	Symbol    string     `json:"symbol" db:"symbol"`
	Name      string     `json:"name" db:"name"`
	Provider  string     `json:"provider" db:"provider"`
	Type      string     `json:"type" db:"type"`
	SourceURL string     `json:"sourceUrl" db:"source_url"`
	ListedAt  *time.Time `json:"listedAt,omitempty" db:"listed_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}
