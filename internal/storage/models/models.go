package models

import "time"

type Tenant struct {
	ID        string
	Slug      string
	Name      string
	CreatedAt time.Time
}

type TenantSettings struct {
	TenantID        string
	WelcomeMessage  string
	FallbackMessage string
	UpdatedAt       time.Time
}

type KnowledgeItem struct {
	ID        string
	TenantID  string
	URL       string
	Title     string
	Content   string
	CrawlRun  string
	CreatedAt time.Time
}

type ChatRecord struct {
	ID        string
	TenantID  string
	Message   string
	Response  string
	FromKB    bool
	LatencyMS int
	CreatedAt time.Time
}
