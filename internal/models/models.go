package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// We use 'db' tags for sqlx to map the snake_case columns of the donors
// table onto our Go fields, and 'json' tags for the API payloads.

// Tier is a named donation bracket.
type Tier string

const (
	TierSupporter Tier = "supporter"
	TierAdvocate  Tier = "advocate"
	TierChampion  Tier = "champion"
	TierFriend    Tier = "friend"
	TierBusiness  Tier = "business"
	TierEducation Tier = "education"
	TierCustom    Tier = "custom"
)

// Tiers lists every tier in display order.
var Tiers = []Tier{
	TierSupporter,
	TierFriend,
	TierAdvocate,
	TierChampion,
	TierEducation,
	TierBusiness,
	TierCustom,
}

// TierInfo is the donor-facing description of a tier.
type TierInfo struct {
	Tier            Tier            `json:"tier"`
	Title           string          `json:"title"`
	SuggestedAmount decimal.Decimal `json:"suggested_amount"`
	Perk            string          `json:"perk"`
}

var tierInfo = map[Tier]TierInfo{
	TierSupporter: {TierSupporter, "Supporter", decimal.NewFromInt(10), "Our thanks and a spot on the supporter wall"},
	TierFriend:    {TierFriend, "Friend", decimal.NewFromInt(25), "Quarterly impact newsletter"},
	TierAdvocate:  {TierAdvocate, "Advocate", decimal.NewFromInt(50), "Invitations to community meetups"},
	TierChampion:  {TierChampion, "Champion", decimal.NewFromInt(100), "Recognition in the annual report"},
	TierEducation: {TierEducation, "Education Sponsor", decimal.NewFromInt(250), "Sponsors one Bitcoin workshop seat"},
	TierBusiness:  {TierBusiness, "Business Partner", decimal.NewFromInt(500), "Listing in the merchant directory"},
	TierCustom:    {TierCustom, "Custom", decimal.Zero, "Give any amount you like"},
}

// Info returns the description of t. ok is false for unknown tiers.
func (t Tier) Info() (TierInfo, bool) {
	info, ok := tierInfo[t]
	return info, ok
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierInfo[t]
	return ok
}

// CustomAmount reports whether the donor picks the amount for this tier.
func (t Tier) CustomAmount() bool {
	return t == TierCustom
}

// DonationType tells whether the donor wants recognition and a receipt.
type DonationType string

const (
	DonationAnonymous DonationType = "anonymous"
	DonationNamed     DonationType = "named"
)

// DonationIntent is what the donor asked for before an invoice exists.
type DonationIntent struct {
	Amount       decimal.Decimal `json:"amount"`
	Tier         Tier            `json:"tier"`
	DonationType DonationType    `json:"donationType"`
	DonorName    string          `json:"name,omitempty"`
	DonorEmail   string          `json:"email,omitempty"`
}

// WantsReceipt reports whether a receipt may be sent for this donation.
func (d DonationIntent) WantsReceipt() bool {
	return d.DonationType == DonationNamed && d.DonorEmail != ""
}

// DonorRecord is the locally stored annotation of a processor invoice.
type DonorRecord struct {
	ID           int64           `db:"id" json:"id"`
	InvoiceID    string          `db:"invoice_id" json:"invoiceId"`
	Name         string          `db:"name" json:"name"`
	Email        string          `db:"email" json:"email,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Tier         Tier            `db:"tier" json:"tier"`
	DonationType DonationType    `db:"donation_type" json:"donationType"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Clone returns a copy of r.
func (r *DonorRecord) Clone() DonorRecord {
	return *r
}

// DonorStats aggregates every stored donor record regardless of type.
type DonorStats struct {
	TotalDonations int64           `db:"total_donations" json:"totalDonations"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"totalAmount"`
	NamedCount     int64           `db:"named_count" json:"namedCount"`
	AnonymousCount int64           `db:"anonymous_count" json:"anonymousCount"`
}
