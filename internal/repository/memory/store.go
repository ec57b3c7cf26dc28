// Package memory provides in-process implementations of the service
// repositories. It backs the service tests and single-node demo runs; every
// write happens under one mutex, so each repository call is atomic.
package memory

import (
	"slices"
	"sort"
	"sync"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

type sendKey struct {
	campaignID string
	stepOrder  int
	contactID  string
}

// Store holds all CRM state in maps guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex

	contacts  map[string]domain.Contact
	segments  map[string]*domain.Segment
	members   map[string][]string
	campaigns map[string]*domain.Campaign
	steps     map[string][]domain.CampaignStep
	sends     map[string]*domain.CampaignSend
	sendKeys  map[sendKey]string
	tracking  map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		contacts:  make(map[string]domain.Contact),
		segments:  make(map[string]*domain.Segment),
		members:   make(map[string][]string),
		campaigns: make(map[string]*domain.Campaign),
		steps:     make(map[string][]domain.CampaignStep),
		sends:     make(map[string]*domain.CampaignSend),
		sendKeys:  make(map[sendKey]string),
		tracking:  make(map[string]string),
	}
}

// PutContact inserts or replaces a contact.
func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

// DeleteContact removes a contact. Existing memberships keep pointing at it
// until the next refresh, as they would in the database.
func (s *Store) DeleteContact(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, id)
}

// PutSegment inserts or replaces a segment definition.
func (s *Store) PutSegment(seg domain.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg.Criteria = slices.Clone(seg.Criteria)
	s.segments[seg.ID] = &seg
}

// PutCampaign inserts or replaces a campaign and its steps.
func (s *Store) PutCampaign(c domain.Campaign, steps ...domain.CampaignStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = &c
	sorted := slices.Clone(steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })
	s.steps[c.ID] = sorted
}

// Segments returns the segment.Repository view of the store.
func (s *Store) Segments() *SegmentRepo { return &SegmentRepo{s: s} }

// Campaigns returns the campaign.Repository view of the store.
func (s *Store) Campaigns() *CampaignRepo { return &CampaignRepo{s: s} }

// Sends returns the send repository view, which also serves tracking.
func (s *Store) Sends() *SendRepo { return &SendRepo{s: s} }
