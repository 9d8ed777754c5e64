package merge

import (
	"time"

	"github.com/lherron/recmerge/internal/config"
	"github.com/lherron/recmerge/internal/domain"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ForeignKeys = map[string][]string{"deals": {"contactIds"}}
	return cfg
}

// crmFixture is two duplicate contacts with references spread over several
// collections, including singleton notification rows for both.
func crmFixture() map[string][]domain.Record {
	return map[string][]domain.Record{
		"contacts": {
			{"id": "c1", "firstName": "Ann", "lastName": "Lee", "email": "a@x.com", "stage": "APPLICATION", "tags": []any{"vip"}, "partnerId": "p1", "createdAt": float64(50), "updatedAt": float64(100)},
			{"id": "c2", "firstName": "Ann", "lastName": "Lee", "email": "", "stage": "processing", "tags": []any{"Hot"}, "createdAt": float64(20), "updatedAt": float64(200)},
			{"id": "c3", "firstName": "Bob", "updatedAt": float64(1)},
		},
		"contactProfiles": {
			{"id": "prof2", "contactId": "c2"},
		},
		"partners": {
			{"id": "p1", "company": "Acme Realty", "firstName": "Pat", "email": "pat@acme.test"},
		},
		"deals": {
			{"id": "d1", "contactIds": []any{"c1", "c2"}, "updatedAt": float64(5)},
			{"id": "d2", "contactIds": []any{"c2", "c3"}},
			{"id": "d3", "contactIds": []any{"c3"}},
		},
		"notes": {
			{"id": "n1", "contactId": "c2", "text": "called", "updatedAt": float64(7)},
			{"id": "n2", "contactId": "c1", "text": "emailed"},
		},
		"notifications": {
			{"id": "followup:c1", "type": "followup", "ownerId": "c1", "message": "", "createdAt": float64(300)},
			{"id": "followup:c2", "type": "followup", "ownerId": "c2", "message": "Call back", "createdAt": float64(100)},
			{"id": "birthday:c2", "type": "birthday", "ownerId": "c2", "createdAt": float64(40)},
		},
		"tasks": {
			{"id": "t1", "contactId": "c2", "title": "Send disclosures"},
			{"id": "t2", "contactId": "c3", "title": "Unrelated"},
		},
	}
}

func contactEntity() config.EntityConfig {
	e, _ := testConfig().Entity("contact")
	return e
}

func entryFor(p *Plan, collection string) *PlanEntry {
	for i := range p.Entries {
		if p.Entries[i].Collection == collection {
			return &p.Entries[i]
		}
	}
	return nil
}

func recordIDs(recs []domain.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}
