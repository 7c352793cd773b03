package session

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Identifier suffixes used by WhatsApp-style networks. A participant id
// ending in the device-addressable suffix is directly dialable; the hidden
// ("lid") form is used by accounts with phone-number privacy enabled.
const (
	phoneSuffix  = "@s.whatsapp.net"
	hiddenSuffix = "@lid"
)

// GroupParticipant is one de-duplicated member across a set of queried
// groups. Groups accumulates which of the queried groups the member
// belongs to.
type GroupParticipant struct {
	ID     string   `json:"id"`
	Phone  string   `json:"phone"`
	Name   string   `json:"name"`
	Groups []string `json:"groupIds"`
}

// GroupParticipants queries the given groups and merges their members,
// de-duplicated by transport id. Phone numbers are normalized to a dialable
// string where the network exposes one, falling back to the raw id. A
// failing group is logged and skipped; it never fails the whole query.
func (s *Session) GroupParticipants(ctx context.Context, groupIDs []string) ([]GroupParticipant, error) {
	t, ok := s.ready()
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s is %s", ErrTransportUnavailable, s.tenantID, s.Phase())
	}

	merged := make(map[string]*GroupParticipant)
	var order []string

	for _, groupID := range groupIDs {
		members, err := t.GroupParticipants(ctx, groupID)
		if err != nil {
			log.Printf("session: tenant %s: participants of %s: %v", s.tenantID, groupID, err)
			continue
		}
		for _, m := range members {
			if existing, ok := merged[m.ID]; ok {
				if !containsString(existing.Groups, groupID) {
					existing.Groups = append(existing.Groups, groupID)
				}
				continue
			}

			phone := normalizePhone(m.ID, m.Phone)
			name := m.Name
			if name == "" {
				name = phone
			}
			merged[m.ID] = &GroupParticipant{
				ID:     m.ID,
				Phone:  phone,
				Name:   name,
				Groups: []string{groupID},
			}
			order = append(order, m.ID)
		}
	}

	out := make([]GroupParticipant, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}
	return out, nil
}

// normalizePhone maps a transport identifier to a dialable phone-like
// string. Hidden ids that the transport could not resolve fall back to the
// raw identifier stripped of its suffix.
func normalizePhone(id, phone string) string {
	if phone != "" {
		return strings.TrimSuffix(phone, phoneSuffix)
	}
	if strings.HasSuffix(id, hiddenSuffix) {
		return strings.TrimSuffix(id, hiddenSuffix)
	}
	return strings.TrimSuffix(id, phoneSuffix)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
