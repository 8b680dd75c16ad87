package engine

import "github.com/unclebandit/outreach-backend/internal/model"

// Unit is one piece of outstanding work: a user to connect with or a post to
// comment on. Key is the identifier recorded in the processed set.
type Unit struct {
	Key  string
	User *model.User
	Post *model.Post
}

func (u Unit) campaignType() model.CampaignType {
	if u.Post != nil {
		return model.CampaignTypeCommenting
	}
	return model.CampaignTypeConnection
}

func unitsOf(d *model.CampaignDetail) []Unit {
	if d.Type == model.CampaignTypeCommenting {
		units := make([]Unit, 0, len(d.Posts))
		for i := range d.Posts {
			p := d.Posts[i]
			units = append(units, Unit{Key: p.ID, Post: &p})
		}
		return units
	}
	units := make([]Unit, 0, len(d.Users))
	for i := range d.Users {
		u := d.Users[i]
		units = append(units, Unit{Key: u.ID, User: &u})
	}
	return units
}

// Partition splits items into consecutive batches of at most size elements,
// preserving order. Empty input yields no batches.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// Remaining filters out units already processed or currently reserved by a
// pending task, keeping list order.
func Remaining(units []Unit, processed []string, reserved map[string]struct{}) []Unit {
	done := make(map[string]struct{}, len(processed))
	for _, id := range processed {
		done[id] = struct{}{}
	}
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		if _, ok := done[u.Key]; ok {
			continue
		}
		if _, ok := reserved[u.Key]; ok {
			continue
		}
		out = append(out, u)
	}
	return out
}
