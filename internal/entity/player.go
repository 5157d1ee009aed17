package entity

type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	MatchID string `json:"match_id,omitempty"`
}
