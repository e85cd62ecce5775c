// Package hearthstone extracts game state from a running Hearthstone
// client.
//
// Every exported function runs as one mirror.Query: it sees a fresh view
// of target memory, is retried once with a new session when the object
// graph is inconsistent, and returns the zero value when the data is not
// available, for instance while the client is still loading.
package hearthstone

import (
	"github.com/monomirror/monomirror/pkg/mirror"
	"github.com/monomirror/monomirror/pkg/mono"
)

// GetCollection returns the cards owned by the player.
func GetCollection(m *mirror.Mirror) ([]Card, error) {
	return mirror.Query(m, collection)
}

// GetDecks returns the constructed decks of the player.
func GetDecks(m *mirror.Mirror) ([]Deck, error) {
	return mirror.Query(m, decks)
}

// GetArenaDeck returns the current arena run.
func GetArenaDeck(m *mirror.Mirror) (*ArenaInfo, error) {
	return mirror.Query(m, arenaDeck)
}

// GetArenaDraftChoices returns the cards offered by the current arena
// draft pick.
func GetArenaDraftChoices(m *mirror.Mirror) ([]Card, error) {
	return mirror.Query(m, arenaDraftChoices)
}

// GetGameType returns the GameType enumeration value of the current game.
func GetGameType(m *mirror.Mirror) (int, error) {
	return mirror.Query(m, gameType)
}

// IsSpectating reports whether the player is spectating a game.
func IsSpectating(m *mirror.Mirror) (bool, error) {
	return mirror.Query(m, spectating)
}

// GetSelectedDeckInMenu returns the id of the deck selected in the deck
// picker.
func GetSelectedDeckInMenu(m *mirror.Mirror) (int64, error) {
	return mirror.Query(m, selectedDeckInMenu)
}

// GetMatchInfo returns the players of the current match.
func GetMatchInfo(m *mirror.Mirror) (*MatchInfo, error) {
	return mirror.Query(m, matchInfo)
}

func netCacheValues(r *reader) []mono.Value {
	return r.dictValues(r.get(r.instance("NetCache"), "m_netCache"))
}

func collection(img *mono.Image) ([]Card, error) {
	r := &reader{img: img}
	var cards []Card
	for _, v := range netCacheValues(r) {
		if className(v) != "NetCacheCollection" {
			continue
		}
		for _, stack := range r.list(r.get(v, "<Stacks>k__BackingField")) {
			def := r.get(stack, "<Def>k__BackingField")
			cards = append(cards, Card{
				ID:      r.stringOf(r.get(def, "<Name>k__BackingField")),
				Count:   r.intOf(r.get(stack, "<Count>k__BackingField")),
				Premium: r.intOf(r.get(def, "<Premium>k__BackingField")) > 0,
			})
		}
	}
	return cards, r.err
}

func decks(img *mono.Image) ([]Deck, error) {
	r := &reader{img: img}
	var out []Deck
	for _, v := range r.dictValues(r.get(r.instance("CollectionManager"), "m_decks")) {
		if className(v) != "CollectionDeck" {
			continue
		}
		out = append(out, r.deck(v))
	}
	return out, r.err
}

func (r *reader) deck(v mono.Value) Deck {
	d := Deck{
		ID:          r.int64Of(r.get(v, "ID")),
		Name:        r.stringOf(r.get(v, "m_name")),
		Hero:        r.stringOf(r.get(v, "HeroCardID")),
		HeroPremium: r.intOf(r.get(v, "HeroPremium")),
		IsWild:      r.boolOf(r.get(v, "m_isWild")),
		Type:        r.intOf(r.get(v, "Type")),
		SeasonID:    r.intOf(r.get(v, "SeasonId")),
		CardBackID:  r.intOf(r.get(v, "CardBackID")),
	}
	index := make(map[string]int)
	for _, slot := range r.list(r.get(v, "m_slots")) {
		id := r.stringOf(r.get(slot, "m_cardId"))
		if i, ok := index[id]; ok {
			d.Cards[i].Count++
			continue
		}
		index[id] = len(d.Cards)
		d.Cards = append(d.Cards, Card{ID: id, Count: r.intOf(r.get(slot, "m_count"))})
	}
	return d
}

func arenaDeck(img *mono.Image) (*ArenaInfo, error) {
	r := &reader{img: img}
	dm := r.instance("DraftManager")
	info := &ArenaInfo{
		Wins:   r.intOf(r.get(dm, "m_wins")),
		Losses: r.intOf(r.get(dm, "m_losses")),
		Deck:   r.deck(r.get(dm, "m_draftDeck")),
	}
	if r.err != nil {
		return nil, r.err
	}
	return info, nil
}

func arenaDraftChoices(img *mono.Image) ([]Card, error) {
	r := &reader{img: img}
	var cards []Card
	for _, choice := range r.list(r.get(r.instance("DraftDisplay"), "m_choices")) {
		if choice.IsNull() {
			continue
		}
		cards = append(cards, Card{
			ID:    r.stringOf(r.get(choice, "m_actor", "m_entityDef", "m_cardId")),
			Count: 1,
		})
	}
	return cards, r.err
}

func gameType(img *mono.Image) (int, error) {
	r := &reader{img: img}
	n := r.intOf(r.get(r.instance("GameMgr"), "m_gameType"))
	return n, r.err
}

func spectating(img *mono.Image) (bool, error) {
	r := &reader{img: img}
	b := r.boolOf(r.get(r.instance("GameMgr"), "m_spectator"))
	return b, r.err
}

func selectedDeckInMenu(img *mono.Image) (int64, error) {
	r := &reader{img: img}
	id := r.int64Of(r.get(r.instance("DeckPickerTrayDisplay"), "m_selectedCustomDeckBox", "m_deckID"))
	return id, r.err
}

func matchInfo(img *mono.Image) (*MatchInfo, error) {
	r := &reader{img: img}
	info := &MatchInfo{}
	playerMap := r.get(r.instance("GameState"), "m_playerMap")
	ids := r.get(playerMap, "keySlots").Array()
	players := r.dictValues(playerMap)
	netCache := netCacheValues(r)

	for i := range ids {
		if i >= len(players) || className(players[i]) != "Player" {
			continue
		}
		p := players[i]
		medal := r.opt(p, "m_medalInfo")
		std := r.opt(medal, "m_currMedalInfo")
		wild := r.opt(medal, "m_currWildMedalInfo")
		player := &Player{
			ID:                 r.intOf(ids[i]),
			Name:               r.stringOf(r.get(p, "m_name")),
			StandardRank:       r.intOf(r.opt(std, "rank")),
			StandardLegendRank: r.intOf(r.opt(std, "legendIndex")),
			WildRank:           r.intOf(r.opt(wild, "rank")),
			WildLegendRank:     r.intOf(r.opt(wild, "legendIndex")),
			CardBackID:         r.intOf(r.get(p, "m_cardBackId")),
		}
		if r.boolOf(r.get(p, "m_local")) {
			stars := r.netCacheValue(netCache, "NetCacheMedalInfo")
			player.StandardStars = r.intOf(r.opt(stars, "<Standard>k__BackingField", "<Stars>k__BackingField"))
			player.WildStars = r.intOf(r.opt(stars, "<Wild>k__BackingField", "<Stars>k__BackingField"))
			info.LocalPlayer = player
		} else {
			info.OpposingPlayer = player
		}
	}

	info.BrawlSeasonID = r.intOf(r.opt(r.instance("TavernBrawlManager"), "m_currentMission", "seasonId"))
	info.MissionID = r.intOf(r.get(r.instance("GameMgr"), "m_missionId"))
	if reward := r.netCacheValue(netCache, "NetCacheRewardProgress"); !reward.IsNull() {
		info.RankedSeasonID = r.intOf(r.get(reward, "<Season>k__BackingField"))
	}
	if r.err != nil {
		return nil, r.err
	}
	return info, nil
}
