package hearthstone

// Card is a stack of copies of one card.
type Card struct {
	ID      string `yaml:"id"`
	Count   int    `yaml:"count"`
	Premium bool   `yaml:"premium"`
}

// Deck is a constructed or arena deck.
type Deck struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Hero        string `yaml:"hero"`
	HeroPremium int    `yaml:"heroPremium"`
	IsWild      bool   `yaml:"isWild"`
	Type        int    `yaml:"type"`
	SeasonID    int    `yaml:"seasonId"`
	CardBackID  int    `yaml:"cardBackId"`
	Cards       []Card `yaml:"cards"`
}

// ArenaInfo is the state of the current arena run.
type ArenaInfo struct {
	Wins   int  `yaml:"wins"`
	Losses int  `yaml:"losses"`
	Deck   Deck `yaml:"deck"`
}

// Player is one side of a match.
type Player struct {
	ID                 int    `yaml:"id"`
	Name               string `yaml:"name"`
	StandardRank       int    `yaml:"standardRank"`
	StandardLegendRank int    `yaml:"standardLegendRank"`
	StandardStars      int    `yaml:"standardStars"`
	WildRank           int    `yaml:"wildRank"`
	WildLegendRank     int    `yaml:"wildLegendRank"`
	WildStars          int    `yaml:"wildStars"`
	CardBackID         int    `yaml:"cardBackId"`
}

// MatchInfo describes the match being played.
type MatchInfo struct {
	LocalPlayer    *Player `yaml:"localPlayer"`
	OpposingPlayer *Player `yaml:"opposingPlayer"`
	BrawlSeasonID  int     `yaml:"brawlSeasonId"`
	MissionID      int     `yaml:"missionId"`
	RankedSeasonID int     `yaml:"rankedSeasonId"`
}
