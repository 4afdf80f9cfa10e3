package progression

// Level is one step of the level table.
type Level struct {
	Number int    `json:"level"`
	Title  string `json:"title"`
	MinXP  int    `json:"min_xp"`
}

// levelTable must stay sorted by MinXP with Number increasing by one.
var levelTable = []Level{
	{Number: 1, Title: "Seeker", MinXP: 0},
	{Number: 2, Title: "Listener", MinXP: 100},
	{Number: 3, Title: "Reader", MinXP: 250},
	{Number: 4, Title: "Student", MinXP: 500},
	{Number: 5, Title: "Disciple", MinXP: 1000},
	{Number: 6, Title: "Scribe", MinXP: 2000},
	{Number: 7, Title: "Scholar", MinXP: 3500},
	{Number: 8, Title: "Teacher", MinXP: 5500},
	{Number: 9, Title: "Elder", MinXP: 8000},
	{Number: 10, Title: "Shepherd", MinXP: 12000},
}

// LevelTable returns a copy of the table.
func LevelTable() []Level {
	out := make([]Level, len(levelTable))
	copy(out, levelTable)
	return out
}

// LevelFor returns the last entry whose MinXP does not exceed xp.
// Negative totals map to the first level.
func LevelFor(xp int) Level {
	current := levelTable[0]
	for _, l := range levelTable[1:] {
		if l.MinXP > xp {
			break
		}
		current = l
	}
	return current
}

// NextLevel returns the entry after l, if any.
func NextLevel(l Level) (Level, bool) {
	for i, entry := range levelTable {
		if entry.Number == l.Number && i+1 < len(levelTable) {
			return levelTable[i+1], true
		}
	}
	return Level{}, false
}
