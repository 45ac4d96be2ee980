package incident

import "strings"

type keywordSet struct {
	category Category
	keywords []string
}

// keywordTable is evaluated in order; the first category to reach the highest
// score wins ties.
var keywordTable = []keywordSet{
	{Harassment, []string{"harass", "catcall", "insult", "bully", "verbal", "unwanted", "tease", "humiliat", "offensive", "workplace"}},
	{DomesticViolence, []string{"husband", "wife", "partner", "spouse", "boyfriend", "girlfriend", "home", "family", "hit", "beat", "slap", "abuse", "marriage", "in-law"}},
	{SexualViolence, []string{"rape", "sexual", "assault", "molest", "grope", "touch", "forced", "consent", "naked", "indecent"}},
	{CyberViolence, []string{"online", "internet", "social media", "facebook", "instagram", "whatsapp", "message", "photo", "video", "hack", "account", "leak"}},
	{StalkingAndThreats, []string{"stalk", "follow", "threat", "watching", "kill", "hurt", "track", "afraid", "scared", "outside my"}},
	{GenderDiscrimination, []string{"discriminat", "gender", "unequal", "salary", "promotion", "denied", "sexist", "because i am a woman", "job", "hiring"}},
}

// LocalClassifier scores text against a fixed keyword table. It performs no
// I/O and never fails.
type LocalClassifier struct{}

// Classify returns the category whose keywords occur most often as substrings
// of the lowercased text, or General when nothing matches.
func (LocalClassifier) Classify(text string) Category {
	lowered := strings.ToLower(text)
	best, bestScore := General, 0
	for _, set := range keywordTable {
		score := 0
		for _, kw := range set.keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = set.category, score
		}
	}
	return best
}

// Scores returns the per-category keyword hit count for text. Categories with
// no hits are omitted.
func (LocalClassifier) Scores(text string) map[Category]int {
	lowered := strings.ToLower(text)
	scores := make(map[Category]int)
	for _, set := range keywordTable {
		for _, kw := range set.keywords {
			if strings.Contains(lowered, kw) {
				scores[set.category]++
			}
		}
	}
	return scores
}
