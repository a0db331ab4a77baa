package preprocess

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"ModelHub/internal/domain/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const kindText = "text"

// TextConfig controls the text pipeline.
type TextConfig struct {
	RemoveStopwords bool     `json:"remove_stopwords"`
	Lemmatize       bool     `json:"lemmatize"`
	ExtraStopwords  []string `json:"extra_stopwords,omitempty"`
}

// DefaultTextConfig enables every cleaning step.
func DefaultTextConfig() TextConfig {
	return TextConfig{RemoveStopwords: true, Lemmatize: true}
}

// TextPreprocessor lowercases, strips accents and non-letters, tokenizes,
// drops stopwords and lemmatizes. Fit records the corpus vocabulary.
type TextPreprocessor struct {
	lifecycle
	cfg   TextConfig
	stop  map[string]struct{}
	vocab []string
}

func NewTextPreprocessor(cfg TextConfig) *TextPreprocessor {
	p := &TextPreprocessor{cfg: cfg}
	p.buildStopwords()
	return p
}

func (p *TextPreprocessor) buildStopwords() {
	p.stop = make(map[string]struct{}, len(englishStopwords)+len(p.cfg.ExtraStopwords))
	for _, w := range englishStopwords {
		p.stop[w] = struct{}{}
	}
	for _, w := range p.cfg.ExtraStopwords {
		p.stop[strings.ToLower(w)] = struct{}{}
	}
}

func (p *TextPreprocessor) Fit(data []string) error {
	seen := make(map[string]struct{})
	for _, doc := range data {
		for _, tok := range p.tokens(doc) {
			seen[tok] = struct{}{}
		}
	}
	p.vocab = make([]string, 0, len(seen))
	for tok := range seen {
		p.vocab = append(p.vocab, tok)
	}
	sort.Strings(p.vocab)
	p.fitted = true
	return nil
}

func (p *TextPreprocessor) Transform(data []string) []string {
	p.mustBeFitted(kindText)
	out := make([]string, len(data))
	for i, doc := range data {
		out[i] = strings.Join(p.tokens(doc), " ")
	}
	return out
}

// Vocabulary returns the sorted tokens seen during Fit.
func (p *TextPreprocessor) Vocabulary() []string {
	out := make([]string, len(p.vocab))
	copy(out, p.vocab)
	return out
}

func (p *TextPreprocessor) tokens(doc string) []string {
	toks := strings.Fields(cleanText(doc))
	out := toks[:0]
	for _, t := range toks {
		if p.cfg.RemoveStopwords {
			if _, ok := p.stop[t]; ok {
				continue
			}
		}
		if p.cfg.Lemmatize {
			t = lemmatize(t)
		}
		out = append(out, t)
	}
	return out
}

// cleanText folds accents, lowercases and keeps only ASCII letters and single spaces.
func cleanText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.English).String(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

type textParams struct {
	Config TextConfig `json:"config"`
	Vocab  []string   `json:"vocab,omitempty"`
}

func (p *TextPreprocessor) Snapshot() (Snapshot, error) {
	raw, err := json.Marshal(textParams{Config: p.cfg, Vocab: p.vocab})
	if err != nil {
		return Snapshot{}, fmt.Errorf("text snapshot: %w", err)
	}
	return Snapshot{Version: SnapshotVersion, Kind: kindText, Fitted: p.fitted, Params: raw}, nil
}

// RestoreText rebuilds a TextPreprocessor from a snapshot.
func RestoreText(s Snapshot) (*TextPreprocessor, error) {
	if err := s.expect(kindText); err != nil {
		return nil, err
	}
	var tp textParams
	if err := json.Unmarshal(s.Params, &tp); err != nil {
		return nil, fmt.Errorf("%w: text params: %v", models.ErrInvalidParameter, err)
	}
	p := NewTextPreprocessor(tp.Config)
	p.vocab = tp.Vocab
	p.fitted = s.Fitted
	return p, nil
}

var _ Pipeline[[]string, []string] = (*TextPreprocessor)(nil)

var irregularLemmas = map[string]string{
	"children": "child",
	"men":      "man",
	"women":    "woman",
	"mice":     "mouse",
	"geese":    "goose",
	"feet":     "foot",
	"teeth":    "tooth",
	"data":     "datum",
	"criteria": "criterion",
	"wolves":   "wolf",
	"knives":   "knife",
	"leaves":   "leaf",
	"lives":    "life",
	"wives":    "wife",
}

// lemmatize reduces plural nouns to their singular form with WordNet-style detachment rules.
func lemmatize(w string) string {
	if l, ok := irregularLemmas[w]; ok {
		return l
	}
	if len(w) <= 3 {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"),
		strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "zes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "men"):
		return w[:len(w)-3] + "man"
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

// englishStopwords follows the common NLTK English list with apostrophes removed.
var englishStopwords = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "youre", "youve", "youll", "youd",
	"your", "yours", "yourself", "yourselves", "he", "him", "his", "himself", "she", "shes", "her", "hers",
	"herself", "it", "its", "itself", "they", "them", "their", "theirs", "themselves", "what", "which",
	"who", "whom", "this", "that", "thatll", "these", "those", "am", "is", "are", "was", "were", "be",
	"been", "being", "have", "has", "had", "having", "do", "does", "did", "doing", "a", "an", "the", "and",
	"but", "if", "or", "because", "as", "until", "while", "of", "at", "by", "for", "with", "about",
	"against", "between", "into", "through", "during", "before", "after", "above", "below", "to", "from",
	"up", "down", "in", "out", "on", "off", "over", "under", "again", "further", "then", "once", "here",
	"there", "when", "where", "why", "how", "all", "any", "both", "each", "few", "more", "most", "other",
	"some", "such", "no", "nor", "not", "only", "own", "same", "so", "than", "too", "very", "s", "t",
	"can", "will", "just", "don", "dont", "should", "shouldve", "now", "d", "ll", "m", "o", "re", "ve",
	"y", "ain", "aren", "arent", "couldn", "couldnt", "didn", "didnt", "doesn", "doesnt", "hadn", "hadnt",
	"hasn", "hasnt", "haven", "havent", "isn", "isnt", "ma", "mightn", "mightnt", "mustn", "mustnt",
	"needn", "neednt", "shan", "shant", "shouldn", "shouldnt", "wasn", "wasnt", "weren", "werent", "won",
	"wont", "wouldn", "wouldnt",
}
