// Package dhikr defines the recitation catalog: the fixed set of dhikr
// requirements the gate can demand, together with the debt-multiplier
// derivation applied when a user owes extra repetitions.
package dhikr

import "fmt"

// Category classifies a requirement by its recitation length and form.
type Category string

const (
	// CategorySimple is a short phrase repeated a fixed number of times.
	CategorySimple Category = "simple"

	// CategoryVerse is a single verse recited once.
	CategoryVerse Category = "verse"

	// CategoryChapter is a longer multi-verse passage recited once.
	CategoryChapter Category = "chapter"

	// CategorySet is a multi-part set of recitations.
	CategorySet Category = "set"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategorySimple, CategoryVerse, CategoryChapter, CategorySet:
		return true
	}
	return false
}

// Requirement is an immutable recitation definition. Instances in the
// catalog are never mutated; a debt multiplier produces a derived copy via
// [WithMultiplier].
//
// Invariants: Repetitions >= 1 and 0 < AcceptanceThreshold <= 1.
type Requirement struct {
	// ID uniquely identifies the requirement within the catalog.
	ID string

	// DisplayName is the human-readable name shown to the user.
	DisplayName string

	// ScriptText is the reference recitation in Arabic script.
	ScriptText string

	// Transliteration is the Latin-script rendering of ScriptText.
	Transliteration string

	// Repetitions is how many times the recitation must be spoken.
	Repetitions int

	// AcceptanceThreshold is the minimum similarity for a single-shot
	// recitation to be accepted, in (0, 1].
	AcceptanceThreshold float64

	// Category classifies the requirement.
	Category Category
}

// WithMultiplier returns a copy of req with Repetitions scaled by
// multiplier. Threshold and text are unchanged: debt only ever increases
// the repetition count. A multiplier below 1 is treated as 1.
func WithMultiplier(req Requirement, multiplier int) Requirement {
	if multiplier < 1 {
		multiplier = 1
	}
	req.Repetitions = req.Repetitions * multiplier
	return req
}

// Catalog IDs, in ascending tier order.
const (
	IDSubhanAllah = "subhan-allah-3x"
	IDAyatAlKursi = "ayat-al-kursi"
	IDSurahAlMulk = "surah-al-mulk-opening"
	IDTasbihSet   = "post-prayer-tasbih-set"
)

// catalog is the fixed, ordered set of requirements, shortest first.
// Thresholds: 0.7 default, 0.75 for the longer passages where STT output
// is long enough for edit distance to discriminate reliably.
var catalog = []Requirement{
	{
		ID:                  IDSubhanAllah,
		DisplayName:         "SubhanAllah ×3",
		ScriptText:          "سبحان الله",
		Transliteration:     "subhanallah",
		Repetitions:         3,
		AcceptanceThreshold: 0.7,
		Category:            CategorySimple,
	},
	{
		ID:          IDAyatAlKursi,
		DisplayName: "Ayat al-Kursi",
		ScriptText: "الله لا اله الا هو الحي القيوم لا تاخذه سنة ولا نوم " +
			"له ما في السماوات وما في الارض",
		Transliteration: "allahu la ilaha illa huwal hayyul qayyum " +
			"la takhudhuhu sinatun wala nawm " +
			"lahu ma fis samawati wama fil ard",
		Repetitions:         1,
		AcceptanceThreshold: 0.7,
		Category:            CategoryVerse,
	},
	{
		ID:          IDSurahAlMulk,
		DisplayName: "Surah al-Mulk (opening)",
		ScriptText: "تبارك الذي بيده الملك وهو على كل شيء قدير " +
			"الذي خلق الموت والحياة ليبلوكم ايكم احسن عملا وهو العزيز الغفور " +
			"الذي خلق سبع سماوات طباقا ما ترى في خلق الرحمن من تفاوت",
		Transliteration: "tabarakal ladhi biyadihil mulku wahuwa ala kulli shayin qadir " +
			"alladhi khalaqal mawta wal hayata liyabluwakum ayyukum ahsanu amala " +
			"wahuwal azizul ghafur " +
			"alladhi khalaqa saba samawatin tibaqa " +
			"ma tara fi khalqir rahmani min tafawut",
		Repetitions:         1,
		AcceptanceThreshold: 0.75,
		Category:            CategoryChapter,
	},
	{
		ID:                  IDTasbihSet,
		DisplayName:         "Post-prayer tasbih set",
		ScriptText:          "سبحان الله والحمد لله والله اكبر",
		Transliteration:     "subhanallah walhamdulillah wallahu akbar",
		Repetitions:         33,
		AcceptanceThreshold: 0.75,
		Category:            CategorySet,
	},
}

// All returns the catalog in ascending tier order. The returned slice is a
// copy; callers may reorder or modify it freely.
func All() []Requirement {
	out := make([]Requirement, len(catalog))
	copy(out, catalog)
	return out
}

// ByID returns the requirement with the given ID.
func ByID(id string) (Requirement, error) {
	for _, r := range catalog {
		if r.ID == id {
			return r, nil
		}
	}
	return Requirement{}, fmt.Errorf("dhikr: unknown requirement %q", id)
}
